package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"brunox-chat/internal/pkg/chat/application/usecase"
	chat "brunox-chat/internal/pkg/chat/domain"
	"brunox-chat/internal/pkg/chat/persistence/repository/adapter"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

var errStoreDown = errors.New("store down")

// stubSigner is a chat.AddressedSigner with canned results.
type stubSigner struct {
	connected bool
	signature string
	err       error
	block     bool
	address   string

	mu       sync.Mutex
	payloads []string
}

func (s *stubSigner) IsConnected() bool { return s.connected }
func (s *stubSigner) Address() string   { return s.address }

func (s *stubSigner) Sign(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	s.payloads = append(s.payloads, message)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.signature, s.err
}

func (s *stubSigner) signed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

// failingRepo wraps a working repository and fails selected operations.
type failingRepo struct {
	repository.ChatRepository
	failSave         bool
	failParticipants bool
	failCreate       bool
	failList         bool
	failLoad         bool
	failMark         bool
}

func (r *failingRepo) SaveMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	if r.failSave {
		return chat.Message{}, errStoreDown
	}
	return r.ChatRepository.SaveMessage(ctx, m)
}

func (r *failingRepo) AddParticipants(ctx context.Context, ps []chat.Participant) error {
	if r.failParticipants {
		return errStoreDown
	}
	return r.ChatRepository.AddParticipants(ctx, ps)
}

func (r *failingRepo) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	if r.failCreate {
		return chat.Conversation{}, errStoreDown
	}
	return r.ChatRepository.CreateConversation(ctx, c)
}

func (r *failingRepo) ListConversationsByUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if r.failList {
		return nil, errStoreDown
	}
	return r.ChatRepository.ListConversationsByUser(ctx, userID)
}

func (r *failingRepo) GetMessagesByConversation(ctx context.Context, id string) ([]chat.Message, error) {
	if r.failLoad {
		return nil, errStoreDown
	}
	return r.ChatRepository.GetMessagesByConversation(ctx, id)
}

func (r *failingRepo) MarkMessageVerified(ctx context.Context, id string) error {
	if r.failMark {
		return errStoreDown
	}
	return r.ChatRepository.MarkMessageVerified(ctx, id)
}

// uuidKeyedRepo keys on UUIDs like the Postgres store and counts writes.
type uuidKeyedRepo struct {
	repository.ChatRepository
	mu     sync.Mutex
	writes int
}

func (r *uuidKeyedRepo) ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return chat.ErrInvalidID
	}
	return nil
}

func (r *uuidKeyedRepo) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	r.count()
	return r.ChatRepository.CreateConversation(ctx, c)
}

func (r *uuidKeyedRepo) AddParticipants(ctx context.Context, ps []chat.Participant) error {
	r.count()
	return r.ChatRepository.AddParticipants(ctx, ps)
}

func (r *uuidKeyedRepo) SaveMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	r.count()
	return r.ChatRepository.SaveMessage(ctx, m)
}

func (r *uuidKeyedRepo) count() {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
}

func (r *uuidKeyedRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// recordingScheduler remembers which messages were scheduled for confirmation.
type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingScheduler) ScheduleConfirmation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return s.err
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRepo() *adapter.MemoryChatRepository {
	return adapter.NewMemoryChatRepository(adapter.WithClock(steppingClock(base, time.Second)))
}

// seedConversation creates a direct conversation between alice and bob.
func seedConversation(t *testing.T, repo repository.ChatRepository) string {
	t.Helper()
	conv, err := usecase.NewCreateDirectConversationUseCase(repo, nil).Execute(context.Background(), usecase.CreateDirectConversationInput{
		UserID:      "alice",
		OtherUserID: "bob",
	})
	require.NoError(t, err)
	return conv.ID
}

func newSendUC(repo repository.ChatRepository) *usecase.SendMessageUseCase {
	uc := usecase.NewSendMessageUseCase(repo, zerolog.Nop())
	uc.Now = func() time.Time { return base }
	uc.SignTimeout = 200 * time.Millisecond
	return uc
}
