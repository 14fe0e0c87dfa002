package adapter

import (
	"context"
	"sync"
	"time"

	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/google/uuid"
)

// MemoryChatRepository is an in-process store with a change feed, used when
// STORE_DRIVER=memory and by tests. It is safe for concurrent use.
type MemoryChatRepository struct {
	mu            sync.RWMutex
	now           func() time.Time
	conversations map[string]chat.Conversation
	participants  map[string][]chat.Participant // conversationID -> members in join order
	profiles      map[string]chat.Participant   // userID -> display attributes
	messages      map[string]chat.Message
	order         []string // message IDs in insert order

	subMu sync.Mutex
	subs  map[*memorySub]struct{}
}

// memoryFeedBuffer is how many events a subscriber may fall behind before its
// stream is ended like a lost connection.
const memoryFeedBuffer = 256

type memorySub struct {
	mu     sync.Mutex
	ch     chan chat.FeedEvent
	closed bool
}

var (
	_ repository.ChatRepository = (*MemoryChatRepository)(nil)
	_ repository.MessageFeed    = (*MemoryChatRepository)(nil)
)

// MemoryOption configures a MemoryChatRepository.
type MemoryOption func(*MemoryChatRepository)

// WithClock sets the function used to stamp CreatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryChatRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewMemoryChatRepository(opts ...MemoryOption) *MemoryChatRepository {
	r := &MemoryChatRepository{
		now:           func() time.Time { return time.Now().UTC() },
		conversations: make(map[string]chat.Conversation),
		participants:  make(map[string][]chat.Participant),
		profiles:      make(map[string]chat.Participant),
		messages:      make(map[string]chat.Message),
		subs:          make(map[*memorySub]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetProfile stores the display attributes joined into participant listings.
func (r *MemoryChatRepository) SetProfile(p chat.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UserID] = p
}

// ValidateID accepts any non-empty id.
func (r *MemoryChatRepository) ValidateID(id string) error {
	if id == "" {
		return chat.ErrInvalidID
	}
	return nil
}

func (r *MemoryChatRepository) CreateConversation(_ context.Context, c chat.Conversation) (chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = r.now()
	for i := range c.Participants {
		c.Participants[i].ConversationID = c.ID
	}
	stored := c
	stored.Participants = nil
	stored.LastMessage = nil
	r.conversations[c.ID] = stored
	return c, nil
}

func (r *MemoryChatRepository) AddParticipants(_ context.Context, ps []chat.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range ps {
		if _, ok := r.conversations[p.ConversationID]; !ok {
			return chat.ErrNotFound
		}
	}
	for _, p := range ps {
		members := r.participants[p.ConversationID]
		replaced := false
		for i := range members {
			if members[i].UserID == p.UserID {
				members[i].Role = p.Role
				replaced = true
			}
		}
		if !replaced {
			members = append(members, chat.Participant{ConversationID: p.ConversationID, UserID: p.UserID, Role: p.Role})
		}
		r.participants[p.ConversationID] = members
	}
	return nil
}

func (r *MemoryChatRepository) ListConversationsByUser(_ context.Context, userID string) ([]chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []chat.Conversation
	for id, conv := range r.conversations {
		if !r.isParticipantLocked(id, userID) {
			continue
		}
		for _, p := range r.participants[id] {
			conv.Participants = append(conv.Participants, r.withProfileLocked(p))
		}
		if last, ok := r.lastMessageLocked(id); ok {
			conv.LastMessage = &last
		}
		out = append(out, conv)
	}
	return out, nil
}

func (r *MemoryChatRepository) ListParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.participants[conversationID]
	ids := make([]string, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (r *MemoryChatRepository) IsParticipant(_ context.Context, conversationID string, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isParticipantLocked(conversationID, userID), nil
}

func (r *MemoryChatRepository) SaveMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	r.mu.Lock()
	if _, ok := r.conversations[m.ConversationID]; !ok {
		r.mu.Unlock()
		return chat.Message{}, chat.ErrNotFound
	}
	m.ID = uuid.NewString()
	m.CreatedAt = r.now()
	m.ChainVerified = false
	if m.ChainProof != nil {
		proof := *m.ChainProof
		m.ChainProof = &proof
	}
	r.messages[m.ID] = m
	r.order = append(r.order, m.ID)
	r.mu.Unlock()

	r.publish(chat.FeedEvent{Op: chat.FeedOpInserted, Message: m})
	return m, nil
}

func (r *MemoryChatRepository) GetMessage(_ context.Context, id string) (chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	return m, nil
}

func (r *MemoryChatRepository) GetMessagesByConversation(_ context.Context, conversationID string) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var msgs []chat.Message
	for _, id := range r.order {
		if m := r.messages[id]; m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	chat.SortMessages(msgs)
	return msgs, nil
}

func (r *MemoryChatRepository) MarkMessageVerified(_ context.Context, id string) error {
	r.mu.Lock()
	m, ok := r.messages[id]
	if !ok {
		r.mu.Unlock()
		return chat.ErrNotFound
	}
	if m.ChainVerified {
		r.mu.Unlock()
		return nil
	}
	if err := m.MarkVerified(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.messages[id] = m
	r.mu.Unlock()

	r.publish(chat.FeedEvent{Op: chat.FeedOpVerified, Message: m})
	return nil
}

// Subscribe streams every insert and verification after the call. A
// subscriber that lets memoryFeedBuffer events pile up is disconnected.
func (r *MemoryChatRepository) Subscribe(ctx context.Context) (<-chan chat.FeedEvent, error) {
	sub := &memorySub{ch: make(chan chat.FeedEvent, memoryFeedBuffer)}
	r.subMu.Lock()
	r.subs[sub] = struct{}{}
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.unsubscribe(sub)
	}()
	return sub.ch, nil
}

// DropFeed ends every live subscription as a lost connection would.
func (r *MemoryChatRepository) DropFeed() {
	r.subMu.Lock()
	subs := make([]*memorySub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.subMu.Unlock()
	for _, s := range subs {
		r.unsubscribe(s)
	}
}

func (r *MemoryChatRepository) unsubscribe(sub *memorySub) {
	r.subMu.Lock()
	delete(r.subs, sub)
	r.subMu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	sub.mu.Unlock()
}

func (r *MemoryChatRepository) publish(ev chat.FeedEvent) {
	r.subMu.Lock()
	subs := make([]*memorySub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.subMu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		full := false
		if !s.closed {
			select {
			case s.ch <- ev:
			default:
				full = true
			}
		}
		s.mu.Unlock()
		if full {
			r.unsubscribe(s)
		}
	}
}

func (r *MemoryChatRepository) isParticipantLocked(conversationID, userID string) bool {
	for _, p := range r.participants[conversationID] {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (r *MemoryChatRepository) withProfileLocked(p chat.Participant) chat.Participant {
	if prof, ok := r.profiles[p.UserID]; ok {
		p.Username = prof.Username
		p.DisplayName = prof.DisplayName
		p.AvatarURL = prof.AvatarURL
		p.Status = prof.Status
	}
	return p.WithProfileDefaults()
}

func (r *MemoryChatRepository) lastMessageLocked(conversationID string) (chat.Message, bool) {
	var (
		last  chat.Message
		found bool
	)
	for _, id := range r.order {
		m := r.messages[id]
		if m.ConversationID != conversationID {
			continue
		}
		if !found || m.CreatedAt.After(last.CreatedAt) || (m.CreatedAt.Equal(last.CreatedAt) && m.ID > last.ID) {
			last, found = m, true
		}
	}
	return last, found
}
