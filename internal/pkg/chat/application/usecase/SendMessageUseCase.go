package usecase

import (
	"context"
	"fmt"
	"time"

	"brunox-chat/internal/infrastructure/metrics"
	"brunox-chat/internal/pkg/chat/application/signing"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

// ProofScheduler queues the out-of-band confirmation of a message's chain proof.
type ProofScheduler interface {
	ScheduleConfirmation(ctx context.Context, messageID string) error
}

// SendMessageInput carries the data needed to send a new message.
// Signer is the sender's wallet handle; nil means no wallet.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           chat.MessageKind
	FileURL        *string
	Signer         chat.Signer
}

// SendMessageUseCase signs (best-effort) and persists a message.
type SendMessageUseCase struct {
	Repo        repository.ChatRepository
	Scheduler   ProofScheduler
	Directory   *DirectoryCache
	SignTimeout time.Duration
	Now         func() time.Time
	Log         zerolog.Logger
}

func NewSendMessageUseCase(repo repository.ChatRepository, log zerolog.Logger) *SendMessageUseCase {
	return &SendMessageUseCase{
		Repo:        repo,
		SignTimeout: signing.DefaultTimeout,
		Now:         time.Now,
		Log:         log.With().Str("component", "send_message").Logger(),
	}
}

// Execute persists exactly one message per successful call. Signing problems
// never fail the call; persistence problems do and are not retried.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	draft, err := chat.NewMessage(chat.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Kind:           in.Kind,
		FileURL:        in.FileURL,
	})
	if err != nil {
		return nil, err
	}
	if err := validateIDs(uc.Repo, in.ConversationID, in.SenderID); err != nil {
		return nil, err
	}

	isParticipant, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("send_message").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isParticipant {
		return nil, chat.ErrNotParticipant
	}

	log := uc.Log.With().Str("conversation_id", in.ConversationID).Str("sender_id", in.SenderID).Logger()
	draft.ChainProof = signing.Attempt(ctx, in.Signer, draft.Content, uc.now(), uc.SignTimeout, log)

	msg, err := uc.Repo.SaveMessage(ctx, *draft)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("send_message").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	metrics.MessagesSent.WithLabelValues(chat.Classify(msg).String()).Inc()

	uc.afterSend(ctx, msg, log)
	return &msg, nil
}

// afterSend runs the best-effort follow-ups of a persisted message.
func (uc *SendMessageUseCase) afterSend(ctx context.Context, msg chat.Message, log zerolog.Logger) {
	if msg.HasProof() && uc.Scheduler != nil {
		if err := uc.Scheduler.ScheduleConfirmation(ctx, msg.ID); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to schedule proof confirmation")
		}
	}
	if uc.Directory != nil {
		members, err := uc.Repo.ListParticipantIDs(ctx, msg.ConversationID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to list participants for directory invalidation")
			return
		}
		uc.Directory.Invalidate(ctx, members...)
	}
}

func (uc *SendMessageUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now()
	}
	return uc.Now()
}
