package usecase

import (
	"context"
	"fmt"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

// GetMessageInput carries parameters to load the messages of a conversation.
// When UserID is set the caller must be a participant.
type GetMessageInput struct {
	ConversationID string
	UserID         string
}

// GetMessageUseCase loads the full, ordered message set of a conversation.
type GetMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessageUseCase(repo repository.ChatRepository) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo}
}

// Execute returns every message ordered by CreatedAt, then ID.
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("conversationId is required")
	}
	if err := validateIDs(uc.Repo, in.ConversationID, in.UserID); err != nil {
		return nil, err
	}
	if in.UserID != "" {
		ok, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.UserID)
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues("load_messages").Inc()
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if !ok {
			return nil, chat.ErrNotParticipant
		}
	}

	msgs, err := uc.Repo.GetMessagesByConversation(ctx, in.ConversationID)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load_messages").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	chat.SortMessages(msgs)
	return msgs, nil
}
