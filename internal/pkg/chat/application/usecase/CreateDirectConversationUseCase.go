package usecase

import (
	"context"
	"fmt"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

// CreateDirectConversationInput names the two members of a 1:1 thread.
type CreateDirectConversationInput struct {
	UserID      string
	OtherUserID string
}

// CreateDirectConversationUseCase opens a new direct conversation.
// Existing conversations between the same pair are not looked up: every call
// creates a new one.
type CreateDirectConversationUseCase struct {
	Repo      repository.ChatRepository
	Directory *DirectoryCache
}

func NewCreateDirectConversationUseCase(repo repository.ChatRepository, directory *DirectoryCache) *CreateDirectConversationUseCase {
	return &CreateDirectConversationUseCase{Repo: repo, Directory: directory}
}

// Execute persists the conversation, then both participant rows in one insert.
// If the participant insert fails the conversation row is not rolled back and
// ErrPartialConversation is returned.
func (uc *CreateDirectConversationUseCase) Execute(ctx context.Context, in CreateDirectConversationInput) (*chat.Conversation, error) {
	draft, err := chat.NewDirectConversation(in.UserID, in.OtherUserID)
	if err != nil {
		return nil, err
	}
	// Both ids are checked before the conversation row is written, so a bad
	// request cannot leave an orphaned conversation behind.
	if err := validateIDs(uc.Repo, in.UserID, in.OtherUserID); err != nil {
		return nil, err
	}

	conv, err := uc.Repo.CreateConversation(ctx, *draft)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("create_conversation").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := uc.Repo.AddParticipants(ctx, conv.Participants); err != nil {
		metrics.PersistenceFailures.WithLabelValues("add_participants").Inc()
		return nil, fmt.Errorf("%w: conversation %s: %v", ErrPartialConversation, conv.ID, err)
	}

	for i := range conv.Participants {
		conv.Participants[i] = conv.Participants[i].WithProfileDefaults()
	}
	uc.Directory.Invalidate(ctx, in.UserID, in.OtherUserID)
	return &conv, nil
}
