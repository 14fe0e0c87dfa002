package usecase

import (
	"context"
	"fmt"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

// ListConversationsInput identifies whose directory to list.
type ListConversationsInput struct {
	UserID string
}

// ListConversationsUseCase returns a user's conversations, most recent activity first.
type ListConversationsUseCase struct {
	Repo      repository.ChatRepository
	Directory *DirectoryCache
}

func NewListConversationsUseCase(repo repository.ChatRepository, directory *DirectoryCache) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo, Directory: directory}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context, in ListConversationsInput) ([]chat.Conversation, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if err := validateIDs(uc.Repo, in.UserID); err != nil {
		return nil, err
	}
	if convs, ok := uc.Directory.Get(ctx, in.UserID); ok {
		return convs, nil
	}

	convs, err := uc.Repo.ListConversationsByUser(ctx, in.UserID)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("list_conversations").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	chat.SortByActivity(convs)
	uc.Directory.Put(ctx, in.UserID, convs)
	return convs, nil
}
