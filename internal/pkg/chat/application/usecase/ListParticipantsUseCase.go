package usecase

import (
	"context"
	"fmt"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

// ListParticipantsInput names the conversation. When RequesterID is set the
// requester must be a member.
type ListParticipantsInput struct {
	ConversationID string
	RequesterID    string
}

// ListParticipantsUseCase returns the member user IDs of a conversation in join order.
type ListParticipantsUseCase struct {
	Repo repository.ChatRepository
}

func NewListParticipantsUseCase(repo repository.ChatRepository) *ListParticipantsUseCase {
	return &ListParticipantsUseCase{Repo: repo}
}

func (uc *ListParticipantsUseCase) Execute(ctx context.Context, in ListParticipantsInput) ([]string, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if err := validateIDs(uc.Repo, in.ConversationID, in.RequesterID); err != nil {
		return nil, err
	}

	members, err := uc.Repo.ListParticipantIDs(ctx, in.ConversationID)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("list_participants").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(members) == 0 {
		return nil, chat.ErrNotFound
	}
	if in.RequesterID != "" && !contains(members, in.RequesterID) {
		return nil, chat.ErrNotParticipant
	}
	return members, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
