package repository

import (
	"context"

	chat "brunox-chat/internal/pkg/chat/domain"
)

// ChatRepository defines persistence operations for the chat domain.
// Adapters assign IDs and CreatedAt on insert and return chat.ErrNotFound for
// missing rows.
type ChatRepository interface {
	// ValidateID reports chat.ErrInvalidID for an id the store cannot key on.
	// Callers check ids before the first write so bad input never reaches SQL.
	ValidateID(id string) error

	CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error)
	// AddParticipants inserts all rows in one statement: either every row is
	// stored or none is.
	AddParticipants(ctx context.Context, ps []chat.Participant) error
	ListConversationsByUser(ctx context.Context, userID string) ([]chat.Conversation, error)
	ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)

	SaveMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	GetMessage(ctx context.Context, id string) (chat.Message, error)
	// GetMessagesByConversation returns every message ordered by created_at, id.
	GetMessagesByConversation(ctx context.Context, conversationID string) ([]chat.Message, error)
	MarkMessageVerified(ctx context.Context, id string) error
}

// MessageFeed is the change-notification side of the store.
// The returned channel is infinite until ctx is canceled; it is closed when
// the subscription ends for any reason, including a dropped connection.
type MessageFeed interface {
	Subscribe(ctx context.Context) (<-chan chat.FeedEvent, error)
}
