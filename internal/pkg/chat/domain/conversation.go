package chat

import (
	"sort"
	"time"
)

// ConversationKind distinguishes 1:1 threads from groups.
type ConversationKind string

const (
	ConversationKindDirect ConversationKind = "direct"
	ConversationKindGroup  ConversationKind = "group"
)

// Conversation is a thread and the principals taking part in it.
type Conversation struct {
	ID           string           `db:"id" json:"id"`
	Kind         ConversationKind `db:"kind" json:"kind"`
	Name         string           `db:"name" json:"name,omitempty"`
	CreatedBy    string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	Participants []Participant    `json:"participants"`
	LastMessage  *Message         `json:"last_message,omitempty"`
	UnreadCount  int              `json:"unread_count"`
}

// LastActivity is the newest message timestamp, or CreatedAt for empty threads.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// HasParticipant tells whether userID is part of this conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// SortByActivity orders conversations most-recent-activity first; ties by ID.
func SortByActivity(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		ai, aj := convs[i].LastActivity(), convs[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return convs[i].ID < convs[j].ID
	})
}

// NewDirectConversation validates a 1:1 pair and returns the conversation
// with its two participants. ID and CreatedAt are assigned by the store.
func NewDirectConversation(userID, otherUserID string) (*Conversation, error) {
	if userID == "" || otherUserID == "" || userID == otherUserID {
		return nil, ErrSelfConversation
	}
	return &Conversation{
		Kind:      ConversationKindDirect,
		CreatedBy: userID,
		Participants: []Participant{
			{UserID: userID, Role: ParticipantRoleMember},
			{UserID: otherUserID, Role: ParticipantRoleMember},
		},
	}, nil
}
