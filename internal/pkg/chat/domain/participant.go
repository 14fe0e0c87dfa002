package chat

// ParticipantRole expresses the role within a conversation
// 0 = member (default); extra values reserved for future group roles
type ParticipantRole int16

const (
	ParticipantRoleMember ParticipantRole = 0
)

// Participant captures membership plus the cached display attributes of the
// member's profile. Primary key: (ConversationID, UserID)
type Participant struct {
	ConversationID string          `db:"conversation_id" json:"-"`
	UserID         string          `db:"user_id" json:"user_id"`
	Role           ParticipantRole `db:"role" json:"role"`
	Username       string          `db:"username" json:"username"`
	DisplayName    *string         `db:"display_name" json:"display_name,omitempty"`
	AvatarURL      *string         `db:"avatar_url" json:"avatar_url,omitempty"`
	Status         string          `db:"status" json:"status"`
}

// WithProfileDefaults fills the display attributes used when no profile row exists.
func (p Participant) WithProfileDefaults() Participant {
	if p.Username == "" {
		p.Username = "Unknown"
	}
	if p.Status == "" {
		p.Status = "offline"
	}
	return p
}
