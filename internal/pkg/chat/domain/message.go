package chat

import (
	"strings"
	"time"
)

// MessageKind represents the type of message content.
type MessageKind string

const (
	MessageKindText MessageKind = "text"
	MessageKindFile MessageKind = "file"
)

// ParseMessageKind maps a wire value to a MessageKind; empty means text.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", MessageKindText:
		return MessageKindText, nil
	case MessageKindFile:
		return MessageKindFile, nil
	default:
		return "", ErrInvalidKind
	}
}

// ChainProof is the wallet signature attached to a message before it is persisted.
// Signer and Payload are kept so the confirmation job can recover and compare
// the signing address.
type ChainProof struct {
	Hash    string `json:"hash"`
	Signer  string `json:"signer,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Message is an immutable log entry in a conversation.
// The only mutation after insert is ChainVerified going from false to true.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversation_id"`
	SenderID       string      `db:"sender_id" json:"sender_id"`
	Content        string      `db:"content" json:"content"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	Kind           MessageKind `db:"kind" json:"kind"`
	FileURL        *string     `db:"file_url" json:"file_url,omitempty"`
	ChainProof     *ChainProof `json:"chain_proof,omitempty"`
	ChainVerified  bool        `db:"chain_verified" json:"chain_verified"`
}

// HasProof reports whether a non-empty chain proof is attached.
func (m Message) HasProof() bool {
	return m.ChainProof != nil && m.ChainProof.Hash != ""
}

// MarkVerified applies the confirmation transition.
func (m *Message) MarkVerified() error {
	if !m.HasProof() {
		return ErrVerifiedWithoutProof
	}
	m.ChainVerified = true
	return nil
}

// NewMessage validates and normalizes a message prior to persistence.
// ID and CreatedAt are left for the store to assign.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, ErrMissingIdentity
	}

	trimmed := strings.TrimSpace(m.Content)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	m.Content = trimmed

	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if m.Kind == MessageKindFile && (m.FileURL == nil || strings.TrimSpace(*m.FileURL) == "") {
		return nil, ErrMissingFileURL
	}

	if m.ChainProof != nil && m.ChainProof.Hash == "" {
		m.ChainProof = nil
	}
	if m.ChainVerified && !m.HasProof() {
		return nil, ErrVerifiedWithoutProof
	}

	m.ID = ""
	m.CreatedAt = time.Time{}
	return &m, nil
}
