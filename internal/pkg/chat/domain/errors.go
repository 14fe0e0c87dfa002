package chat

import "errors"

// Domain-level errors for chat behaviors
var (
	ErrMissingIdentity      = errors.New("chat: conversation_id and sender_id are required")
	ErrEmptyMessage         = errors.New("chat: empty message")
	ErrInvalidKind          = errors.New("chat: unknown message kind")
	ErrMissingFileURL       = errors.New("chat: file message requires a file url")
	ErrVerifiedWithoutProof = errors.New("chat: message cannot be verified without a chain proof")
	ErrNotParticipant       = errors.New("chat: sender is not a participant in the conversation")
	ErrSelfConversation     = errors.New("chat: direct conversation requires two distinct users")
	ErrNotFound             = errors.New("chat: not found")
	ErrInvalidID            = errors.New("chat: malformed identifier")

	// Wallet capability failures. They never reach the caller of send.
	ErrSignerNotConnected = errors.New("wallet: not connected")
	ErrSignRejected       = errors.New("wallet: user rejected signature request")
	ErrSignerUnavailable  = errors.New("wallet: provider unavailable")
)
