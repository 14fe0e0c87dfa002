package usecase

import "errors"

// ErrPersistence indicates an infrastructure/repository failure inside a use case
var ErrPersistence = errors.New("chat use case persistence error")

// ErrPartialConversation is returned when the conversation row was stored but
// its participant rows were not. The orphaned conversation is left in place.
var ErrPartialConversation = errors.New("chat: conversation created without participants")

// Confirmation failures that retrying cannot fix.
var (
	ErrUnverifiableProof = errors.New("chat: proof lacks signer or payload")
	ErrProofMismatch     = errors.New("chat: proof does not recover to the recorded signer")
)
