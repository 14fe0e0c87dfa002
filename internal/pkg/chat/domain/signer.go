package chat

import "context"

// Signer is the wallet capability: sign an arbitrary message with the user's key.
// Implementations return ErrSignerNotConnected, ErrSignRejected or
// ErrSignerUnavailable (possibly wrapped) on failure.
type Signer interface {
	IsConnected() bool
	Sign(ctx context.Context, message string) (string, error)
}

// AddressedSigner is implemented by signers that know the address they sign with.
type AddressedSigner interface {
	Signer
	Address() string
}
