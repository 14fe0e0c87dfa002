package usecase

import (
	"context"
	"errors"
	"fmt"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
	repository "brunox-chat/internal/pkg/chat/persistence/repository/port"
)

// ProofVerifier checks that signature over message was produced by address.
type ProofVerifier interface {
	Verify(message, signature, address string) (bool, error)
}

// ConfirmProofInput identifies the message whose proof is confirmed.
type ConfirmProofInput struct {
	MessageID string
}

// ConfirmProofUseCase performs the chain_verified false -> true transition
// once the proof's signature recovers to the recorded signer.
type ConfirmProofUseCase struct {
	Repo     repository.ChatRepository
	Verifier ProofVerifier
}

func NewConfirmProofUseCase(repo repository.ChatRepository, verifier ProofVerifier) *ConfirmProofUseCase {
	return &ConfirmProofUseCase{Repo: repo, Verifier: verifier}
}

// Execute returns the message after the transition. Errors other than
// ErrPersistence are permanent.
func (uc *ConfirmProofUseCase) Execute(ctx context.Context, in ConfirmProofInput) (*chat.Message, error) {
	if in.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}
	if err := validateIDs(uc.Repo, in.MessageID); err != nil {
		return nil, err
	}

	msg, err := uc.Repo.GetMessage(ctx, in.MessageID)
	if errors.Is(err, chat.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg.ChainVerified {
		return &msg, nil
	}
	if !msg.HasProof() {
		metrics.ProofsConfirmed.WithLabelValues("no_proof").Inc()
		return nil, chat.ErrVerifiedWithoutProof
	}
	if msg.ChainProof.Signer == "" || msg.ChainProof.Payload == "" {
		metrics.ProofsConfirmed.WithLabelValues("unverifiable").Inc()
		return nil, ErrUnverifiableProof
	}

	ok, err := uc.Verifier.Verify(msg.ChainProof.Payload, msg.ChainProof.Hash, msg.ChainProof.Signer)
	if err != nil || !ok {
		metrics.ProofsConfirmed.WithLabelValues("mismatch").Inc()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProofMismatch, err)
		}
		return nil, ErrProofMismatch
	}

	if err := uc.Repo.MarkMessageVerified(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := msg.MarkVerified(); err != nil {
		return nil, err
	}
	metrics.ProofsConfirmed.WithLabelValues("verified").Inc()
	return &msg, nil
}
