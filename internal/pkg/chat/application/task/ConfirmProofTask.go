package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qport "brunox-chat/internal/infrastructure/queue/port"
	"brunox-chat/internal/pkg/chat/application/usecase"

	"github.com/rs/zerolog"
)

// ConfirmProofTaskType is the queue task name for confirming a message's chain proof.
const ConfirmProofTaskType = "chat:confirm_proof"

// ConfirmProofTaskPayload is the JSON payload transported via the queue.
type ConfirmProofTaskPayload struct {
	MessageID string `json:"messageId"`
}

// ConfirmProofScheduler enqueues confirmation tasks; it satisfies usecase.ProofScheduler.
type ConfirmProofScheduler struct {
	Client qport.Client
	// Delay leaves room for the signature to settle before it is checked.
	Delay    time.Duration
	MaxRetry int
}

func NewConfirmProofScheduler(client qport.Client, delay time.Duration) *ConfirmProofScheduler {
	return &ConfirmProofScheduler{Client: client, Delay: delay, MaxRetry: 5}
}

var _ usecase.ProofScheduler = (*ConfirmProofScheduler)(nil)

func (s *ConfirmProofScheduler) ScheduleConfirmation(ctx context.Context, messageID string) error {
	b, err := json.Marshal(ConfirmProofTaskPayload{MessageID: messageID})
	if err != nil {
		return err
	}
	opts := qport.EnqueueOption{
		Queue:     "chat",
		ProcessIn: s.Delay,
		MaxRetry:  s.MaxRetry,
		TaskID:    "confirm:" + messageID,
	}
	_, err = s.Client.Enqueue(ctx, qport.Task{Type: ConfirmProofTaskType, Payload: b}, opts)
	if errors.Is(err, qport.ErrDuplicateTask) {
		return nil
	}
	return err
}

// RegisterConfirmProofTask binds the confirmation handler to srv.
// Only persistence errors are retried.
func RegisterConfirmProofTask(srv qport.Server, uc *usecase.ConfirmProofUseCase, log zerolog.Logger) {
	tlog := log.With().Str("task", ConfirmProofTaskType).Logger()
	srv.Register(ConfirmProofTaskType, func(ctx context.Context, t qport.Task) error {
		var p ConfirmProofTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("%w: malformed payload: %v", qport.ErrSkipRetry, err)
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		msg, err := uc.Execute(ctx, usecase.ConfirmProofInput{MessageID: p.MessageID})
		if err != nil {
			if errors.Is(err, usecase.ErrPersistence) {
				return err
			}
			tlog.Warn().Err(err).Str("message_id", p.MessageID).Msg("proof left unconfirmed")
			return fmt.Errorf("%w: %v", qport.ErrSkipRetry, err)
		}
		tlog.Info().Str("message_id", msg.ID).Str("signer", msg.ChainProof.Signer).Msg("proof confirmed")
		return nil
	})
}
