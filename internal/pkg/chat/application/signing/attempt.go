package signing

import (
	"context"
	"strconv"
	"time"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single signing attempt.
const DefaultTimeout = 15 * time.Second

// Payload is the exact string handed to the wallet: content, a colon, and the
// send time in Unix milliseconds.
func Payload(content string, at time.Time) string {
	return content + ":" + strconv.FormatInt(at.UnixMilli(), 10)
}

// Attempt tries to obtain a chain proof for content within timeout.
// It never returns an error: a nil signer, a disconnected wallet, a rejected
// request, a provider failure or a timeout all yield nil, logged at warn.
func Attempt(ctx context.Context, signer chat.Signer, content string, at time.Time, timeout time.Duration, log zerolog.Logger) *chat.ChainProof {
	if signer == nil || !signer.IsConnected() {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := Payload(content, at)
	sig, err := signWithin(ctx, signer, payload)
	if err != nil || sig == "" {
		metrics.SigningFailures.Inc()
		log.Warn().Err(err).Msg("message signing skipped")
		return nil
	}

	proof := &chat.ChainProof{Hash: sig, Payload: payload}
	if a, ok := signer.(chat.AddressedSigner); ok {
		proof.Signer = a.Address()
	}
	return proof
}

type signResult struct {
	sig string
	err error
}

// signWithin returns when ctx ends even if the signer keeps running. A late
// signature is discarded.
func signWithin(ctx context.Context, signer chat.Signer, payload string) (string, error) {
	done := make(chan signResult, 1)
	go func() {
		sig, err := signer.Sign(ctx, payload)
		done <- signResult{sig: sig, err: err}
	}()
	select {
	case r := <-done:
		return r.sig, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
