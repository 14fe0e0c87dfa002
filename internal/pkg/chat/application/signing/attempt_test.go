package signing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brunox-chat/internal/pkg/chat/application/signing"
	chat "brunox-chat/internal/pkg/chat/domain"
)

type fakeSigner struct {
	connected bool
	sig       string
	err       error
	wait      time.Duration
	got       string
}

func (f *fakeSigner) IsConnected() bool { return f.connected }

func (f *fakeSigner) Sign(ctx context.Context, message string) (string, error) {
	f.got = message
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.sig, f.err
}

type addressedSigner struct {
	fakeSigner
	address string
}

func (a *addressedSigner) Address() string { return a.address }

var at = time.UnixMilli(1700000000123)

func TestPayload(t *testing.T) {
	assert.Equal(t, "hello:1700000000123", signing.Payload("hello", at))
	assert.Equal(t, "a:b:1700000000123", signing.Payload("a:b", at))
}

func TestAttempt(t *testing.T) {
	log := zerolog.Nop()

	t.Run("signed", func(t *testing.T) {
		s := &fakeSigner{connected: true, sig: "0xabc"}
		proof := signing.Attempt(context.Background(), s, "hello", at, time.Second, log)
		require.NotNil(t, proof)
		assert.Equal(t, "0xabc", proof.Hash)
		assert.Equal(t, "hello:1700000000123", proof.Payload)
		assert.Empty(t, proof.Signer)
		assert.Equal(t, proof.Payload, s.got)
	})

	t.Run("records signer address", func(t *testing.T) {
		s := &addressedSigner{fakeSigner: fakeSigner{connected: true, sig: "0xabc"}, address: "0x1234"}
		proof := signing.Attempt(context.Background(), s, "hello", at, time.Second, log)
		require.NotNil(t, proof)
		assert.Equal(t, "0x1234", proof.Signer)
	})

	t.Run("nil signer", func(t *testing.T) {
		assert.Nil(t, signing.Attempt(context.Background(), nil, "hello", at, time.Second, log))
	})

	t.Run("disconnected", func(t *testing.T) {
		s := &fakeSigner{sig: "0xabc"}
		assert.Nil(t, signing.Attempt(context.Background(), s, "hello", at, time.Second, log))
		assert.Empty(t, s.got)
	})

	t.Run("rejected", func(t *testing.T) {
		s := &fakeSigner{connected: true, err: chat.ErrSignRejected}
		assert.Nil(t, signing.Attempt(context.Background(), s, "hello", at, time.Second, log))
	})

	t.Run("provider error", func(t *testing.T) {
		s := &fakeSigner{connected: true, err: errors.New("rpc down")}
		assert.Nil(t, signing.Attempt(context.Background(), s, "hello", at, time.Second, log))
	})

	t.Run("timeout", func(t *testing.T) {
		s := &fakeSigner{connected: true, sig: "0xabc", wait: time.Second}
		start := time.Now()
		assert.Nil(t, signing.Attempt(context.Background(), s, "hello", at, 50*time.Millisecond, log))
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}

// stubbornSigner ignores ctx and answers only when released.
type stubbornSigner struct {
	release chan struct{}
}

func (s *stubbornSigner) IsConnected() bool { return true }

func (s *stubbornSigner) Sign(context.Context, string) (string, error) {
	<-s.release
	return "0xlate", nil
}

func TestAttempt_TimeoutHoldsForSignerIgnoringContext(t *testing.T) {
	s := &stubbornSigner{release: make(chan struct{})}
	defer close(s.release)

	start := time.Now()
	proof := signing.Attempt(context.Background(), s, "hello", at, 50*time.Millisecond, zerolog.Nop())
	assert.Nil(t, proof, "a late signature is not attached")
	assert.Less(t, time.Since(start), time.Second)
}
