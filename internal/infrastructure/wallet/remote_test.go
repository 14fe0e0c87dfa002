package wallet_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brunox-chat/internal/infrastructure/wallet"
	chat "brunox-chat/internal/pkg/chat/domain"
)

// outbox captures sign requests written to the socket.
type outbox chan wallet.SignRequestFrame

func (o outbox) send(payload []byte) error {
	var f wallet.SignRequestFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	o <- f
	return nil
}

func (o outbox) next(t *testing.T) wallet.SignRequestFrame {
	t.Helper()
	select {
	case f := <-o:
		return f
	case <-time.After(time.Second):
		t.Fatal("no sign request sent")
		return wallet.SignRequestFrame{}
	}
}

type signOutcome struct {
	sig string
	err error
}

func signAsync(s *wallet.RemoteSigner, ctx context.Context, msg string) <-chan signOutcome {
	out := make(chan signOutcome, 1)
	go func() {
		sig, err := s.Sign(ctx, msg)
		out <- signOutcome{sig, err}
	}()
	return out
}

func TestRemoteSigner_RoundTrip(t *testing.T) {
	box := make(outbox, 1)
	s := wallet.NewRemoteSigner(box.send)

	_, err := s.Sign(context.Background(), "hello")
	assert.ErrorIs(t, err, chat.ErrSignerNotConnected)

	s.Connect("0xabc")
	assert.True(t, s.IsConnected())
	assert.Equal(t, "0xabc", s.Address())

	res := signAsync(s, context.Background(), "hello:1")
	req := box.next(t)
	assert.Equal(t, "sign_request", req.Type)
	assert.Equal(t, "hello:1", req.Message)
	require.NotEmpty(t, req.RequestID)

	assert.True(t, s.Resolve(req.RequestID, "0xsig", false, ""))
	out := <-res
	require.NoError(t, out.err)
	assert.Equal(t, "0xsig", out.sig)

	assert.False(t, s.Resolve(req.RequestID, "0xsig", false, ""), "already resolved")
}

func TestRemoteSigner_Failures(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(s *wallet.RemoteSigner, id string)
		wantErr error
	}{
		{name: "rejected", resolve: func(s *wallet.RemoteSigner, id string) { s.Resolve(id, "", true, "") }, wantErr: chat.ErrSignRejected},
		{name: "provider error", resolve: func(s *wallet.RemoteSigner, id string) { s.Resolve(id, "", false, "no provider") }, wantErr: chat.ErrSignerUnavailable},
		{name: "empty signature", resolve: func(s *wallet.RemoteSigner, id string) { s.Resolve(id, "", false, "") }, wantErr: chat.ErrSignerUnavailable},
		{name: "disconnect", resolve: func(s *wallet.RemoteSigner, _ string) { s.Disconnect() }, wantErr: chat.ErrSignerNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := make(outbox, 1)
			s := wallet.NewRemoteSigner(box.send)
			s.Connect("0xabc")

			res := signAsync(s, context.Background(), "m")
			req := box.next(t)
			tt.resolve(s, req.RequestID)

			out := <-res
			assert.ErrorIs(t, out.err, tt.wantErr)
			assert.Empty(t, out.sig)
		})
	}
}

func TestRemoteSigner_TimeoutAndSendFailure(t *testing.T) {
	box := make(outbox, 1)
	s := wallet.NewRemoteSigner(box.send)
	s.Connect("0xabc")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Sign(ctx, "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	req := box.next(t)
	assert.False(t, s.Resolve(req.RequestID, "0xlate", false, ""), "late answers are ignored")

	broken := wallet.NewRemoteSigner(func([]byte) error { return errors.New("socket closed") })
	broken.Connect("0xabc")
	_, err = broken.Sign(context.Background(), "m")
	assert.ErrorIs(t, err, chat.ErrSignerUnavailable)

	s.Connect("")
	assert.False(t, s.IsConnected())
}
