package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	chat "brunox-chat/internal/pkg/chat/domain"

	"github.com/google/uuid"
)

// SignRequestFrame asks the client's wallet to sign Message.
type SignRequestFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

type signResult struct {
	signature string
	err       error
}

// RemoteSigner delegates signing to the user's browser wallet over the
// socket the user is connected on. The client announces its wallet with
// Connect and answers sign requests through Resolve.
type RemoteSigner struct {
	send func(payload []byte) error

	mu        sync.Mutex
	address   string
	connected bool
	pending   map[string]chan signResult
}

var _ chat.AddressedSigner = (*RemoteSigner)(nil)

// NewRemoteSigner builds a signer that writes sign requests with send.
func NewRemoteSigner(send func(payload []byte) error) *RemoteSigner {
	return &RemoteSigner{
		send:    send,
		pending: make(map[string]chan signResult),
	}
}

// Connect records the wallet address announced by the client.
func (s *RemoteSigner) Connect(address string) {
	s.mu.Lock()
	s.address = address
	s.connected = address != ""
	s.mu.Unlock()
}

// Disconnect forgets the wallet and fails outstanding requests.
func (s *RemoteSigner) Disconnect() {
	s.mu.Lock()
	s.address = ""
	s.connected = false
	pending := s.pending
	s.pending = make(map[string]chan signResult)
	s.mu.Unlock()

	for _, ch := range pending {
		ch <- signResult{err: chat.ErrSignerNotConnected}
	}
}

func (s *RemoteSigner) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *RemoteSigner) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

func (s *RemoteSigner) Sign(ctx context.Context, message string) (string, error) {
	id := uuid.NewString()
	ch := make(chan signResult, 1)
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return "", chat.ErrSignerNotConnected
	}
	s.pending[id] = ch
	s.mu.Unlock()
	defer s.forget(id)

	payload, err := json.Marshal(SignRequestFrame{Type: "sign_request", RequestID: id, Message: message})
	if err != nil {
		return "", err
	}
	if err := s.send(payload); err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrSignerUnavailable, err)
	}

	select {
	case res := <-ch:
		return res.signature, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve completes the request identified by requestID. A rejected request
// or an error string from the client fails the pending Sign call.
func (s *RemoteSigner) Resolve(requestID string, signature string, rejected bool, errMsg string) bool {
	s.mu.Lock()
	ch, ok := s.pending[requestID]
	delete(s.pending, requestID)
	s.mu.Unlock()
	if !ok {
		return false
	}

	switch {
	case rejected:
		ch <- signResult{err: chat.ErrSignRejected}
	case errMsg != "":
		ch <- signResult{err: fmt.Errorf("%w: %s", chat.ErrSignerUnavailable, errMsg)}
	case signature == "":
		ch <- signResult{err: fmt.Errorf("%w: empty signature", chat.ErrSignerUnavailable)}
	default:
		ch <- signResult{signature: signature}
	}
	return true
}

func (s *RemoteSigner) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
