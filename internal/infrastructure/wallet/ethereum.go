package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	chat "brunox-chat/internal/pkg/chat/domain"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with a locally held secp256k1 key using the personal_sign
// (EIP-191) scheme, so its output matches what a browser wallet returns.
type KeySigner struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	address   common.Address
	connected bool
}

var _ chat.AddressedSigner = (*KeySigner)(nil)

// NewKeySigner parses a hex private key (with or without 0x) and returns a connected signer.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return NewKeySignerFromKey(key), nil
}

func NewKeySignerFromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		connected: true,
	}
}

// Connect re-enables signing after Disconnect.
func (s *KeySigner) Connect() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

// Disconnect stops signing without discarding the key.
func (s *KeySigner) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *KeySigner) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *KeySigner) Address() string {
	return s.address.Hex()
}

func (s *KeySigner) Sign(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.IsConnected() {
		return "", chat.ErrSignerNotConnected
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrSignerUnavailable, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced a personal_sign signature over message.
func Recover(message string, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("wallet: decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("wallet: signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("wallet: recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Verifier checks personal_sign signatures; it satisfies usecase.ProofVerifier.
type Verifier struct{}

func (Verifier) Verify(message, signature, address string) (bool, error) {
	recovered, err := Recover(message, signature)
	if err != nil {
		return false, err
	}
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("wallet: invalid address %q", address)
	}
	return common.HexToAddress(address) == common.HexToAddress(recovered), nil
}
