package keys

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownKey is returned when signing with an address that has no key material.
	ErrUnknownKey = errors.New("no key material for address")

	// ErrInvalidHash is returned when the digest is not 32 bytes.
	ErrInvalidHash = errors.New("hash must be 32 bytes")
)

var _ Generator = &Keyring{}

// Keyring holds session private keys in process memory only.
type Keyring struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
	log  zerolog.Logger
}

// NewKeyring creates an empty in-memory keyring.
func NewKeyring(logger zerolog.Logger) *Keyring {
	return &Keyring{
		keys: make(map[common.Address]*ecdsa.PrivateKey),
		log:  logger.With().Str("component", "session_keyring").Logger(),
	}
}

// Generate creates a new secp256k1 key pair.
func (k *Keyring) Generate(ctx context.Context) (Material, error) {
	if err := ctx.Err(); err != nil {
		return Material{}, err
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		k.audit(CreateAuditLog("generate", "", err.Error(), false))
		return Material{}, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}

	addr := crypto.PubkeyToAddress(priv.PublicKey)

	k.mu.Lock()
	k.keys[addr] = priv
	k.mu.Unlock()

	k.audit(CreateAuditLog("generate", addr.Hex(), "", true))
	return Material{
		Address:   addr,
		PublicKey: crypto.FromECDSAPub(&priv.PublicKey),
	}, nil
}

// SignHash signs hash with the key held for addr.
func (k *Keyring) SignHash(ctx context.Context, addr common.Address, hash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(hash) != 32 {
		return nil, ErrInvalidHash
	}

	k.mu.RLock()
	priv, ok := k.keys[addr]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, addr.Hex())
	}

	sig, err := crypto.Sign(hash, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	// Contract-side ecrecover expects V in {27, 28}
	sig[64] += 27
	return sig, nil
}

// Forget removes the key for addr.
func (k *Keyring) Forget(addr common.Address) {
	k.mu.Lock()
	_, ok := k.keys[addr]
	delete(k.keys, addr)
	k.mu.Unlock()

	if ok {
		k.audit(CreateAuditLog("forget", addr.Hex(), "", true))
	}
}

// Has reports whether key material for addr is held.
func (k *Keyring) Has(addr common.Address) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[addr]
	return ok
}

func (k *Keyring) audit(op KeyOperation) {
	AuditKeyOperation(k.log, op)
}
