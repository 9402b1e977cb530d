package custodial

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
)

var _ Signer = &LocalSigner{}

// LocalSigner is a development Signer that holds one root key in memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	orgID   string
	userID  string
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu     sync.Mutex
	expiry time.Time
}

// NewLocalSigner parses a hex root key and opens a session valid for ttl.
func NewLocalSigner(rootKeyHex, organizationID, userID string, ttl time.Duration, log zerolog.Logger) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(rootKeyHex, "0x"))
	if err != nil {
		return nil, errors.NewConfigError("invalid root key: " + err.Error())
	}
	if organizationID == "" {
		return nil, errors.NewConfigError("organization id is required")
	}

	s := &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		orgID:   organizationID,
		userID:  userID,
		ttl:     ttl,
		now:     time.Now,
		log:     log.With().Str("component", "custodial_signer").Logger(),
	}
	s.expiry = s.now().Add(ttl)

	s.log.Info().
		Str("root_address", s.address.Hex()).
		Str("organization_id", organizationID).
		Time("session_expiry", s.expiry).
		Msg("local custodial signer ready")
	return s, nil
}

// Address returns the root key address, which is also its keyRef.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// Refresh extends the session by the configured ttl.
func (s *LocalSigner) Refresh() {
	s.mu.Lock()
	s.expiry = s.now().Add(s.ttl)
	s.mu.Unlock()
}

// Logout ends the session immediately.
func (s *LocalSigner) Logout() {
	s.mu.Lock()
	s.expiry = time.Time{}
	s.mu.Unlock()
}

// GetSession returns the current session.
func (s *LocalSigner) GetSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	sess := Session{OrganizationID: s.orgID, UserID: s.userID, Expiry: s.expiry}
	s.mu.Unlock()

	if !sess.Valid(s.now()) {
		return Session{}, errors.NewAuthenticationError("custodial session is absent or expired")
	}
	return sess, nil
}

// Sign signs payload, a 32-byte digest, with the root key.
func (s *LocalSigner) Sign(ctx context.Context, payload []byte, keyRef string) ([]byte, error) {
	if _, err := s.GetSession(ctx); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(keyRef) || common.HexToAddress(keyRef) != s.address {
		return nil, errors.NewAuthenticationError(fmt.Sprintf("unknown root key reference %q", keyRef))
	}
	if len(payload) != 32 {
		return nil, errors.NewValidationError("payload must be a 32-byte digest")
	}

	sig, err := crypto.Sign(payload, s.key)
	if err != nil {
		return nil, errors.NewInternalError("root signing failed", err)
	}
	sig[64] += 27

	s.log.Debug().Str("key_ref", keyRef).Msg("signed payload with root key")
	return sig, nil
}
