// Package sessionkey persists issued session keys and their lifecycle, and
// is the single source of truth for whether a key is still usable.
package sessionkey

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pushchain/push-session-bridge/sessionClient/policy"
	"github.com/pushchain/push-session-bridge/sessionClient/store"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// SessionKey is an issued delegate key. Private material lives only in the
// keys.Generator that produced it.
type SessionKey struct {
	ID                  string         `json:"session_key_id"`
	OwnerAccountAddress common.Address `json:"owner_account_address"`
	PublicKey           hexutil.Bytes  `json:"public_key"`
	SignerAddress       common.Address `json:"signer_address"`
	Policy              policy.Policy  `json:"policy"`
	IssuedAt            time.Time      `json:"issued_at"`
	ExpiresAt           time.Time      `json:"expires_at"`
	Revoked             bool           `json:"revoked"`
	RevokedAt           *time.Time     `json:"revoked_at,omitempty"`
}

// Active reports whether the key is unrevoked and unexpired at now.
func (k *SessionKey) Active(now time.Time) bool {
	return !k.Revoked && now.Before(k.ExpiresAt)
}

// Usable reports whether the key may sign op at now.
func (k *SessionKey) Usable(now time.Time, op userop.Operation) bool {
	return k.Active(now) && k.Policy.IsSatisfiedBy(op)
}

func fromRecord(rec *store.SessionKey) (*SessionKey, error) {
	var p policy.Policy
	if err := json.Unmarshal(rec.Policy, &p); err != nil {
		return nil, err
	}
	pub, err := hexutil.Decode(rec.PublicKey)
	if err != nil {
		return nil, err
	}

	k := &SessionKey{
		ID:                  rec.SessionKeyID,
		OwnerAccountAddress: common.HexToAddress(rec.OwnerAccountAddress),
		PublicKey:           pub,
		SignerAddress:       common.HexToAddress(rec.SignerAddress),
		Policy:              p,
		IssuedAt:            rec.IssuedAt.UTC(),
		ExpiresAt:           rec.ExpiresAt.UTC(),
		Revoked:             rec.Revoked,
	}
	if rec.RevokedAt != nil {
		t := rec.RevokedAt.UTC()
		k.RevokedAt = &t
	}
	return k, nil
}
