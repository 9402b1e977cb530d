package sessionkey

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/keys"
	"github.com/pushchain/push-session-bridge/sessionClient/policy"
	"github.com/pushchain/push-session-bridge/sessionClient/store"
)

// DefaultValidity applies when neither the caller nor the config sets one.
const DefaultValidity = 24 * time.Hour

// Store provides database access for session keys.
type Store struct {
	db              *gorm.DB
	keys            keys.Generator
	defaultValidity time.Duration
	locks           *ownerLocks
	now             func() time.Time
	logger          zerolog.Logger
}

// NewStore creates a new session key store.
func NewStore(db *gorm.DB, gen keys.Generator, defaultValidity time.Duration, logger zerolog.Logger) *Store {
	if defaultValidity <= 0 {
		defaultValidity = DefaultValidity
	}
	return &Store{
		db:              db,
		keys:            gen,
		defaultValidity: defaultValidity,
		locks:           newOwnerLocks(),
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With().Str("component", "session_key_store").Logger(),
	}
}

// Issue generates a key pair and persists a new session key for owner.
// A non-positive validity uses the default.
func (s *Store) Issue(ctx context.Context, owner common.Address, p policy.Policy, validity time.Duration) (*SessionKey, error) {
	if validity <= 0 {
		validity = s.defaultValidity
	}
	policyJSON, err := json.Marshal(p)
	if err != nil {
		return nil, errors.NewInvalidPolicyError("policy cannot be encoded: " + err.Error())
	}

	unlock := s.locks.lock(owner.Hex())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	material, err := s.keys.Generate(ctx)
	if err != nil {
		return nil, errors.NewKeyGenerationError(owner.Hex(), err)
	}

	issuedAt := s.now()
	rec := &store.SessionKey{
		SessionKeyID:        uuid.NewString(),
		OwnerAccountAddress: owner.Hex(),
		PublicKey:           hexutil.Encode(material.PublicKey),
		SignerAddress:       material.Address.Hex(),
		PermissionKind:      string(p.PermissionKind),
		Policy:              policyJSON,
		IssuedAt:            issuedAt,
		ExpiresAt:           issuedAt.Add(validity),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	}); err != nil {
		s.keys.Forget(material.Address)
		return nil, errors.NewDatabaseError("failed to persist session key", err)
	}

	s.logger.Info().
		Str("session_key_id", rec.SessionKeyID).
		Str("owner", rec.OwnerAccountAddress).
		Str("signer", rec.SignerAddress).
		Str("permission_kind", rec.PermissionKind).
		Time("expires_at", rec.ExpiresAt).
		Msg("issued session key")

	return s.decode(rec)
}

// Get returns the session key with the given id, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, id string) (*SessionKey, error) {
	rec, err := s.getRecord(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return s.decode(rec)
}

// List returns every retained key for owner, newest first.
func (s *Store) List(ctx context.Context, owner common.Address) ([]*SessionKey, error) {
	return s.list(ctx, owner, false)
}

// ListActive returns the owner's unrevoked, unexpired keys, newest first.
func (s *Store) ListActive(ctx context.Context, owner common.Address) ([]*SessionKey, error) {
	return s.list(ctx, owner, true)
}

func (s *Store) list(ctx context.Context, owner common.Address, activeOnly bool) ([]*SessionKey, error) {
	var recs []store.SessionKey
	query := s.db.WithContext(ctx).Where("owner_account_address = ?", owner.Hex())
	if activeOnly {
		query = query.Where("revoked = ?", false)
	}
	if err := query.Order("issued_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, errors.NewDatabaseError("failed to query session keys", err)
	}

	now := s.now()
	out := make([]*SessionKey, 0, len(recs))
	for i := range recs {
		k, err := s.decode(&recs[i])
		if err != nil {
			return nil, err
		}
		if activeOnly && !k.Active(now) {
			continue
		}
		out = append(out, k)
	}

	// Stable sort keeps insertion order for identical timestamps
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// Revoke marks the key revoked and drops its key material. Revoking an
// already revoked or expired key is a no-op; an unknown id is NOT_FOUND.
func (s *Store) Revoke(ctx context.Context, id string) error {
	rec, err := s.getRecord(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(rec.OwnerAccountAddress)
	defer unlock()

	now := s.now()
	revoked := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.getRecord(tx, id)
		if err != nil {
			return err
		}
		if current.Revoked || !now.Before(current.ExpiresAt) {
			return nil
		}
		result := tx.Model(&store.SessionKey{}).
			Where("session_key_id = ? AND revoked = ?", id, false).
			Updates(map[string]any{"revoked": true, "revoked_at": now})
		if result.Error != nil {
			return errors.NewDatabaseError("failed to revoke session key", result.Error)
		}
		revoked = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return err
	}

	if revoked {
		s.keys.Forget(common.HexToAddress(rec.SignerAddress))
		s.logger.Info().
			Str("session_key_id", id).
			Str("owner", rec.OwnerAccountAddress).
			Msg("revoked session key")
	}
	return nil
}

// Purge permanently deletes keys that expired or were revoked before the
// given time and returns how many were removed.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	var recs []store.SessionKey
	if err := s.db.WithContext(ctx).
		Select("id", "session_key_id", "signer_address", "expires_at", "revoked", "revoked_at").
		Find(&recs).Error; err != nil {
		return 0, errors.NewDatabaseError("failed to query session keys for purge", err)
	}

	var ids []uint
	var signers []common.Address
	for _, rec := range recs {
		expired := rec.ExpiresAt.Before(before)
		revoked := rec.Revoked && rec.RevokedAt != nil && rec.RevokedAt.Before(before)
		if expired || revoked {
			ids = append(ids, rec.ID)
			signers = append(signers, common.HexToAddress(rec.SignerAddress))
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().Where("id IN ?", ids).Delete(&store.SessionKey{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, errors.NewDatabaseError("failed to purge session keys", err)
	}

	for _, addr := range signers {
		s.keys.Forget(addr)
	}
	return deleted, nil
}

func (s *Store) getRecord(tx *gorm.DB, id string) (*store.SessionKey, error) {
	var rec store.SessionKey
	err := tx.Where("session_key_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFoundError("session key " + id + " not found")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load session key", err)
	}
	return &rec, nil
}

func (s *Store) decode(rec *store.SessionKey) (*SessionKey, error) {
	k, err := fromRecord(rec)
	if err != nil {
		return nil, errors.NewDatabaseError("corrupt session key record "+rec.SessionKeyID, err)
	}
	return k, nil
}
