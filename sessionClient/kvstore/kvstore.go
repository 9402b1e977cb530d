// Package kvstore persists small client-side values (preferred wallet, last
// issued session key) as JSON documents in the bridge database.
package kvstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/push-session-bridge/sessionClient/store"
)

// Store is a JSON key-value store with an in-process read cache.
// Reads never fail: absent or malformed values are reported as absent.
type Store struct {
	db     *gorm.DB
	mu     sync.RWMutex
	cache  map[string][]byte
	logger zerolog.Logger
}

// New creates a Store on db.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cache:  make(map[string][]byte),
		logger: logger.With().Str("component", "kvstore").Logger(),
	}
}

// OwnerKey scopes key to an owner.
func OwnerKey(key, owner string) string {
	return key + ":" + owner
}

// Get decodes the value stored under key into out and reports whether a
// well-formed value was found.
func (s *Store) Get(ctx context.Context, key string, out interface{}) bool {
	raw, ok := s.raw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("ignoring malformed stored value")
		return false
	}
	return true
}

// Set stores value under key as JSON, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode value for %s", key)
	}

	entry := &store.KVEntry{Key: key, Value: raw}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return errors.Wrapf(err, "failed to store %s", key)
	}

	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Unscoped().Where("`key` = ?", key).Delete(&store.KVEntry{}).Error; err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// UpdatedAt returns when key was last written, or the zero time.
func (s *Store) UpdatedAt(ctx context.Context, key string) time.Time {
	var entry store.KVEntry
	if err := s.db.WithContext(ctx).Select("updated_at").Where("`key` = ?", key).First(&entry).Error; err != nil {
		return time.Time{}
	}
	return entry.UpdatedAt
}

func (s *Store) raw(ctx context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	raw, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return raw, true
	}

	var entry store.KVEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to read stored value")
		return nil, false
	}

	s.mu.Lock()
	s.cache[key] = entry.Value
	s.mu.Unlock()
	return entry.Value, true
}
