package sessionkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/keys"
	"github.com/pushchain/push-session-bridge/sessionClient/policy"
)

var (
	testUSDC  = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	testOwner = common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
)

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context) (keys.Material, error) {
	args := m.Called(ctx)
	return args.Get(0).(keys.Material), args.Error(1)
}

func (m *mockGenerator) SignHash(ctx context.Context, addr common.Address, hash []byte) ([]byte, error) {
	args := m.Called(ctx, addr, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockGenerator) Forget(addr common.Address) {
	m.Called(addr)
}

func (m *mockGenerator) Has(addr common.Address) bool {
	return m.Called(addr).Bool(0)
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func setupStore(t *testing.T) (*Store, *keys.Keyring, *fakeClock) {
	t.Helper()
	database := setupTestDB(t)
	kr := keys.NewKeyring(zerolog.Nop())
	s := NewStore(database.Client(), kr, 0, zerolog.Nop())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, kr, clock
}

func transferPolicy(t *testing.T) policy.Policy {
	t.Helper()
	p, err := policy.NewEncoder(testUSDC, nil).Encode(policy.KindUSDCTransferOnly, policy.Overrides{})
	require.NoError(t, err)
	return p
}

func TestStore_IssueAndGet(t *testing.T) {
	ctx := context.Background()
	s, kr, clock := setupStore(t)
	p := transferPolicy(t)

	key, err := s.Issue(ctx, testOwner, p, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, key.ID)
	assert.Equal(t, testOwner, key.OwnerAccountAddress)
	assert.Equal(t, clock.Now(), key.IssuedAt)
	assert.Equal(t, clock.Now().Add(24*time.Hour), key.ExpiresAt)
	assert.False(t, key.Revoked)
	assert.True(t, key.Policy.Equal(p))
	assert.True(t, kr.Has(key.SignerAddress))

	got, err := s.Get(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, key.SignerAddress, got.SignerAddress)
	assert.Equal(t, key.PublicKey, got.PublicKey)
	assert.True(t, got.ExpiresAt.Equal(key.ExpiresAt))
	assert.True(t, got.Policy.Equal(p))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestStore_IssueCustomValidity(t *testing.T) {
	s, _, clock := setupStore(t)

	key, err := s.Issue(context.Background(), testOwner, transferPolicy(t), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), key.ExpiresAt)
}

func TestStore_IssueKeyGenerationFailure(t *testing.T) {
	database := setupTestDB(t)
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything).Return(keys.Material{}, assert.AnError)

	s := NewStore(database.Client(), gen, time.Hour, zerolog.Nop())
	_, err := s.Issue(context.Background(), testOwner, transferPolicy(t), 0)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeKeyGeneration))
	assert.ErrorIs(t, err, assert.AnError)

	var count int64
	require.NoError(t, database.Client().Table("session_keys").Count(&count).Error)
	assert.Zero(t, count)
	gen.AssertExpectations(t)
}

func TestStore_ListActiveNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupStore(t)

	first, err := s.Issue(ctx, testOwner, transferPolicy(t), 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := s.Issue(ctx, testOwner, transferPolicy(t), 0)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	third, err := s.Issue(ctx, testOwner, transferPolicy(t), 0)
	require.NoError(t, err)

	// Another owner's key never leaks in
	_, err = s.Issue(ctx, common.HexToAddress("0x01"), transferPolicy(t), 0)
	require.NoError(t, err)

	active, err := s.ListActive(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, third.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
	assert.Equal(t, first.ID, active[2].ID)
}

func TestStore_RevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	s, kr, _ := setupStore(t)

	key, err := s.Issue(ctx, testOwner, transferPolicy(t), 0)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, key.ID))
	once, err := s.Get(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, once.Revoked)
	require.NotNil(t, once.RevokedAt)
	assert.False(t, kr.Has(key.SignerAddress))

	require.NoError(t, s.Revoke(ctx, key.ID))
	twice, err := s.Get(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, once.Revoked, twice.Revoked)
	assert.True(t, once.RevokedAt.Equal(*twice.RevokedAt))

	active, err := s.ListActive(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.List(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	err = s.Revoke(ctx, "unknown")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestStore_ExpiryExcludesFromActive(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupStore(t)

	key, err := s.Issue(ctx, testOwner, transferPolicy(t), time.Hour)
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	active, err := s.ListActive(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// now == expiresAt is already expired
	clock.Advance(time.Minute)
	active, err = s.ListActive(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Revoking an expired key is a no-op
	require.NoError(t, s.Revoke(ctx, key.ID))
	got, err := s.Get(ctx, key.ID)
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}

func TestStore_ConcurrentIssueSameOwner(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupStore(t)
	p := transferPolicy(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Issue(ctx, testOwner, p, 0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.List(ctx, testOwner)
	require.NoError(t, err)
	assert.Len(t, all, n)

	ids := make(map[string]bool)
	for _, k := range all {
		ids[k.ID] = true
	}
	assert.Len(t, ids, n)
	assert.Empty(t, s.locks.locks)
}

func TestStore_Purge(t *testing.T) {
	ctx := context.Background()
	s, kr, clock := setupStore(t)

	expired, err := s.Issue(ctx, testOwner, transferPolicy(t), time.Hour)
	require.NoError(t, err)
	revoked, err := s.Issue(ctx, testOwner, transferPolicy(t), 48*time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, revoked.ID))
	live, err := s.Issue(ctx, testOwner, transferPolicy(t), 48*time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	deleted, err := s.Purge(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.False(t, kr.Has(expired.SignerAddress))

	_, err = s.Get(ctx, expired.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	_, err = s.Get(ctx, revoked.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	_, err = s.Get(ctx, live.ID)
	assert.NoError(t, err)

	deleted, err = s.Purge(ctx, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPurger_RetentionWindow(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	kr := keys.NewKeyring(zerolog.Nop())
	s := NewStore(database.Client(), kr, 0, zerolog.Nop())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now

	_, err := s.Issue(ctx, testOwner, transferPolicy(t), time.Hour)
	require.NoError(t, err)

	p := NewPurger(s, database, time.Hour, 24*time.Hour, zerolog.Nop())

	// Expired but still inside retention
	clock.Advance(2 * time.Hour)
	deleted, err := p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	clock.Advance(24 * time.Hour)
	deleted, err = p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestPurger_StartStop(t *testing.T) {
	database := setupTestDB(t)
	s := NewStore(database.Client(), keys.NewKeyring(zerolog.Nop()), 0, zerolog.Nop())
	p := NewPurger(s, nil, 10*time.Millisecond, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	p.Stop()
}

func TestOwnerLocks_Serializes(t *testing.T) {
	l := newOwnerLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("owner")
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}
