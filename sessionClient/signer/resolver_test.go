package signer

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/keys"
	"github.com/pushchain/push-session-bridge/sessionClient/policy"
	"github.com/pushchain/push-session-bridge/sessionClient/sessionkey"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

var (
	usdc    = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	account = common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	payee   = common.HexToAddress("0x5555555555555555555555555555555555555555")
	spender = common.HexToAddress("0x6666666666666666666666666666666666666666")
)

const usdcUnit = 1_000_000

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListActive(ctx context.Context, owner common.Address) ([]*sessionkey.SessionKey, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sessionkey.SessionKey), args.Error(1)
}

func erc20Call(t *testing.T, method string, to common.Address, amount int64) userop.Operation {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(`[
		{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
		{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]}
	]`))
	require.NoError(t, err)
	data, err := parsed.Pack(method, to, big.NewInt(amount))
	require.NoError(t, err)
	return userop.Operation{Target: usdc, Data: data}
}

func validSession() custodial.Session {
	return custodial.Session{OrganizationID: "org", UserID: "user", Expiry: time.Now().Add(time.Hour)}
}

func newStore(t *testing.T) *sessionkey.Store {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return sessionkey.NewStore(database.Client(), keys.NewKeyring(zerolog.Nop()), 0, zerolog.Nop())
}

func TestResolve_USDCTransferOnlyScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := policy.NewEncoder(usdc, nil).Encode(policy.KindUSDCTransferOnly, policy.Overrides{
		MaxTransferAmount: big.NewInt(1000 * usdcUnit),
	})
	require.NoError(t, err)
	key, err := store.Issue(ctx, account, p, 0)
	require.NoError(t, err)

	r := NewResolver(store, zerolog.Nop())

	res, err := r.Resolve(ctx, validSession(), erc20Call(t, "transfer", payee, 500*usdcUnit), account)
	require.NoError(t, err)
	assert.Equal(t, KindSession, res.Kind)
	assert.Equal(t, key.ID, res.SessionKeyID)
	assert.Equal(t, key.SignerAddress, res.SignerAddress)

	_, err = r.Resolve(ctx, validSession(), erc20Call(t, "approve", spender, 1), account)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoAuthorizedSigner))

	_, err = r.Resolve(ctx, validSession(), erc20Call(t, "transfer", payee, 1001*usdcUnit), account)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoAuthorizedSigner))
}

func TestResolve_PrefersNewestSatisfyingKey(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	enc := policy.NewEncoder(usdc, nil)

	broad, err := enc.Encode(policy.KindUSDCFullAccess, policy.Overrides{})
	require.NoError(t, err)
	narrow, err := enc.Encode(policy.KindUSDCTransferOnly, policy.Overrides{MaxTransferAmount: big.NewInt(10 * usdcUnit)})
	require.NoError(t, err)

	older := &sessionkey.SessionKey{ID: "older", Policy: broad, IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}
	newer := &sessionkey.SessionKey{ID: "newer", Policy: narrow, IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)}

	lister := &mockLister{}
	lister.On("ListActive", mock.Anything, account).Return([]*sessionkey.SessionKey{newer, older}, nil)
	r := NewResolver(lister, zerolog.Nop())

	// Both satisfy: recency wins over breadth
	res, err := r.Resolve(ctx, validSession(), erc20Call(t, "transfer", payee, 5*usdcUnit), account)
	require.NoError(t, err)
	assert.Equal(t, "newer", res.SessionKeyID)

	// Only the older, broader key satisfies an approval
	res, err = r.Resolve(ctx, validSession(), erc20Call(t, "approve", spender, 5*usdcUnit), account)
	require.NoError(t, err)
	assert.Equal(t, "older", res.SessionKeyID)

	lister.AssertExpectations(t)
}

func TestResolve_RootFallback(t *testing.T) {
	ctx := context.Background()
	lister := &mockLister{}
	r := NewResolver(lister, zerolog.Nop())
	t.Cleanup(func() { lister.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything) })

	op := erc20Call(t, "approve", spender, 1)
	op.RequiresUserApproval = true

	t.Run("valid session signs with root", func(t *testing.T) {
		res, err := r.Resolve(ctx, validSession(), op, account)
		require.NoError(t, err)
		assert.Equal(t, KindRoot, res.Kind)
		assert.Empty(t, res.SessionKeyID)
	})

	t.Run("expired session fails authentication", func(t *testing.T) {
		expired := validSession()
		expired.Expiry = time.Now().Add(-time.Second)
		_, err := r.Resolve(ctx, expired, op, account)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
	})

	t.Run("absent session fails authentication", func(t *testing.T) {
		_, err := r.Resolve(ctx, custodial.Session{}, op, account)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
	})
}

func TestResolve_UserApprovalBypassesSessionKeys(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p, err := policy.NewEncoder(usdc, nil).Encode(policy.KindUSDCTransferOnly, policy.Overrides{
		MaxTransferAmount: big.NewInt(1000 * usdcUnit),
	})
	require.NoError(t, err)
	_, err = store.Issue(ctx, account, p, 0)
	require.NoError(t, err)

	r := NewResolver(store, zerolog.Nop())
	op := erc20Call(t, "transfer", payee, 5*usdcUnit)

	res, err := r.Resolve(ctx, validSession(), op, account)
	require.NoError(t, err)
	require.Equal(t, KindSession, res.Kind)

	op.RequiresUserApproval = true
	res, err = r.Resolve(ctx, validSession(), op, account)
	require.NoError(t, err)
	assert.Equal(t, KindRoot, res.Kind)
	assert.Empty(t, res.SessionKeyID)

	_, err = r.Resolve(ctx, custodial.Session{}, op, account)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
}

func TestResolve_SkipsUnusableKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	p, err := policy.NewEncoder(usdc, nil).Encode(policy.KindUSDCFullAccess, policy.Overrides{})
	require.NoError(t, err)

	expired := &sessionkey.SessionKey{ID: "expired", Policy: p, ExpiresAt: now.Add(-time.Second)}
	revoked := &sessionkey.SessionKey{ID: "revoked", Policy: p, ExpiresAt: now.Add(time.Hour), Revoked: true}

	lister := &mockLister{}
	lister.On("ListActive", mock.Anything, account).Return([]*sessionkey.SessionKey{expired, revoked}, nil)
	r := NewResolver(lister, zerolog.Nop())

	_, err = r.Resolve(ctx, validSession(), erc20Call(t, "transfer", payee, 1), account)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoAuthorizedSigner))
}

func TestResolve_ListerError(t *testing.T) {
	lister := &mockLister{}
	lister.On("ListActive", mock.Anything, account).Return(nil, errors.NewDatabaseError("boom", nil))
	r := NewResolver(lister, zerolog.Nop())

	_, err := r.Resolve(context.Background(), validSession(), erc20Call(t, "transfer", payee, 1), account)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabase))
}
