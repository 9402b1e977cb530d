package custodial

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
)

const testRootKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestSigner(t *testing.T) *LocalSigner {
	t.Helper()
	s, err := NewLocalSigner(testRootKey, "org-1", "user-1", time.Hour, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestNewLocalSigner(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		s := newTestSigner(t)
		key, err := crypto.HexToECDSA(testRootKey[2:])
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := NewLocalSigner("zz", "org-1", "", time.Hour, zerolog.Nop())
		assert.True(t, errors.IsCode(err, errors.ErrCodeConfig))
	})

	t.Run("missing organization", func(t *testing.T) {
		_, err := NewLocalSigner(testRootKey, "", "", time.Hour, zerolog.Nop())
		assert.True(t, errors.IsCode(err, errors.ErrCodeConfig))
	})
}

func TestLocalSigner_Session(t *testing.T) {
	ctx := context.Background()
	s := newTestSigner(t)

	sess, err := s.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org-1", sess.OrganizationID)
	assert.Equal(t, "user-1", sess.UserID)
	assert.True(t, sess.Valid(time.Now()))

	s.Logout()
	_, err = s.GetSession(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))

	s.Refresh()
	_, err = s.GetSession(ctx)
	assert.NoError(t, err)
}

func TestLocalSigner_ExpiresWithClock(t *testing.T) {
	s := newTestSigner(t)
	base := time.Now()
	s.now = func() time.Time { return base.Add(2 * time.Hour) }

	_, err := s.GetSession(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
}

func TestLocalSigner_Sign(t *testing.T) {
	ctx := context.Background()
	s := newTestSigner(t)
	digest := crypto.Keccak256([]byte("payload"))

	sig, err := s.Sign(ctx, digest, s.Address().Hex())
	require.NoError(t, err)
	require.Len(t, sig, 65)

	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))

	_, err = s.Sign(ctx, digest, "0x0000000000000000000000000000000000000001")
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))

	_, err = s.Sign(ctx, []byte("short"), s.Address().Hex())
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	s.Logout()
	_, err = s.Sign(ctx, digest, s.Address().Hex())
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
}
