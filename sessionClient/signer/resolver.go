// Package signer decides, per operation, whether the root custodial key or
// an active session key signs.
package signer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/sessionkey"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// Kind identifies which key signs an operation.
type Kind string

const (
	KindRoot    Kind = "root"
	KindSession Kind = "session"
)

// Resolution is the outcome of signer selection.
type Resolution struct {
	Kind          Kind
	SessionKeyID  string         // set for KindSession
	SignerAddress common.Address // session signer address; zero for KindRoot
}

// KeyLister lists a smart account's active session keys, newest first.
type KeyLister interface {
	ListActive(ctx context.Context, owner common.Address) ([]*sessionkey.SessionKey, error)
}

// Resolver selects signers. It never writes state.
type Resolver struct {
	keys   KeyLister
	now    func() time.Time
	logger zerolog.Logger
}

// NewResolver creates a resolver over the given key lister.
func NewResolver(keys KeyLister, logger zerolog.Logger) *Resolver {
	return &Resolver{
		keys:   keys,
		now:    time.Now,
		logger: logger.With().Str("component", "signer_resolver").Logger(),
	}
}

// Resolve picks the signer for op on account. Operations marked
// RequiresUserApproval are never delegated: they go to the root key while
// the custodial session is valid. Everything else takes the newest active
// session key whose policy covers op, or fails with NO_AUTHORIZED_SIGNER.
func (r *Resolver) Resolve(ctx context.Context, sess custodial.Session, op userop.Operation, account common.Address) (Resolution, error) {
	now := r.now()
	if op.RequiresUserApproval {
		return r.root(sess, op, account, now)
	}

	active, err := r.keys.ListActive(ctx, account)
	if err != nil {
		return Resolution{}, err
	}

	for _, key := range active {
		if !key.Usable(now, op) {
			continue
		}
		r.logger.Debug().
			Str("account", account.Hex()).
			Str("session_key_id", key.ID).
			Str("target", op.Target.Hex()).
			Msg("resolved session signer")
		return Resolution{
			Kind:          KindSession,
			SessionKeyID:  key.ID,
			SignerAddress: key.SignerAddress,
		}, nil
	}

	return Resolution{}, errors.NewNoAuthorizedSignerError(
		account.Hex(),
		"no active session key permits this operation and it is not marked for user approval",
	)
}

func (r *Resolver) root(sess custodial.Session, op userop.Operation, account common.Address, now time.Time) (Resolution, error) {
	if !sess.Valid(now) {
		return Resolution{}, errors.NewAuthenticationError("operation requires user approval but the custodial session is absent or expired")
	}

	r.logger.Debug().
		Str("account", account.Hex()).
		Str("target", op.Target.Hex()).
		Msg("resolved root signer")
	return Resolution{Kind: KindRoot}, nil
}
