package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/metrics"
	"github.com/pushchain/push-session-bridge/sessionClient/signer"
	"github.com/pushchain/push-session-bridge/sessionClient/store"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// SignerResolver selects the signer for an operation.
type SignerResolver interface {
	Resolve(ctx context.Context, sess custodial.Session, op userop.Operation, account common.Address) (signer.Resolution, error)
}

// Accounts resolves and deploys smart accounts.
type Accounts interface {
	Address(ctx context.Context, sess custodial.Session, owner common.Address) (*account.Account, error)
	EnsureDeployed(ctx context.Context, addr common.Address) (account.DeploymentStatus, error)
}

// Coordinator executes operations end to end. It keeps no state between
// calls.
type Coordinator struct {
	db             *gorm.DB
	resolver       SignerResolver
	accounts       Accounts
	pipeline       *pipeline
	keys           KeySigner
	custodian      custodial.Signer
	confirmTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// Execute runs op on the caller's smart account: resolve signer, ensure the
// account is deployed, resolve gas, sign, submit and await confirmation.
// A reverted operation returns a receipt with Success false and no error.
func (c *Coordinator) Execute(ctx context.Context, sc SessionContext, op userop.Operation) (*ExecutionReceipt, error) {
	start := time.Now()
	rec := &store.Execution{Status: store.ExecutionRejected}

	receipt, err := c.execute(ctx, sc, op, rec)
	if err != nil {
		rec.ErrorMsg = err.Error()
		if errors.IsCode(err, errors.ErrCodeConfirmationTimeout) {
			rec.Status = store.ExecutionTimeout
		} else if rec.TxID != "" {
			rec.Status = store.ExecutionFailed
		}
	}
	c.audit(rec)
	c.metrics.ObserveExecution(rec.SignerKind, rec.GasMode, rec.Status, time.Since(start))
	return receipt, err
}

func (c *Coordinator) execute(ctx context.Context, sc SessionContext, op userop.Operation, rec *store.Execution) (*ExecutionReceipt, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return nil, err
	}
	rec.AccountAddress = acct.Address.Hex()
	logger := c.logger.With().Str("account", acct.Address.Hex()).Str("target", op.Target.Hex()).Logger()

	res, err := c.resolver.Resolve(ctx, sc.Session, op, acct.Address)
	if err != nil {
		return nil, err
	}
	rec.SignerKind = string(res.Kind)
	rec.SessionKeyID = res.SessionKeyID

	if _, err := c.accounts.EnsureDeployed(ctx, acct.Address); err != nil {
		return nil, err
	}

	callData, err := userop.EncodeExecute(op)
	if err != nil {
		return nil, errors.NewValidationError("cannot encode operation: " + err.Error())
	}
	draft, err := c.pipeline.draft(ctx, acct.Address, callData, nil)
	if err != nil {
		return nil, err
	}

	sub, err := c.pipeline.submit(ctx, draft, c.signer(sc, res))
	if err != nil {
		return nil, err
	}
	rec.TxID = sub.TxID
	rec.UserOpHash = sub.UserOpHash.Hex()
	rec.GasMode = string(sub.Strategy.Mode)
	rec.FellBack = sub.FellBack

	logger.Info().
		Str("signer_kind", string(res.Kind)).
		Str("session_key_id", res.SessionKeyID).
		Str("gas_mode", string(sub.Strategy.Mode)).
		Bool("fell_back", sub.FellBack).
		Str("user_op_hash", sub.UserOpHash.Hex()).
		Msg("operation submitted")

	included, err := c.pipeline.relayer.AwaitConfirmation(ctx, sub.TxID, c.confirmTimeout)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeConfirmationTimeout) {
			return nil, errors.NewConfirmationTimeoutError(acct.Address.Hex(), sub.TxID)
		}
		return nil, err
	}

	receipt := &ExecutionReceipt{
		AccountAddress: acct.Address,
		TxID:           included.TxHash.Hex(),
		UserOpHash:     sub.UserOpHash,
		SignerKind:     res.Kind,
		SessionKeyID:   res.SessionKeyID,
		GasMode:        sub.Strategy.Mode,
		FellBack:       sub.FellBack,
		Success:        included.Success,
		Reason:         included.Reason,
		ActualGasCost:  included.ActualGasCost,
	}
	rec.TxID = receipt.TxID
	if included.Success {
		rec.Status = store.ExecutionConfirmed
	} else {
		rec.Status = store.ExecutionFailed
		rec.ErrorMsg = included.Reason
		logger.Warn().Str("tx_id", receipt.TxID).Str("reason", included.Reason).Msg("operation reverted")
	}
	return receipt, nil
}

// signer returns the signing function for the resolved signer.
func (c *Coordinator) signer(sc SessionContext, res signer.Resolution) signFunc {
	if res.Kind == signer.KindSession {
		return func(ctx context.Context, digest []byte) ([]byte, error) {
			sig, err := c.keys.SignHash(ctx, res.SignerAddress, digest)
			if err != nil {
				return nil, errors.NewInternalError("session key signing failed", err).
					WithContext("session_key_id", res.SessionKeyID)
			}
			return sig, nil
		}
	}
	return func(ctx context.Context, digest []byte) ([]byte, error) {
		return c.custodian.Sign(ctx, digest, sc.Owner.Hex())
	}
}

func (c *Coordinator) audit(rec *store.Execution) {
	if rec.AccountAddress == "" {
		return
	}
	if rec.SignerKind == "" {
		rec.SignerKind = "none"
	}
	if rec.GasMode == "" {
		rec.GasMode = "none"
	}
	// Audit rows are written even when the caller's context is done
	if err := c.db.Create(rec).Error; err != nil {
		c.logger.Warn().Err(err).Str("account", rec.AccountAddress).Msg("failed to record execution audit")
	}
}
