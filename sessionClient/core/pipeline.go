package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/metrics"
	"github.com/pushchain/push-session-bridge/sessionClient/relayer"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// signFunc signs a user operation signing digest.
type signFunc func(ctx context.Context, digest []byte) ([]byte, error)

// submission is a user operation accepted by the relayer.
type submission struct {
	TxID       string
	UserOpHash common.Hash
	Strategy   gas.Strategy
	FellBack   bool
}

// pipeline prices, signs and submits user operations.
type pipeline struct {
	gas        *gas.Resolver
	relayer    relayer.Relayer
	nonces     relayer.NonceSource
	entryPoint common.Address
	chainID    *big.Int
	limits     GasLimits
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// draft returns an unsigned operation for sender with its current nonce.
func (p *pipeline) draft(ctx context.Context, sender common.Address, callData, initCode []byte) (*userop.UserOperation, error) {
	nonce, err := p.nonces.Nonce(ctx, sender)
	if err != nil {
		return nil, err
	}
	verification := p.limits.VerificationGasLimit
	if len(initCode) > 0 {
		verification = p.limits.DeployVerificationGasLimit
	}
	return &userop.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         p.limits.CallGasLimit,
		VerificationGasLimit: verification,
		PreVerificationGas:   p.limits.PreVerificationGas,
	}, nil
}

// submit resolves gas for draft, signs and submits it. A failed sponsored
// submission is rebuilt once with user-funded gas and signed again.
func (p *pipeline) submit(ctx context.Context, draft *userop.UserOperation, sign signFunc) (*submission, error) {
	plan := p.gas.Begin(draft)
	strategy, err := plan.Initial(ctx)
	if err != nil {
		return nil, err
	}

	for {
		op := draft.Copy()
		op.Signature = nil
		strategy.Apply(op)

		hash, err := userop.Hash(op, p.entryPoint, p.chainID)
		if err != nil {
			return nil, errors.NewInternalError("failed to hash user operation", err)
		}
		sig, err := sign(ctx, userop.SigningDigest(hash))
		if err != nil {
			return nil, err
		}
		op.Signature = sig

		// Nothing has left the process yet, so cancellation is still clean
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		txID, err := p.relayer.Submit(ctx, op, strategy)
		if err == nil {
			if plan.FellBack() {
				p.metrics.GasFallback()
			}
			return &submission{
				TxID:       txID,
				UserOpHash: hash,
				Strategy:   strategy,
				FellBack:   plan.FellBack(),
			}, nil
		}

		if strategy.Mode != gas.ModeSponsored || ctx.Err() != nil {
			return nil, err
		}

		p.logger.Warn().
			Err(err).
			Str("sender", op.Sender.Hex()).
			Str("user_op_hash", hash.Hex()).
			Msg("sponsored submission failed")

		strategy, err = plan.Fallback(ctx, err)
		if err != nil {
			return nil, err
		}
	}
}
