package relayer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 120 * time.Second
)

var _ Relayer = &BundlerClient{}

// BundlerClient talks to an ERC-4337 bundler over JSON-RPC.
type BundlerClient struct {
	client       *rpc.Client
	entryPoint   common.Address
	pollInterval time.Duration
	maxWait      time.Duration // applied when AwaitConfirmation gets no timeout
	logger       zerolog.Logger
}

// NewBundlerClient dials the bundler at url.
func NewBundlerClient(ctx context.Context, url string, entryPoint common.Address, pollInterval time.Duration, logger zerolog.Logger) (*BundlerClient, error) {
	if url == "" {
		return nil, errors.NewConfigError("bundler url is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.NewNetworkError("failed to dial bundler", err)
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &BundlerClient{
		client:       client,
		entryPoint:   entryPoint,
		pollInterval: pollInterval,
		maxWait:      defaultConfirmTimeout,
		logger:       logger.With().Str("component", "bundler_client").Logger(),
	}, nil
}

// Submit sends a signed operation with eth_sendUserOperation.
func (b *BundlerClient) Submit(ctx context.Context, op *userop.UserOperation, strategy gas.Strategy) (string, error) {
	if len(op.Signature) == 0 {
		return "", errors.NewValidationError("user operation is not signed")
	}
	if strategy.Mode == gas.ModeSponsored && !op.HasPaymaster() {
		return "", errors.NewValidationError("sponsored user operation has no paymaster")
	}

	var hash common.Hash
	if err := b.client.CallContext(ctx, &hash, "eth_sendUserOperation", op.ToRPC(), b.entryPoint); err != nil {
		b.logger.Warn().
			Err(err).
			Str("sender", op.Sender.Hex()).
			Str("gas_mode", string(strategy.Mode)).
			Msg("bundler rejected user operation")
		return "", classify("eth_sendUserOperation", err)
	}

	b.logger.Info().
		Str("sender", op.Sender.Hex()).
		Str("user_op_hash", hash.Hex()).
		Str("gas_mode", string(strategy.Mode)).
		Msg("user operation submitted")
	return hash.Hex(), nil
}

// AwaitConfirmation polls eth_getUserOperationReceipt until a receipt is
// available. Poll errors are logged and retried on the next tick. A
// non-positive timeout waits at most two minutes.
func (b *BundlerClient) AwaitConfirmation(ctx context.Context, txID string, timeout time.Duration) (*Receipt, error) {
	hash := common.HexToHash(txID)
	if timeout <= 0 {
		timeout = b.maxWait
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	deadline := timer.C

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.receipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Debug().Err(err).Str("user_op_hash", txID).Msg("receipt poll failed")
		} else if receipt != nil {
			b.logger.Info().
				Str("user_op_hash", txID).
				Str("tx_hash", receipt.TxHash.Hex()).
				Bool("success", receipt.Success).
				Msg("user operation included")
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			b.logger.Warn().Str("user_op_hash", txID).Dur("timeout", timeout).Msg("confirmation wait expired")
			return nil, errors.NewConfirmationTimeoutError("", txID)
		case <-ticker.C:
		}
	}
}

func (b *BundlerClient) receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw *rpcReceipt
	if err := b.client.CallContext(ctx, &raw, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, classify("eth_getUserOperationReceipt", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toReceipt(), nil
}

// SupportedEntryPoints returns the entry points the bundler accepts.
func (b *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := b.client.CallContext(ctx, &out, "eth_supportedEntryPoints"); err != nil {
		return nil, classify("eth_supportedEntryPoints", err)
	}
	return out, nil
}

// Close closes the connection.
func (b *BundlerClient) Close() {
	b.client.Close()
}
