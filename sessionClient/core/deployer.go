package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

var _ account.Deployer = &opDeployer{}

// opDeployer deploys a smart account by submitting a root-signed user
// operation whose initCode calls the account factory.
type opDeployer struct {
	pipeline       *pipeline
	factory        common.Address
	custodian      custodial.Signer
	confirmTimeout time.Duration
	logger         zerolog.Logger
}

// SubmitDeployment submits the deployment operation and returns its id.
func (d *opDeployer) SubmitDeployment(ctx context.Context, acct account.Account) (string, error) {
	initCode, err := userop.InitCode(d.factory, acct.OwnerAddress, acct.SaltIndex())
	if err != nil {
		return "", errors.NewInternalError("failed to encode init code", err)
	}
	// A zero-value self call; the account only needs to exist afterwards
	callData, err := userop.EncodeExecute(userop.Operation{Target: acct.Address})
	if err != nil {
		return "", errors.NewInternalError("failed to encode deployment call", err)
	}

	draft, err := d.pipeline.draft(ctx, acct.Address, callData, initCode)
	if err != nil {
		return "", err
	}

	keyRef := acct.OwnerAddress.Hex()
	sub, err := d.pipeline.submit(ctx, draft, func(ctx context.Context, digest []byte) ([]byte, error) {
		return d.custodian.Sign(ctx, digest, keyRef)
	})
	if err != nil {
		return "", err
	}

	d.logger.Info().
		Str("account", acct.Address.Hex()).
		Str("user_op_hash", sub.UserOpHash.Hex()).
		Str("gas_mode", string(sub.Strategy.Mode)).
		Msg("deployment operation submitted")
	return sub.TxID, nil
}

// AwaitDeployment waits for the deployment operation to be included and
// succeed.
func (d *opDeployer) AwaitDeployment(ctx context.Context, acct account.Account, txID string) error {
	receipt, err := d.pipeline.relayer.AwaitConfirmation(ctx, txID, d.confirmTimeout)
	if err != nil {
		return err
	}
	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = "reverted"
		}
		return errors.NewRPCError("deployment operation "+reason, nil).
			WithContext("tx_hash", receipt.TxHash.Hex())
	}
	return nil
}
