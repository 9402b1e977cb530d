// Package relayer submits user operations to an ERC-4337 bundler, requests
// paymaster sponsorship and reads chain state needed to build operations.
package relayer

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// Relayer submits signed operations and waits for their inclusion.
type Relayer interface {
	// Submit sends op and returns the bundler's tracking id (the userOpHash).
	Submit(ctx context.Context, op *userop.UserOperation, strategy gas.Strategy) (string, error)
	// AwaitConfirmation polls until the operation is included, the timeout
	// elapses (CONFIRMATION_TIMEOUT) or ctx is done.
	AwaitConfirmation(ctx context.Context, txID string, timeout time.Duration) (*Receipt, error)
}

// NonceSource returns the EntryPoint nonce of a smart account.
type NonceSource interface {
	Nonce(ctx context.Context, sender common.Address) (*big.Int, error)
}

// Receipt is the outcome of an included user operation.
type Receipt struct {
	UserOpHash    common.Hash
	TxHash        common.Hash
	Sender        common.Address
	Success       bool
	Reason        string
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
	BlockNumber   uint64
}

// rpcReceipt is the eth_getUserOperationReceipt result.
type rpcReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash    `json:"transactionHash"`
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	} `json:"receipt"`
}

func (r *rpcReceipt) toReceipt() *Receipt {
	return &Receipt{
		UserOpHash:    r.UserOpHash,
		TxHash:        r.Receipt.TransactionHash,
		Sender:        r.Sender,
		Success:       r.Success,
		Reason:        r.Reason,
		ActualGasCost: (*big.Int)(r.ActualGasCost),
		ActualGasUsed: (*big.Int)(r.ActualGasUsed),
		BlockNumber:   uint64(r.Receipt.BlockNumber),
	}
}

// dummySignature lets bundlers and paymasters simulate an unsigned operation.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")
