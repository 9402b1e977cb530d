package core

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/signer"
)

// SessionContext carries the caller's custodial session and root key owner
// through every request. It is never stored globally.
type SessionContext struct {
	Session custodial.Session `json:"session"`
	Owner   common.Address    `json:"owner"` // root key address; also its custodial key reference
}

// ExecutionReceipt is the terminal outcome of an executed operation.
type ExecutionReceipt struct {
	AccountAddress common.Address `json:"account_address"`
	TxID           string         `json:"tx_id"`        // on-chain transaction hash
	UserOpHash     common.Hash    `json:"user_op_hash"` // bundler tracking id
	SignerKind     signer.Kind    `json:"signer_kind"`
	SessionKeyID   string         `json:"session_key_id,omitempty"`
	GasMode        gas.Mode       `json:"gas_mode"`
	FellBack       bool           `json:"fell_back"`
	Success        bool           `json:"success"`
	Reason         string         `json:"reason,omitempty"`
	ActualGasCost  *big.Int       `json:"actual_gas_cost,omitempty"`
}

// GasLimits are the gas limits placed on operations before sponsorship
// adjusts them.
type GasLimits struct {
	CallGasLimit               uint64
	VerificationGasLimit       uint64
	DeployVerificationGasLimit uint64
	PreVerificationGas         uint64
}

// DefaultGasLimits are conservative limits for a single execute call.
var DefaultGasLimits = GasLimits{
	CallGasLimit:               200_000,
	VerificationGasLimit:       150_000,
	DeployVerificationGasLimit: 1_000_000,
	PreVerificationGas:         60_000,
}

// KeySigner signs digests with session key material.
type KeySigner interface {
	SignHash(ctx context.Context, addr common.Address, hash []byte) ([]byte, error)
	Has(addr common.Address) bool
}

// ExecutionRecord is an audit row as exposed to callers.
type ExecutionRecord struct {
	AccountAddress string    `json:"account_address"`
	UserOpHash     string    `json:"user_op_hash,omitempty"`
	TxID           string    `json:"tx_id,omitempty"`
	SignerKind     string    `json:"signer_kind"`
	SessionKeyID   string    `json:"session_key_id,omitempty"`
	GasMode        string    `json:"gas_mode"`
	FellBack       bool      `json:"fell_back"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
