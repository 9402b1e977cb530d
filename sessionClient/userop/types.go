// Package userop models ERC-4337 (EntryPoint v0.6) user operations: the
// intended call a caller asks to execute, the packed operation submitted to
// the bundler, its hash and the account calldata encoding.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Operation is a single call a caller wants the smart account to perform.
type Operation struct {
	Target common.Address `json:"target"`
	Value  *big.Int       `json:"value,omitempty"` // native value in wei
	Data   []byte         `json:"data,omitempty"`  // call data sent to Target
	// RequiresUserApproval marks non-delegable operations that only the
	// root custodial key may sign.
	RequiresUserApproval bool `json:"requires_user_approval"`
}

// NativeValue returns the native value, treating nil as zero.
func (o Operation) NativeValue() *big.Int {
	if o.Value == nil {
		return new(big.Int)
	}
	return o.Value
}

// UserOperation represents an EIP-4337 v0.6 user operation.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         uint64         `json:"callGasLimit"`
	VerificationGasLimit uint64         `json:"verificationGasLimit"`
	PreVerificationGas   uint64         `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"` // first 20 bytes = paymaster address
	Signature            []byte         `json:"signature"`
}

// PaymasterAddress extracts the paymaster address from PaymasterAndData.
// Returns zero address if no paymaster.
func (op *UserOperation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < 20 {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:20])
}

// HasPaymaster returns true if this operation has a paymaster.
func (op *UserOperation) HasPaymaster() bool {
	return len(op.PaymasterAndData) >= 20 && op.PaymasterAddress() != (common.Address{})
}

// TotalGasLimit returns total gas required for the operation.
func (op *UserOperation) TotalGasLimit() uint64 {
	return op.CallGasLimit + op.VerificationGasLimit + op.PreVerificationGas
}

// Copy returns a deep copy of op.
func (op *UserOperation) Copy() *UserOperation {
	cpy := *op
	cpy.Nonce = copyBig(op.Nonce)
	cpy.MaxFeePerGas = copyBig(op.MaxFeePerGas)
	cpy.MaxPriorityFeePerGas = copyBig(op.MaxPriorityFeePerGas)
	cpy.InitCode = common.CopyBytes(op.InitCode)
	cpy.CallData = common.CopyBytes(op.CallData)
	cpy.PaymasterAndData = common.CopyBytes(op.PaymasterAndData)
	cpy.Signature = common.CopyBytes(op.Signature)
	return &cpy
}

// RPCUserOperation is the hex-encoded wire form accepted by bundlers.
type RPCUserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         hexutil.Uint64 `json:"callGasLimit"`
	VerificationGasLimit hexutil.Uint64 `json:"verificationGasLimit"`
	PreVerificationGas   hexutil.Uint64 `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// ToRPC converts op into its wire form. Nil amounts encode as 0x0.
func (op *UserOperation) ToRPC() *RPCUserOperation {
	return &RPCUserOperation{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(safeBig(op.Nonce)),
		InitCode:             nonNilBytes(op.InitCode),
		CallData:             nonNilBytes(op.CallData),
		CallGasLimit:         hexutil.Uint64(op.CallGasLimit),
		VerificationGasLimit: hexutil.Uint64(op.VerificationGasLimit),
		PreVerificationGas:   hexutil.Uint64(op.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(safeBig(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(safeBig(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     nonNilBytes(op.PaymasterAndData),
		Signature:            nonNilBytes(op.Signature),
	}
}

func safeBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func nonNilBytes(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
