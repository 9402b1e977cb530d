package policy

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"

	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// CallClass is the category of an intended call as seen by a policy.
type CallClass int

const (
	CallOther CallClass = iota
	CallNativeTransfer
	CallTransfer
	CallApproval
	CallMalformed
)

func (c CallClass) String() string {
	switch c {
	case CallNativeTransfer:
		return "native_transfer"
	case CallTransfer:
		return "transfer"
	case CallApproval:
		return "approval"
	case CallMalformed:
		return "malformed"
	}
	return "other"
}

const erc20ABIJSON = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"increaseAllowance","inputs":[{"name":"spender","type":"address"},{"name":"addedValue","type":"uint256"}]}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("policy: invalid erc20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// Classify decodes the call's selector and returns its class and the token
// amount it moves or approves. Native transfers report the native value.
func Classify(op userop.Operation) (CallClass, *big.Int) {
	if len(op.Data) == 0 {
		if op.NativeValue().Sign() > 0 {
			return CallNativeTransfer, op.NativeValue()
		}
		return CallOther, new(big.Int)
	}
	if len(op.Data) < 4 {
		return CallOther, new(big.Int)
	}

	method, err := erc20ABI.MethodById(op.Data[:4])
	if err != nil {
		return CallOther, new(big.Int)
	}

	args, err := method.Inputs.Unpack(op.Data[4:])
	if err != nil || len(args) == 0 {
		return CallMalformed, nil
	}
	amount, ok := args[len(args)-1].(*big.Int)
	if !ok {
		return CallMalformed, nil
	}

	switch method.Name {
	case "approve", "increaseAllowance":
		return CallApproval, amount
	default:
		return CallTransfer, amount
	}
}

// IsSatisfiedBy reports whether op falls within the policy's bounds.
func (p Policy) IsSatisfiedBy(op userop.Operation) bool {
	if !p.AllowsTarget(op.Target) {
		return false
	}

	// Native value attached to any call counts against the limit
	if v := op.NativeValue(); v.Sign() > 0 && !p.withinLimit(v) {
		return false
	}

	class, amount := Classify(op)
	switch class {
	case CallNativeTransfer:
		return true
	case CallTransfer:
		return p.withinLimit(amount)
	case CallApproval:
		return p.AllowApprovals && p.withinLimit(amount)
	case CallMalformed:
		return false
	default:
		return p.PermissionKind == KindDeFiOperations || p.PermissionKind == KindCustom
	}
}

// withinLimit: zero or nil max allows nothing, Unbounded allows everything.
func (p Policy) withinLimit(amount *big.Int) bool {
	if p.MaxTransferAmount == nil || p.MaxTransferAmount.IsZero() {
		return false
	}
	if p.IsUnbounded() {
		return true
	}
	v, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return false
	}
	return !v.Gt(p.MaxTransferAmount)
}
