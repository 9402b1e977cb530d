package policy

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
)

// Overrides are the caller-supplied fields of a permission request.
// Nil fields fall back to the kind's defaults.
type Overrides struct {
	MaxTransferAmount *big.Int // may be Unbounded.ToBig()
	AllowApprovals    *bool
	AllowedTargets    []common.Address
}

// Encoder turns permission requests into policies. It has no side effects.
type Encoder struct {
	usdc    common.Address
	ceiling *uint256.Int // nil: no ceiling
}

// NewEncoder creates an encoder for the given USDC contract and optional
// hard ceiling on MaxTransferAmount.
func NewEncoder(usdc common.Address, ceiling *uint256.Int) *Encoder {
	return &Encoder{usdc: usdc, ceiling: ceiling}
}

// ParseCeiling parses a decimal ceiling; empty means no ceiling.
func ParseCeiling(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return uint256.FromDecimal(s)
}

// ParseAmount parses a decimal amount or "unbounded". Negative values are
// returned as-is so Encode can reject them.
func ParseAmount(s string) (*big.Int, error) {
	if strings.EqualFold(s, unboundedLiteral) {
		return Unbounded.ToBig(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.NewInvalidPolicyError("max_transfer_amount must be a decimal integer or \"unbounded\"")
	}
	return v, nil
}

// Encode builds the canonical policy for kind. It fails with an
// INVALID_POLICY error when overrides contradict kind or the amount is out
// of range.
func (e *Encoder) Encode(kind PermissionKind, o Overrides) (Policy, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Policy{}, errors.NewInvalidPolicyError(err.Error())
	}

	amount, err := e.amount(o.MaxTransferAmount)
	if err != nil {
		return Policy{}, err
	}
	unbounded := amount != nil && amount.Eq(Unbounded)

	p := Policy{PermissionKind: kind}

	switch kind {
	case KindUSDCTransferOnly:
		if o.AllowApprovals != nil && *o.AllowApprovals {
			return Policy{}, errors.NewInvalidPolicyError("usdc_transfer_only does not permit approvals")
		}
		if err := e.onlyUSDC(kind, o.AllowedTargets); err != nil {
			return Policy{}, err
		}
		if unbounded {
			return Policy{}, errors.NewInvalidPolicyError("usdc_transfer_only requires a bounded max_transfer_amount")
		}
		p.AllowApprovals = false
		p.AllowedTargets = []common.Address{e.usdc}
		p.MaxTransferAmount = orDefault(amount, new(uint256.Int))

	case KindUSDCFullAccess:
		if o.AllowApprovals != nil && !*o.AllowApprovals {
			return Policy{}, errors.NewInvalidPolicyError("usdc_full_access always permits approvals")
		}
		if err := e.onlyUSDC(kind, o.AllowedTargets); err != nil {
			return Policy{}, err
		}
		if amount != nil && !unbounded {
			return Policy{}, errors.NewInvalidPolicyError("usdc_full_access has no transfer limit; use usdc_transfer_only or custom")
		}
		if e.ceiling != nil {
			return Policy{}, errors.NewInvalidPolicyError("usdc_full_access is unavailable while a max_transfer_ceiling is configured")
		}
		p.AllowApprovals = true
		p.AllowedTargets = []common.Address{e.usdc}
		p.MaxTransferAmount = new(uint256.Int).Set(Unbounded)

	case KindDeFiOperations:
		p.AllowApprovals = true
		if o.AllowApprovals != nil {
			p.AllowApprovals = *o.AllowApprovals
		}
		p.AllowedTargets = canonicalTargets(append([]common.Address{e.usdc}, o.AllowedTargets...))
		p.MaxTransferAmount = orDefault(amount, e.limit())

	case KindCustom:
		if amount == nil || o.AllowApprovals == nil || o.AllowedTargets == nil {
			return Policy{}, errors.NewInvalidPolicyError("custom policies require max_transfer_amount, allow_approvals and allowed_targets")
		}
		p.AllowApprovals = *o.AllowApprovals
		p.AllowedTargets = canonicalTargets(o.AllowedTargets)
		p.MaxTransferAmount = amount
	}

	return p, nil
}

// amount converts and range-checks the override. Nil means "not given".
func (e *Encoder) amount(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, nil
	}
	if v.Sign() < 0 {
		return nil, errors.NewInvalidPolicyError("max_transfer_amount must not be negative")
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.NewInvalidPolicyError("max_transfer_amount exceeds 256 bits")
	}
	if e.ceiling == nil {
		return amount, nil
	}
	if amount.Eq(Unbounded) {
		return nil, errors.NewInvalidPolicyError("unbounded max_transfer_amount is not allowed with a configured ceiling of " + e.ceiling.Dec())
	}
	if amount.Gt(e.ceiling) {
		return nil, errors.NewInvalidPolicyError("max_transfer_amount exceeds the configured ceiling of " + e.ceiling.Dec())
	}
	return amount, nil
}

// limit is the widest amount the encoder grants: the ceiling when one is
// configured, Unbounded otherwise.
func (e *Encoder) limit() *uint256.Int {
	if e.ceiling != nil {
		return new(uint256.Int).Set(e.ceiling)
	}
	return new(uint256.Int).Set(Unbounded)
}

func (e *Encoder) onlyUSDC(kind PermissionKind, targets []common.Address) error {
	for _, t := range targets {
		if t != e.usdc {
			return errors.NewInvalidPolicyError(string(kind) + " only permits the USDC contract as target, got " + t.Hex())
		}
	}
	return nil
}

func orDefault(v, def *uint256.Int) *uint256.Int {
	if v == nil {
		return def
	}
	return v
}
