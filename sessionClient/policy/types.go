// Package policy encodes permission requests into canonical session-key
// policies and checks intended operations against them.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PermissionKind selects the defaults and constraints of a Policy.
type PermissionKind string

const (
	KindUSDCTransferOnly PermissionKind = "usdc_transfer_only"
	KindUSDCFullAccess   PermissionKind = "usdc_full_access"
	KindDeFiOperations   PermissionKind = "defi_operations"
	KindCustom           PermissionKind = "custom"
)

// unboundedLiteral is the canonical text form of Unbounded.
const unboundedLiteral = "unbounded"

// Unbounded is the sentinel maximum meaning "no transfer limit".
var Unbounded = new(uint256.Int).SetAllOne()

// ParseKind validates a permission kind string.
func ParseKind(s string) (PermissionKind, error) {
	switch k := PermissionKind(s); k {
	case KindUSDCTransferOnly, KindUSDCFullAccess, KindDeFiOperations, KindCustom:
		return k, nil
	}
	return "", fmt.Errorf("unknown permission kind %q", s)
}

// Policy is the immutable constraint set attached to a session key.
// Construct it with an Encoder; the zero value allows nothing.
type Policy struct {
	PermissionKind    PermissionKind
	MaxTransferAmount *uint256.Int // nil or zero: no transfer; Unbounded: no limit
	AllowApprovals    bool
	AllowedTargets    []common.Address // sorted, unique; empty means none
}

// IsUnbounded reports whether the policy has no transfer limit.
func (p Policy) IsUnbounded() bool {
	return p.MaxTransferAmount != nil && p.MaxTransferAmount.Eq(Unbounded)
}

// AllowsTarget reports whether addr is in AllowedTargets.
func (p Policy) AllowsTarget(addr common.Address) bool {
	i := sort.Search(len(p.AllowedTargets), func(i int) bool {
		return bytes.Compare(p.AllowedTargets[i].Bytes(), addr.Bytes()) >= 0
	})
	return i < len(p.AllowedTargets) && p.AllowedTargets[i] == addr
}

// Equal reports whether two policies are identical.
func (p Policy) Equal(o Policy) bool {
	a, errA := p.MarshalJSON()
	b, errB := o.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

type policyJSON struct {
	PermissionKind    PermissionKind `json:"permission_kind"`
	MaxTransferAmount string         `json:"max_transfer_amount"`
	AllowApprovals    bool           `json:"allow_approvals"`
	AllowedTargets    []string       `json:"allowed_targets"`
}

// MarshalJSON produces the canonical encoding: decimal amount (or
// "unbounded"), sorted checksummed targets.
func (p Policy) MarshalJSON() ([]byte, error) {
	targets := make([]string, 0, len(p.AllowedTargets))
	for _, t := range canonicalTargets(p.AllowedTargets) {
		targets = append(targets, t.Hex())
	}
	return json.Marshal(policyJSON{
		PermissionKind:    p.PermissionKind,
		MaxTransferAmount: FormatAmount(p.MaxTransferAmount),
		AllowApprovals:    p.AllowApprovals,
		AllowedTargets:    targets,
	})
}

// UnmarshalJSON decodes the canonical encoding.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw policyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(string(raw.PermissionKind))
	if err != nil {
		return err
	}
	amount, err := parseStoredAmount(raw.MaxTransferAmount)
	if err != nil {
		return err
	}
	targets := make([]common.Address, 0, len(raw.AllowedTargets))
	for _, t := range raw.AllowedTargets {
		if !common.IsHexAddress(t) {
			return fmt.Errorf("invalid target address %q", t)
		}
		targets = append(targets, common.HexToAddress(t))
	}

	*p = Policy{
		PermissionKind:    kind,
		MaxTransferAmount: amount,
		AllowApprovals:    raw.AllowApprovals,
		AllowedTargets:    canonicalTargets(targets),
	}
	return nil
}

// FormatAmount renders an amount as decimal, "unbounded" or "0" for nil.
func FormatAmount(v *uint256.Int) string {
	switch {
	case v == nil:
		return "0"
	case v.Eq(Unbounded):
		return unboundedLiteral
	default:
		return v.Dec()
	}
}

func parseStoredAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	if strings.EqualFold(s, unboundedLiteral) {
		return new(uint256.Int).Set(Unbounded), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid max_transfer_amount %q: %w", s, err)
	}
	return v, nil
}

func canonicalTargets(in []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(in))
	out := make([]common.Address, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0
	})
	return out
}
