// Package gas decides how an operation's gas is paid: through a sponsor
// (paymaster) or from the account's own funds, with a single fallback.
package gas

import (
	"context"
	"math/big"

	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// Mode is the gas payment mode.
type Mode string

const (
	ModeSponsored  Mode = "sponsored"
	ModeUserFunded Mode = "user_funded"
)

// Sponsorship is a sponsor's commitment to pay for an operation.
type Sponsorship struct {
	PaymasterAndData     []byte
	CallGasLimit         uint64 // zero keeps the operation's value
	VerificationGasLimit uint64
	PreVerificationGas   uint64
}

// Sponsor asks a paymaster service to cover an operation.
type Sponsor interface {
	Sponsor(ctx context.Context, op *userop.UserOperation) (*Sponsorship, error)
}

// FeeOracle returns the network's current base fee and priority fee in wei.
type FeeOracle interface {
	SuggestFees(ctx context.Context) (baseFee *big.Int, tip *big.Int, err error)
}

// Strategy is the resolved gas payment for one submission.
type Strategy struct {
	Mode                 Mode
	PaymasterAndData     []byte
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Sponsorship          *Sponsorship // set for ModeSponsored
}

// Apply writes the strategy's fee and paymaster fields into op.
// Sponsored operations carry zero fee fields.
func (s Strategy) Apply(op *userop.UserOperation) {
	op.MaxFeePerGas = new(big.Int)
	op.MaxPriorityFeePerGas = new(big.Int)
	op.PaymasterAndData = nil

	switch s.Mode {
	case ModeSponsored:
		op.PaymasterAndData = append([]byte{}, s.PaymasterAndData...)
		if sp := s.Sponsorship; sp != nil {
			if sp.CallGasLimit > 0 {
				op.CallGasLimit = sp.CallGasLimit
			}
			if sp.VerificationGasLimit > 0 {
				op.VerificationGasLimit = sp.VerificationGasLimit
			}
			if sp.PreVerificationGas > 0 {
				op.PreVerificationGas = sp.PreVerificationGas
			}
		}
	case ModeUserFunded:
		if s.MaxFeePerGas != nil {
			op.MaxFeePerGas = new(big.Int).Set(s.MaxFeePerGas)
		}
		if s.MaxPriorityFeePerGas != nil {
			op.MaxPriorityFeePerGas = new(big.Int).Set(s.MaxPriorityFeePerGas)
		}
	}
}
