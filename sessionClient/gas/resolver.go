package gas

import (
	"context"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// Config holds the process-wide sponsorship flags.
type Config struct {
	SponsorshipEnabled  bool
	FallbackToUserFunds bool
}

// Resolver creates per-operation gas plans.
type Resolver struct {
	cfg         Config
	sponsor     Sponsor
	fees        FeeOracle
	retryConfig *errors.RetryConfig
	logger      zerolog.Logger
}

// NewResolver creates a gas resolver. sponsor may be nil when sponsorship
// is disabled.
func NewResolver(cfg Config, sponsor Sponsor, fees FeeOracle, logger zerolog.Logger) *Resolver {
	if sponsor == nil {
		cfg.SponsorshipEnabled = false
	}
	return &Resolver{
		cfg:         cfg,
		sponsor:     sponsor,
		fees:        fees,
		retryConfig: errors.DefaultRetryConfig(),
		logger:      logger.With().Str("component", "gas_resolver").Logger(),
	}
}

// Begin starts the gas plan for one logical operation. Each plan falls back
// to user funds at most once; a new plan starts sponsored again.
func (r *Resolver) Begin(op *userop.UserOperation) *Plan {
	return &Plan{resolver: r, op: op}
}

// Plan tracks the gas strategy of one logical operation.
type Plan struct {
	resolver *Resolver
	op       *userop.UserOperation

	mu        sync.Mutex
	sponsored bool // a sponsored strategy was attempted
	fellBack  bool
}

// FellBack reports whether the plan has switched to user funds after a
// sponsorship failure.
func (p *Plan) FellBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fellBack
}

// Initial returns the first strategy. With sponsorship enabled it asks the
// sponsor; a sponsor rejection is treated as the plan's one failure.
func (p *Plan) Initial(ctx context.Context) (Strategy, error) {
	r := p.resolver
	if !r.cfg.SponsorshipEnabled {
		return r.userFunded(ctx)
	}

	p.mu.Lock()
	p.sponsored = true
	p.mu.Unlock()

	sp, err := r.sponsor.Sponsor(ctx, p.op)
	if err == nil && (sp == nil || len(sp.PaymasterAndData) < 20) {
		err = errors.NewRPCError("sponsor returned no paymaster data", nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Strategy{}, ctx.Err()
		}
		r.logger.Warn().Err(err).Str("sender", p.op.Sender.Hex()).Msg("sponsorship request failed")
		return p.Fallback(ctx, err)
	}

	return Strategy{
		Mode:                 ModeSponsored,
		PaymasterAndData:     sp.PaymasterAndData,
		MaxFeePerGas:         new(big.Int),
		MaxPriorityFeePerGas: new(big.Int),
		Sponsorship:          sp,
	}, nil
}

// Fallback switches the plan to user funds after a sponsored attempt
// failed with cause. It succeeds once per plan and only when fallback is
// enabled; otherwise it returns GAS_SPONSORSHIP.
func (p *Plan) Fallback(ctx context.Context, cause error) (Strategy, error) {
	r := p.resolver
	sender := p.op.Sender.Hex()

	p.mu.Lock()
	switch {
	case !p.sponsored:
		p.mu.Unlock()
		return Strategy{}, errors.NewGasSponsorshipError(sender, "no sponsored attempt to fall back from", cause)
	case p.fellBack:
		p.mu.Unlock()
		return Strategy{}, errors.NewGasSponsorshipError(sender, "sponsorship failed after fallback was already used", cause)
	case !r.cfg.FallbackToUserFunds:
		p.mu.Unlock()
		return Strategy{}, errors.NewGasSponsorshipError(sender, "sponsorship failed and fallback to user funds is disabled", cause)
	}
	p.fellBack = true
	p.mu.Unlock()

	r.logger.Info().Str("sender", sender).Msg("falling back to user-funded gas")
	return r.userFunded(ctx)
}

// userFunded fetches live fees: maxFee = 2*baseFee + tip, tip >= 1 wei.
func (r *Resolver) userFunded(ctx context.Context) (Strategy, error) {
	var baseFee, tip *big.Int
	err := errors.RetryWithConfig(ctx, func() error {
		var err error
		baseFee, tip, err = r.fees.SuggestFees(ctx)
		return err
	}, r.retryConfig)
	if err != nil {
		return Strategy{}, err
	}

	if tip == nil || tip.Sign() <= 0 {
		tip = big.NewInt(1)
	}
	if baseFee == nil || baseFee.Sign() < 0 {
		baseFee = new(big.Int)
	}
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	return Strategy{
		Mode:                 ModeUserFunded,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(tip),
	}, nil
}
