package core

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
)

// EntryPointLister reports the entry points a bundler accepts.
type EntryPointLister interface {
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// HealthChecker reports whether a chain endpoint answers.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// StartupValidationResult summarises what was checked at startup.
type StartupValidationResult struct {
	RootAddress   common.Address
	EntryPoint    common.Address
	ChainHealthy  bool
	SessionExpiry time.Time
}

// StartupValidator verifies external dependencies before the daemon serves
// requests.
type StartupValidator struct {
	log        zerolog.Logger
	entryPoint common.Address
	bundler    EntryPointLister
	chain      HealthChecker
	custodian  custodial.Signer
	root       common.Address
}

// NewStartupValidator creates a validator. chain may be nil.
func NewStartupValidator(log zerolog.Logger, entryPoint common.Address, bundler EntryPointLister, chain HealthChecker, custodian custodial.Signer, root common.Address) *StartupValidator {
	return &StartupValidator{
		log:        log.With().Str("component", "startup_validator").Logger(),
		entryPoint: entryPoint,
		bundler:    bundler,
		chain:      chain,
		custodian:  custodian,
		root:       root,
	}
}

// ValidateStartupRequirements checks the custodial session and that the
// bundler serves the configured entry point. An unhealthy chain endpoint
// is reported but not fatal.
func (sv *StartupValidator) ValidateStartupRequirements(ctx context.Context) (*StartupValidationResult, error) {
	sv.log.Info().Msg("validating startup requirements")

	sess, err := sv.custodian.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("custodial session unavailable: %w", err)
	}

	if err := sv.validateEntryPoint(ctx); err != nil {
		return nil, err
	}

	healthy := true
	if sv.chain != nil {
		healthy = sv.chain.IsHealthy(ctx)
		if !healthy {
			sv.log.Warn().Msg("no healthy chain RPC endpoint, fee lookups will fail until one recovers")
		}
	}

	sv.log.Info().
		Str("root_address", sv.root.Hex()).
		Str("entry_point", sv.entryPoint.Hex()).
		Time("session_expiry", sess.Expiry).
		Msg("startup requirements validated")

	return &StartupValidationResult{
		RootAddress:   sv.root,
		EntryPoint:    sv.entryPoint,
		ChainHealthy:  healthy,
		SessionExpiry: sess.Expiry,
	}, nil
}

// validateEntryPoint queries the bundler, retrying once with a longer timeout.
func (sv *StartupValidator) validateEntryPoint(ctx context.Context) error {
	timeouts := []time.Duration{15 * time.Second, 30 * time.Second}

	var lastErr error
	for attempt, timeout := range timeouts {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		supported, err := sv.bundler.SupportedEntryPoints(callCtx)
		cancel()

		if err == nil {
			for _, ep := range supported {
				if ep == sv.entryPoint {
					return nil
				}
			}
			return fmt.Errorf("bundler does not support entry point %s (supported: %v)", sv.entryPoint.Hex(), supported)
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < len(timeouts)-1 {
			sv.log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("timeout", timeout).
				Msg("failed to query bundler entry points, retrying")
		}
	}

	return fmt.Errorf("failed to query bundler entry points: %w", lastErr)
}
