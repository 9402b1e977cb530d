package account

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/store"
)

// State owns the smart account records and their deployment.
type State struct {
	db       *gorm.DB
	factory  Factory
	deployer Deployer
	code     CodeChecker // optional
	inflight singleflight.Group
	now      func() time.Time
	logger   zerolog.Logger
}

// NewState creates the account state tracker. code may be nil, which
// disables on-chain detection of accounts deployed out of band.
func NewState(db *gorm.DB, factory Factory, deployer Deployer, code CodeChecker, logger zerolog.Logger) *State {
	return &State{
		db:       db,
		factory:  factory,
		deployer: deployer,
		code:     code,
		now:      time.Now,
		logger:   logger.With().Str("component", "account_state").Logger(),
	}
}

// Address returns owner's smart account, creating the record on first request.
func (s *State) Address(ctx context.Context, sess custodial.Session, owner common.Address) (*Account, error) {
	if !sess.Valid(s.now()) {
		return nil, errors.NewAuthenticationError("custodial session is absent or expired")
	}

	addr, salt := s.factory.AccountAddress(owner)
	rec := &store.SmartAccount{
		AccountAddress:      addr.Hex(),
		OwnerAddress:        owner.Hex(),
		OwnerOrganizationID: sess.OrganizationID,
		Salt:                salt.Hex(),
		DeploymentStatus:    store.StatusNotDeployed,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_address"}}, DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return nil, errors.NewDatabaseError("failed to create smart account record", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info().
			Str("account", addr.Hex()).
			Str("owner", owner.Hex()).
			Str("organization_id", sess.OrganizationID).
			Msg("registered smart account")
		s.detectDeployed(ctx, addr)
	}

	return s.Get(ctx, addr)
}

// Get returns the account record, or NOT_FOUND.
func (s *State) Get(ctx context.Context, addr common.Address) (*Account, error) {
	rec, err := s.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec), nil
}

// Status returns the current deployment status.
func (s *State) Status(ctx context.Context, addr common.Address) (DeploymentStatus, error) {
	acct, err := s.Get(ctx, addr)
	if err != nil {
		return "", err
	}
	return acct.Status, nil
}

// EnsureDeployed deploys the account if needed. A deployed account returns
// immediately. Concurrent callers for the same address share one in-flight
// attempt and observe its outcome; at most one deployment is submitted.
func (s *State) EnsureDeployed(ctx context.Context, addr common.Address) (DeploymentStatus, error) {
	acct, err := s.Get(ctx, addr)
	if err != nil {
		return "", err
	}
	if acct.Status == StatusDeployed {
		return StatusDeployed, nil
	}

	// The shared attempt must not die with the first caller's context
	workCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(addr.Hex(), func() (interface{}, error) {
		return s.deploy(workCtx, addr)
	})

	select {
	case <-ctx.Done():
		return StatusDeploying, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return StatusError, res.Err
		}
		return res.Val.(DeploymentStatus), nil
	}
}

func (s *State) deploy(ctx context.Context, addr common.Address) (DeploymentStatus, error) {
	acct, err := s.Get(ctx, addr)
	if err != nil {
		return "", err
	}
	if acct.Status == StatusDeployed {
		return StatusDeployed, nil
	}
	if s.detectDeployed(ctx, addr) {
		return StatusDeployed, nil
	}

	// A stale "deploying" row can only come from a previous process
	if err := s.transition(ctx, addr, StatusDeploying, map[string]any{"last_error": ""},
		StatusNotDeployed, StatusError, StatusDeploying); err != nil {
		return "", err
	}

	logger := s.logger.With().Str("account", addr.Hex()).Logger()
	logger.Info().Str("previous_status", string(acct.Status)).Msg("submitting account deployment")

	txID, err := s.deployer.SubmitDeployment(ctx, *acct)
	if err != nil {
		return s.fail(ctx, addr, err)
	}
	if err := s.transition(ctx, addr, StatusDeploying, map[string]any{"deploy_tx_id": txID}, StatusDeploying); err != nil {
		return "", err
	}

	if err := s.deployer.AwaitDeployment(ctx, *acct, txID); err != nil {
		return s.fail(ctx, addr, err)
	}

	if err := s.transition(ctx, addr, StatusDeployed, nil, StatusDeploying); err != nil {
		return "", err
	}
	logger.Info().Str("tx_id", txID).Msg("account deployed")
	return StatusDeployed, nil
}

func (s *State) fail(ctx context.Context, addr common.Address, cause error) (DeploymentStatus, error) {
	s.logger.Error().Err(cause).Str("account", addr.Hex()).Msg("account deployment failed")
	if err := s.transition(ctx, addr, StatusError, map[string]any{"last_error": cause.Error()}, StatusDeploying); err != nil {
		s.logger.Warn().Err(err).Str("account", addr.Hex()).Msg("failed to record deployment error")
	}
	return StatusError, errors.NewDeploymentError(addr.Hex(), cause)
}

// detectDeployed marks the account deployed when code already exists on chain.
func (s *State) detectDeployed(ctx context.Context, addr common.Address) bool {
	if s.code == nil {
		return false
	}
	has, err := s.code.HasCode(ctx, addr)
	if err != nil {
		s.logger.Warn().Err(err).Str("account", addr.Hex()).Msg("code check failed")
		return false
	}
	if !has {
		return false
	}
	if err := s.transition(ctx, addr, StatusDeployed, nil,
		StatusNotDeployed, StatusError, StatusDeploying); err != nil {
		s.logger.Warn().Err(err).Str("account", addr.Hex()).Msg("failed to record out-of-band deployment")
		return false
	}
	s.logger.Info().Str("account", addr.Hex()).Msg("account already deployed on chain")
	return true
}

// transition moves the account to status if it is currently in one of from.
func (s *State) transition(ctx context.Context, addr common.Address, to DeploymentStatus, fields map[string]any, from ...DeploymentStatus) error {
	update := map[string]any{"deployment_status": string(to)}
	for k, v := range fields {
		update[k] = v
	}
	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, string(f))
	}

	result := s.db.WithContext(ctx).Model(&store.SmartAccount{}).
		Where("account_address = ? AND deployment_status IN ?", addr.Hex(), allowed).
		Updates(update)
	if result.Error != nil {
		return errors.NewDatabaseError("failed to update deployment status", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewInternalError("illegal deployment transition to "+string(to)+" for "+addr.Hex(), nil)
	}
	return nil
}

func (s *State) load(ctx context.Context, addr common.Address) (*store.SmartAccount, error) {
	var rec store.SmartAccount
	err := s.db.WithContext(ctx).Where("account_address = ?", addr.Hex()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFoundError("smart account " + addr.Hex() + " not found")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load smart account", err)
	}
	return &rec, nil
}
