// Package core wires the session bridge together: the Client facade used by
// the API and CLI, and the Coordinator that executes operations.
package core

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/config"
	"github.com/pushchain/push-session-bridge/sessionClient/constant"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/keys"
	"github.com/pushchain/push-session-bridge/sessionClient/kvstore"
	"github.com/pushchain/push-session-bridge/sessionClient/metrics"
	"github.com/pushchain/push-session-bridge/sessionClient/policy"
	"github.com/pushchain/push-session-bridge/sessionClient/relayer"
	"github.com/pushchain/push-session-bridge/sessionClient/sessionkey"
	"github.com/pushchain/push-session-bridge/sessionClient/signer"
	"github.com/pushchain/push-session-bridge/sessionClient/store"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// Dependencies are the external capabilities a Client is built on.
type Dependencies struct {
	Custodian   custodial.Signer    // required
	RootAddress common.Address      // root key owner served by Custodian
	Relayer     relayer.Relayer     // required
	Nonces      relayer.NonceSource // required
	Fees        gas.FeeOracle       // required
	Sponsor     gas.Sponsor         // nil disables sponsorship
	Code        account.CodeChecker // nil disables out-of-band deployment detection
	Keys        keys.Generator      // nil uses an in-memory keyring
	Metrics     *metrics.Metrics    // nil records nothing
	Closers     []func()            // run by Close
}

// IssueRequest asks for a new session key.
type IssueRequest struct {
	Kind      policy.PermissionKind
	Overrides policy.Overrides
	Validity  time.Duration // <= 0 uses the configured default
}

// Client is the session bridge facade.
type Client struct {
	cfg         *config.Config
	db          *db.DB
	gdb         *gorm.DB
	keys        keys.Generator
	sessions    *sessionkey.Store
	purger      *sessionkey.Purger
	accounts    *account.State
	coordinator *Coordinator
	custodian   custodial.Signer
	rootAddress common.Address
	encoder     *policy.Encoder
	kv          *kvstore.Store
	metrics     *metrics.Metrics
	closers     []func()
	validator   *StartupValidator // set by Dial
	log         zerolog.Logger
}

// NewClient builds a Client on database from cfg and deps.
func NewClient(cfg *config.Config, database *db.DB, deps Dependencies, log zerolog.Logger) (*Client, error) {
	if deps.Custodian == nil || deps.Relayer == nil || deps.Nonces == nil || deps.Fees == nil {
		return nil, errors.NewConfigError("custodian, relayer, nonce source and fee oracle are required")
	}

	initCodeHash := common.HexToHash(cfg.AccountInitCodeHash)
	if initCodeHash == (common.Hash{}) {
		return nil, errors.NewConfigError("account_init_code_hash must be set to the factory's account init code hash")
	}

	ceiling, err := policy.ParseCeiling(cfg.MaxTransferCeiling)
	if err != nil {
		return nil, errors.NewConfigError("invalid max_transfer_ceiling: " + err.Error())
	}
	if deps.Keys == nil {
		deps.Keys = keys.NewKeyring(log)
	}

	gdb := database.Client()
	entryPoint := common.HexToAddress(cfg.EntryPointAddress)
	factory := account.Factory{
		Address:      common.HexToAddress(cfg.AccountFactoryAddress),
		InitCodeHash: initCodeHash,
	}

	sessions := sessionkey.NewStore(gdb, deps.Keys, cfg.DefaultValidity(), log)

	gasResolver := gas.NewResolver(gas.Config{
		SponsorshipEnabled:  cfg.SponsorshipEnabled,
		FallbackToUserFunds: cfg.FallbackToUserFunds,
	}, deps.Sponsor, deps.Fees, log)

	pipe := &pipeline{
		gas:        gasResolver,
		relayer:    deps.Relayer,
		nonces:     deps.Nonces,
		entryPoint: entryPoint,
		chainID:    big.NewInt(cfg.ChainID),
		limits:     DefaultGasLimits,
		metrics:    deps.Metrics,
		logger:     log.With().Str("component", "op_pipeline").Logger(),
	}

	deployer := &opDeployer{
		pipeline:       pipe,
		factory:        factory.Address,
		custodian:      deps.Custodian,
		confirmTimeout: cfg.ConfirmationTimeout(),
		logger:         log.With().Str("component", "account_deployer").Logger(),
	}
	accounts := account.NewState(gdb, factory, deployer, deps.Code, log)

	coordinator := &Coordinator{
		db:             gdb,
		resolver:       signer.NewResolver(signableKeys{store: sessions, keys: deps.Keys}, log),
		accounts:       accounts,
		pipeline:       pipe,
		keys:           deps.Keys,
		custodian:      deps.Custodian,
		confirmTimeout: cfg.ConfirmationTimeout(),
		metrics:        deps.Metrics,
		logger:         log.With().Str("component", "execution_coordinator").Logger(),
	}

	c := &Client{
		cfg:         cfg,
		db:          database,
		gdb:         gdb,
		keys:        deps.Keys,
		sessions:    sessions,
		accounts:    accounts,
		coordinator: coordinator,
		custodian:   deps.Custodian,
		rootAddress: deps.RootAddress,
		encoder:     policy.NewEncoder(common.HexToAddress(cfg.USDCAddress), ceiling),
		kv:          kvstore.New(gdb, log),
		metrics:     deps.Metrics,
		closers:     deps.Closers,
		log:         log.With().Str("component", "session_client").Logger(),
	}

	if cfg.SessionKeyRetentionSeconds > 0 {
		interval := time.Duration(cfg.PurgeIntervalSeconds) * time.Second
		retention := time.Duration(cfg.SessionKeyRetentionSeconds) * time.Second
		c.purger = sessionkey.NewPurger(sessions, database, interval, retention, log)
		c.purger.OnPurge(deps.Metrics.SessionKeysPurged)
	}

	return c, nil
}

// Start runs background jobs until ctx is done.
func (c *Client) Start(ctx context.Context) error {
	c.log.Info().Msg("starting session bridge client")
	if c.purger != nil {
		if err := c.purger.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops background jobs and releases connections and the database.
func (c *Client) Close() error {
	if c.purger != nil {
		c.purger.Stop()
	}
	for _, closeFn := range c.closers {
		closeFn()
	}
	c.log.Info().Msg("session bridge client stopped")
	return c.db.Close()
}

// ValidateStartup checks the custodial session and the dialed endpoints.
// Clients not built by Dial have nothing to validate.
func (c *Client) ValidateStartup(ctx context.Context) (*StartupValidationResult, error) {
	if c.validator == nil {
		return nil, nil
	}
	return c.validator.ValidateStartupRequirements(ctx)
}

// CurrentSession returns the custodial session of the configured root owner.
func (c *Client) CurrentSession(ctx context.Context) (SessionContext, error) {
	sess, err := c.custodian.GetSession(ctx)
	if err != nil {
		return SessionContext{}, err
	}
	return SessionContext{Session: sess, Owner: c.rootAddress}, nil
}

// Account returns the caller's smart account, registering it on first use.
func (c *Client) Account(ctx context.Context, sc SessionContext) (*account.Account, error) {
	return c.accounts.Address(ctx, sc.Session, sc.Owner)
}

// IssueSessionKey encodes the requested policy and issues a key for the
// caller's smart account. Fields left unset in the request take the
// configured default policy for the kind.
func (c *Client) IssueSessionKey(ctx context.Context, sc SessionContext, req IssueRequest) (*sessionkey.SessionKey, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return nil, err
	}

	overrides, err := c.withDefaults(req.Kind, req.Overrides)
	if err != nil {
		return nil, err
	}
	p, err := c.encoder.Encode(req.Kind, overrides)
	if err != nil {
		return nil, err
	}

	key, err := c.sessions.Issue(ctx, acct.Address, p, req.Validity)
	if err != nil {
		return nil, err
	}
	c.metrics.SessionKeyIssued(string(p.PermissionKind))

	if err := c.kv.Set(ctx, kvstore.OwnerKey(constant.KVLastSessionKeyID, acct.Address.Hex()), key.ID); err != nil {
		c.log.Warn().Err(err).Str("account", acct.Address.Hex()).Msg("failed to record last session key")
	}
	return key, nil
}

// RevokeSessionKey revokes one of the caller's session keys. Keys of other
// accounts are reported as not found.
func (c *Client) RevokeSessionKey(ctx context.Context, sc SessionContext, id string) error {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return err
	}
	key, err := c.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if key.OwnerAccountAddress != acct.Address {
		return errors.NewNotFoundError("session key " + id + " not found")
	}

	if err := c.sessions.Revoke(ctx, id); err != nil {
		return err
	}
	c.metrics.SessionKeyRevoked()

	lastKey := kvstore.OwnerKey(constant.KVLastSessionKeyID, acct.Address.Hex())
	var last string
	if c.kv.Get(ctx, lastKey, &last) && last == id {
		if err := c.kv.Delete(ctx, lastKey); err != nil {
			c.log.Warn().Err(err).Str("account", acct.Address.Hex()).Msg("failed to clear last session key")
		}
	}
	return nil
}

// ListActiveSessionKeys returns the caller's usable keys, newest first.
func (c *Client) ListActiveSessionKeys(ctx context.Context, sc SessionContext) ([]*sessionkey.SessionKey, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return nil, err
	}
	return c.sessions.ListActive(ctx, acct.Address)
}

// LastSessionKeyID returns the id of the caller's most recently issued key
// that has not been revoked through this client.
func (c *Client) LastSessionKeyID(ctx context.Context, sc SessionContext) (string, bool, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return "", false, err
	}
	var id string
	ok := c.kv.Get(ctx, kvstore.OwnerKey(constant.KVLastSessionKeyID, acct.Address.Hex()), &id)
	return id, ok, nil
}

// Execute runs op on the caller's smart account.
func (c *Client) Execute(ctx context.Context, sc SessionContext, op userop.Operation) (*ExecutionReceipt, error) {
	return c.coordinator.Execute(ctx, sc, op)
}

// EnsureAccountDeployed deploys the caller's smart account if needed.
func (c *Client) EnsureAccountDeployed(ctx context.Context, sc SessionContext) (account.DeploymentStatus, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return "", err
	}
	status, err := c.accounts.EnsureDeployed(ctx, acct.Address)
	c.metrics.Deployment(string(status))
	return status, err
}

// PurgeSessionKeys deletes keys of every account that expired or were
// revoked before the given time.
func (c *Client) PurgeSessionKeys(ctx context.Context, before time.Time) (int64, error) {
	n, err := c.sessions.Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	c.metrics.SessionKeysPurged(n)
	return n, nil
}

type preferredWallet struct {
	Address common.Address `json:"address"`
}

// SetPreferredWallet records the caller's preferred funding wallet.
func (c *Client) SetPreferredWallet(ctx context.Context, sc SessionContext, wallet common.Address) error {
	if !sc.Session.Valid(time.Now()) {
		return errors.NewAuthenticationError("custodial session is absent or expired")
	}
	if err := c.kv.Set(ctx, kvstore.OwnerKey(constant.KVPreferredWallet, sc.Owner.Hex()), preferredWallet{Address: wallet}); err != nil {
		return errors.NewDatabaseError("failed to store preferred wallet", err)
	}
	return nil
}

// PreferredWallet returns the caller's preferred wallet, if one is recorded.
func (c *Client) PreferredWallet(ctx context.Context, sc SessionContext) (common.Address, bool) {
	var w preferredWallet
	if !c.kv.Get(ctx, kvstore.OwnerKey(constant.KVPreferredWallet, sc.Owner.Hex()), &w) {
		return common.Address{}, false
	}
	return w.Address, true
}

// Executions returns the caller's most recent execution audit records.
func (c *Client) Executions(ctx context.Context, sc SessionContext, limit int) ([]ExecutionRecord, error) {
	acct, err := c.accounts.Address(ctx, sc.Session, sc.Owner)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var rows []store.Execution
	if err := c.gdb.WithContext(ctx).
		Where("account_address = ?", acct.Address.Hex()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, errors.NewDatabaseError("failed to query executions", err)
	}

	out := make([]ExecutionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ExecutionRecord{
			AccountAddress: r.AccountAddress,
			UserOpHash:     r.UserOpHash,
			TxID:           r.TxID,
			SignerKind:     r.SignerKind,
			SessionKeyID:   r.SessionKeyID,
			GasMode:        r.GasMode,
			FellBack:       r.FellBack,
			Status:         r.Status,
			Error:          r.ErrorMsg,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

// withDefaults fills unset override fields from the configured default
// policy for kind.
func (c *Client) withDefaults(kind policy.PermissionKind, o policy.Overrides) (policy.Overrides, error) {
	tmpl, ok := c.cfg.DefaultPolicy(string(kind))
	if !ok {
		return o, nil
	}
	if o.MaxTransferAmount == nil && tmpl.MaxTransferAmount != "" {
		amount, err := policy.ParseAmount(tmpl.MaxTransferAmount)
		if err != nil {
			return o, err
		}
		o.MaxTransferAmount = amount
	}
	if o.AllowApprovals == nil && tmpl.AllowApprovals != nil {
		v := *tmpl.AllowApprovals
		o.AllowApprovals = &v
	}
	if o.AllowedTargets == nil && len(tmpl.AllowedTargets) > 0 {
		for _, t := range tmpl.AllowedTargets {
			o.AllowedTargets = append(o.AllowedTargets, common.HexToAddress(t))
		}
	}
	return o, nil
}

// signableKeys lists only the active keys whose material is held in this
// process, so the resolver never picks a key that cannot sign.
type signableKeys struct {
	store *sessionkey.Store
	keys  KeySigner
}

func (s signableKeys) ListActive(ctx context.Context, owner common.Address) ([]*sessionkey.SessionKey, error) {
	active, err := s.store.ListActive(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := active[:0]
	for _, k := range active {
		if s.keys.Has(k.SignerAddress) {
			out = append(out, k)
		}
	}
	return out, nil
}
