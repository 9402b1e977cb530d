package config

import "time"

// Config is the on-disk configuration of the session bridge daemon.
type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.psession)

	// Network
	ProjectID  string   `json:"project_id"`
	ChainID    int64    `json:"chain_id"`
	RPCURLs    []string `json:"rpc_urls"`    // JSON-RPC endpoints used for fee lookups and code checks
	BundlerURL string   `json:"bundler_url"` // ERC-4337 bundler JSON-RPC endpoint
	// PaymasterURL is the sponsor endpoint; empty disables the sponsor client.
	PaymasterURL string `json:"paymaster_url"`

	// Contracts
	EntryPointAddress     string `json:"entry_point_address"`
	AccountFactoryAddress string `json:"account_factory_address"`
	AccountInitCodeHash   string `json:"account_init_code_hash"` // keccak256 of the account proxy creation code
	USDCAddress           string `json:"usdc_address"`

	// Gas sponsorship
	SponsorshipEnabled  bool `json:"sponsorship_enabled"`
	FallbackToUserFunds bool `json:"fallback_to_user_funds"`

	// Session keys
	DefaultValidityDurationSeconds int            `json:"default_validity_duration_seconds"` // default: 86400
	DefaultPolicies                []PolicyConfig `json:"default_policies"`
	MaxTransferCeiling             string         `json:"max_transfer_ceiling"`          // decimal, smallest unit; empty = no ceiling
	SessionKeyRetentionSeconds     int            `json:"session_key_retention_seconds"` // 0 disables the purge job
	PurgeIntervalSeconds           int            `json:"purge_interval_seconds"`        // default: 3600

	// Execution
	ConfirmationTimeoutSeconds int `json:"confirmation_timeout_seconds"` // default: 120
	ReceiptPollIntervalMillis  int `json:"receipt_poll_interval_millis"` // default: 2000

	// Query Server Config
	QueryServerPort int `json:"query_server_port"` // Port for HTTP server (default: 8080)

	// Development custodial signer
	OrganizationID string `json:"organization_id"`
	RootKeyHex     string `json:"root_key_hex,omitempty"` // prefer PSESSION_ROOT_KEY
}

// PolicyConfig is a policy template applied when an issue request names only a kind.
type PolicyConfig struct {
	PermissionKind    string   `json:"permission_kind"`
	MaxTransferAmount string   `json:"max_transfer_amount,omitempty"` // decimal or "unbounded"
	AllowApprovals    *bool    `json:"allow_approvals,omitempty"`
	AllowedTargets    []string `json:"allowed_targets,omitempty"`
}

// DefaultValidity returns the session key validity applied when a request omits one.
func (c *Config) DefaultValidity() time.Duration {
	return time.Duration(c.DefaultValidityDurationSeconds) * time.Second
}

// ConfirmationTimeout bounds relayer confirmation waits.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}

// ReceiptPollInterval is the interval between receipt lookups.
func (c *Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollIntervalMillis) * time.Millisecond
}

// DefaultPolicy returns the configured template for a permission kind, if any.
func (c *Config) DefaultPolicy(kind string) (PolicyConfig, bool) {
	for _, p := range c.DefaultPolicies {
		if p.PermissionKind == kind {
			return p, true
		}
	}
	return PolicyConfig{}, false
}
