package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	configSubdir   = "config"
	configFileName = "psession_config.json"
)

//go:embed default_config.json
var defaultConfigJSON []byte

var permissionKinds = map[string]bool{
	"usdc_transfer_only": true,
	"usdc_full_access":   true,
	"defi_operations":    true,
	"custom":             true,
}

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	var defaults Config
	if err := json.Unmarshal(defaultConfigJSON, &defaults); err != nil {
		return fmt.Errorf("failed to unmarshal embedded defaults: %w", err)
	}

	// Network defaults come from the embedded config
	if cfg.ChainID == 0 {
		cfg.ChainID = defaults.ChainID
	}
	if len(cfg.RPCURLs) == 0 {
		cfg.RPCURLs = defaults.RPCURLs
	}
	if cfg.BundlerURL == "" {
		cfg.BundlerURL = defaults.BundlerURL
	}
	if cfg.EntryPointAddress == "" {
		cfg.EntryPointAddress = defaults.EntryPointAddress
	}
	if cfg.AccountFactoryAddress == "" {
		cfg.AccountFactoryAddress = defaults.AccountFactoryAddress
	}
	if cfg.AccountInitCodeHash == "" {
		cfg.AccountInitCodeHash = defaults.AccountInitCodeHash
	}
	if cfg.USDCAddress == "" {
		cfg.USDCAddress = defaults.USDCAddress
	}

	// Set defaults for session keys
	if cfg.DefaultValidityDurationSeconds == 0 {
		cfg.DefaultValidityDurationSeconds = 86400
	}
	if cfg.DefaultValidityDurationSeconds < 0 {
		return fmt.Errorf("default_validity_duration_seconds must be positive")
	}
	if cfg.PurgeIntervalSeconds == 0 {
		cfg.PurgeIntervalSeconds = 3600
	}
	if cfg.SessionKeyRetentionSeconds < 0 {
		return fmt.Errorf("session_key_retention_seconds must not be negative")
	}

	// Set defaults for execution
	if cfg.ConfirmationTimeoutSeconds == 0 {
		cfg.ConfirmationTimeoutSeconds = 120
	}
	if cfg.ConfirmationTimeoutSeconds < 0 {
		return fmt.Errorf("confirmation_timeout_seconds must be positive")
	}
	if cfg.ReceiptPollIntervalMillis == 0 {
		cfg.ReceiptPollIntervalMillis = 2000
	}
	if cfg.ReceiptPollIntervalMillis < 0 {
		return fmt.Errorf("receipt_poll_interval_millis must be positive")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	for name, addr := range map[string]string{
		"entry_point_address":     cfg.EntryPointAddress,
		"account_factory_address": cfg.AccountFactoryAddress,
		"usdc_address":            cfg.USDCAddress,
	} {
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}

	// Empty means not yet configured; the client refuses to start without it.
	if h := cfg.AccountInitCodeHash; h != "" {
		raw, err := hexutil.Decode(h)
		if err != nil || len(raw) != ethcommon.HashLength {
			return fmt.Errorf("account_init_code_hash must be a 32-byte hex string")
		}
		if ethcommon.BytesToHash(raw) == (ethcommon.Hash{}) {
			return fmt.Errorf("account_init_code_hash must not be the zero hash")
		}
	}

	ceilingSet := cfg.MaxTransferCeiling != ""
	if ceilingSet {
		ceiling, ok := new(big.Int).SetString(cfg.MaxTransferCeiling, 10)
		if !ok || ceiling.Sign() < 0 {
			return fmt.Errorf("max_transfer_ceiling must be a non-negative decimal integer")
		}
	}

	for i, p := range cfg.DefaultPolicies {
		if !permissionKinds[p.PermissionKind] {
			return fmt.Errorf("default_policies[%d]: unknown permission kind %q", i, p.PermissionKind)
		}
		for _, target := range p.AllowedTargets {
			if !ethcommon.IsHexAddress(target) {
				return fmt.Errorf("default_policies[%d]: invalid target %q", i, target)
			}
		}
		unbounded := strings.EqualFold(p.MaxTransferAmount, "unbounded")
		if amt := p.MaxTransferAmount; amt != "" && !unbounded {
			if _, ok := new(big.Int).SetString(amt, 10); !ok {
				return fmt.Errorf("default_policies[%d]: invalid max_transfer_amount %q", i, amt)
			}
		}
		if ceilingSet && (unbounded || p.PermissionKind == "usdc_full_access") {
			return fmt.Errorf("default_policies[%d]: unbounded %s conflicts with max_transfer_ceiling", i, p.PermissionKind)
		}
	}

	return nil
}

// Validate applies defaults and checks the config.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <basePath>/config/psession_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the config from <basePath>/config/psession_config.json and applies defaults.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, configSubdir, configFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
