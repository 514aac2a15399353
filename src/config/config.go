package config

import (
	"fmt"
	"os"

	"token-observer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in the values the reference deployment runs with when
// the YAML omits them.
func (c *Config) applyDefaults() {
	if c.Network.RequestTimeout <= 0 {
		c.Network.RequestTimeout = 30
	}
	if c.Network.ConcurrentRequests <= 0 {
		c.Network.ConcurrentRequests = 10
	}
	if c.Upstream.ReadTimeoutSecs <= 0 {
		// Slightly under the provider's 30s keepalive so a dead peer is
		// detected by the read deadline, not by waiting forever.
		c.Upstream.ReadTimeoutSecs = 25
	}
	if c.Upstream.ReconnectWaitSecs <= 0 {
		c.Upstream.ReconnectWaitSecs = 5
	}
	if c.Upstream.WriteTimeoutSecs <= 0 {
		c.Upstream.WriteTimeoutSecs = 10
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Analytics.FreshnessSeconds <= 0 {
		c.Analytics.FreshnessSeconds = 300
	}
	if c.Analytics.ValuationTimeoutSecs <= 0 {
		c.Analytics.ValuationTimeoutSecs = 30
	}
	if c.Analytics.VelocityTimeoutSecs <= 0 {
		c.Analytics.VelocityTimeoutSecs = 45
	}
	if c.Analytics.ConcentrationTimeoutSec <= 0 {
		c.Analytics.ConcentrationTimeoutSec = 30
	}
	if c.Analytics.ChurnTimeoutSecs <= 0 {
		// Behavioral analysis walks many transactions, so it gets more room.
		c.Analytics.ChurnTimeoutSecs = 60
	}
	if c.Analytics.SignatureLimit <= 0 {
		c.Analytics.SignatureLimit = 100
	}
	if c.Analytics.MinSampleSize <= 0 {
		c.Analytics.MinSampleSize = 5
	}
	if c.Analytics.ChurnWindowHours <= 0 {
		c.Analytics.ChurnWindowHours = 24
	}
	if c.Analytics.LongHoldDays <= 0 {
		c.Analytics.LongHoldDays = 7
	}
	if c.Tracking.CheckIntervalSeconds <= 0 {
		c.Tracking.CheckIntervalSeconds = 30
	}
	if c.Tracking.MaxAccountsDefault <= 0 {
		c.Tracking.MaxAccountsDefault = 10
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 30
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Upstream configuration
	if c.Upstream.RPCURL == "" {
		return fmt.Errorf("upstream rpc_url cannot be empty")
	}
	if c.Upstream.WebsocketURL == "" {
		return fmt.Errorf("upstream websocket_url cannot be empty")
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream api_key cannot be empty")
	}

	// Validate Network configuration
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate Tracking configuration
	if c.Tracking.MaxAccountsDefault <= 1 || c.Tracking.MaxAccountsDefault > 15 {
		return fmt.Errorf("max_accounts_default must be in range (1, 15], got %d", c.Tracking.MaxAccountsDefault)
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("events topic cannot be empty when brokers are configured")
	}

	return nil
}
