// Package config loads the ledger service configuration from a YAML file and
// LEDGER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/protocol"
)

// Config represents the complete service configuration.
type Config struct {
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Solana  SolanaConfig  `mapstructure:"solana"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LedgerConfig holds the protocol constants.
type LedgerConfig struct {
	Asset                 string             `mapstructure:"asset"`
	Treasury              string             `mapstructure:"treasury"`
	InitialSupply         uint64             `mapstructure:"initial_supply"`
	RewardRateBps         uint64             `mapstructure:"reward_rate_bps"`
	VestingPeriod         time.Duration      `mapstructure:"vesting_period"`
	FeeTiers              []protocol.FeeTier `mapstructure:"fee_tiers"`
	DefaultFeePercent     uint64             `mapstructure:"default_fee_percent"`
	MaxFeePercentage      uint64             `mapstructure:"max_fee_percentage"`
	ReferralRewardPercent uint64             `mapstructure:"referral_reward_percent"`
}

// OracleConfig holds the price publisher connection.
type OracleConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Endpoint         string        `mapstructure:"endpoint"`
	Publisher        string        `mapstructure:"publisher"`
	FeedID           string        `mapstructure:"feed_id"`
	MaxStaleness     time.Duration `mapstructure:"max_staleness"`
	MaxConfidenceBps uint64        `mapstructure:"max_confidence_bps"`
	PriceDecimals    int32         `mapstructure:"price_decimals"`
}

// SolanaConfig holds the balance RPC endpoint.
type SolanaConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	RPCURL     string        `mapstructure:"rpc_url"`
	Commitment string        `mapstructure:"commitment"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// StorageConfig selects and configures the state backend.
type StorageConfig struct {
	Mode          string `mapstructure:"mode"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxClockSkew    time.Duration `mapstructure:"max_clock_skew"`
	AuditInterval   time.Duration `mapstructure:"audit_interval"` // 0 disables the audit scheduler
}

// LoggingConfig holds log output settings. An empty File logs to stdout.
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Storage modes.
const (
	ModeMemory   = "memory"
	ModePostgres = "postgres"
)

// Load reads configuration from path (optional) and environment variables.
// Nested keys map to LEDGER_<SECTION>_<KEY>, e.g. LEDGER_STORAGE_POSTGRES_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Ledger.FeeTiers) == 0 {
		cfg.Ledger.FeeTiers = protocol.DefaultFeeTiers()
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	// Ledger defaults
	v.SetDefault("ledger.asset", "")
	v.SetDefault("ledger.treasury", "")
	v.SetDefault("ledger.initial_supply", protocol.DefaultInitialSupply)
	v.SetDefault("ledger.reward_rate_bps", protocol.DefaultRewardRateBps)
	v.SetDefault("ledger.vesting_period", protocol.DefaultVestingPeriod)
	v.SetDefault("ledger.default_fee_percent", protocol.DefaultFeePercent)
	v.SetDefault("ledger.max_fee_percentage", protocol.DefaultMaxFeePercentage)
	v.SetDefault("ledger.referral_reward_percent", protocol.DefaultReferralRewardPercent)

	// Oracle defaults
	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.publisher", "")
	v.SetDefault("oracle.feed_id", "")
	v.SetDefault("oracle.max_staleness", protocol.DefaultOracleMaxStaleness)
	v.SetDefault("oracle.max_confidence_bps", protocol.DefaultOracleMaxConfidenceBps)
	v.SetDefault("oracle.price_decimals", 0)

	// Solana defaults
	v.SetDefault("solana.enabled", false)
	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.timeout", "30s")
	v.SetDefault("solana.max_retries", 3)

	// Storage defaults
	v.SetDefault("storage.mode", ModeMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_clock_skew", "5m")
	v.SetDefault("server.audit_interval", "1h")

	// Logging defaults
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	params, err := c.Params()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	if c.Oracle.Enabled {
		if c.Oracle.Endpoint == "" {
			return fmt.Errorf("oracle.endpoint is required when oracle is enabled")
		}
		if c.Oracle.FeedID == "" {
			return fmt.Errorf("oracle.feed_id is required when oracle is enabled")
		}
		if _, err := c.Oracle.PublisherIdentity(); err != nil {
			return fmt.Errorf("oracle.publisher: %w", err)
		}
	}

	if c.Solana.Enabled && c.Solana.RPCURL == "" {
		return fmt.Errorf("solana.rpc_url is required when solana is enabled")
	}
	if c.Solana.MaxRetries < 0 {
		return fmt.Errorf("solana.max_retries must not be negative")
	}

	switch c.Storage.Mode {
	case ModeMemory:
	case ModePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required in postgres mode")
		}
		if c.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("storage.clickhouse_dsn is required in postgres mode")
		}
	default:
		return fmt.Errorf("storage.mode must be one of: %s, %s", ModeMemory, ModePostgres)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxClockSkew <= 0 {
		return fmt.Errorf("server.max_clock_skew must be positive")
	}
	if c.Server.AuditInterval < 0 {
		return fmt.Errorf("server.audit_interval must not be negative")
	}

	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be at least 1")
	}

	return nil
}

// Params builds the immutable protocol parameters.
func (c *Config) Params() (protocol.Params, error) {
	p := protocol.DefaultParams(c.Ledger.Asset)
	p.InitialSupply = c.Ledger.InitialSupply
	p.RewardRateBps = c.Ledger.RewardRateBps
	p.VestingPeriod = c.Ledger.VestingPeriod
	p.FeeTiers = append([]protocol.FeeTier(nil), c.Ledger.FeeTiers...)
	p.DefaultFeePercent = c.Ledger.DefaultFeePercent
	p.MaxFeePercentage = c.Ledger.MaxFeePercentage
	p.ReferralRewardPercent = c.Ledger.ReferralRewardPercent
	p.OracleFeedID = c.Oracle.FeedID
	p.OracleMaxStaleness = c.Oracle.MaxStaleness
	p.OracleMaxConfidenceBps = c.Oracle.MaxConfidenceBps
	p.PriceDecimals = c.Oracle.PriceDecimals

	if c.Ledger.Treasury != "" {
		treasury, err := domain.ParseIdentity(c.Ledger.Treasury)
		if err != nil {
			return protocol.Params{}, fmt.Errorf("ledger.treasury: %w", err)
		}
		p.Treasury = treasury
	}
	return p, nil
}

// PublisherIdentity decodes the oracle publisher key.
func (c OracleConfig) PublisherIdentity() (domain.Identity, error) {
	return domain.ParseIdentity(c.Publisher)
}
