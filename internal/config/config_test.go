package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamic-pricing-ledger/internal/protocol"
)

const treasuryAddr = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
ledger:
  asset: SOL
  treasury: "`+treasuryAddr+`"
  initial_supply: 500
  vesting_period: 48h
  fee_tiers:
    - below: 100
      percent: 7
    - below: 900
      percent: 3

oracle:
  enabled: true
  endpoint: "ws://localhost:9000/prices"
  publisher: "`+treasuryAddr+`"
  feed_id: "SOL/USD"
  max_staleness: 2m
  price_decimals: 2

storage:
  mode: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "SOL", cfg.Ledger.Asset)
	assert.Equal(t, uint64(500), cfg.Ledger.InitialSupply)
	assert.Equal(t, 48*time.Hour, cfg.Ledger.VestingPeriod)
	assert.Equal(t, []protocol.FeeTier{{Below: 100, Percent: 7}, {Below: 900, Percent: 3}}, cfg.Ledger.FeeTiers)
	assert.Equal(t, 2*time.Minute, cfg.Oracle.MaxStaleness)

	// Untouched keys keep their defaults.
	assert.Equal(t, uint64(protocol.DefaultRewardRateBps), cfg.Ledger.RewardRateBps)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Server.MaxClockSkew)
	assert.Equal(t, time.Hour, cfg.Server.AuditInterval)

	params, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, "SOL", params.Asset)
	assert.Equal(t, treasuryAddr, params.Treasury.String())
	assert.Equal(t, "SOL/USD", params.OracleFeedID)
	assert.Equal(t, int32(2), params.PriceDecimals)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("LEDGER_LEDGER_ASSET", "BONK")
	t.Setenv("LEDGER_STORAGE_MODE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	params, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultParams("BONK"), params)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "ledger:\n  asset: SOL\nserver:\n  addr: \":9000\"\n")
	t.Setenv("LEDGER_SERVER_ADDR", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Ledger.Asset = "SOL"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing asset", func(c *Config) { c.Ledger.Asset = "" }},
		{"bad treasury", func(c *Config) { c.Ledger.Treasury = "not-base58-0OIl" }},
		{"reward rate above 100%", func(c *Config) { c.Ledger.RewardRateBps = 10_001 }},
		{"descending fee tiers", func(c *Config) {
			c.Ledger.FeeTiers = []protocol.FeeTier{{Below: 5000, Percent: 2}, {Below: 1000, Percent: 5}}
		}},
		{"oracle without endpoint", func(c *Config) {
			c.Oracle.Enabled = true
			c.Oracle.FeedID = "SOL/USD"
			c.Oracle.Publisher = treasuryAddr
		}},
		{"oracle without publisher", func(c *Config) {
			c.Oracle.Enabled = true
			c.Oracle.Endpoint = "ws://localhost"
			c.Oracle.FeedID = "SOL/USD"
		}},
		{"postgres without dsn", func(c *Config) { c.Storage.Mode = ModePostgres }},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "sqlite" }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"negative audit interval", func(c *Config) { c.Server.AuditInterval = -time.Second }},
		{"rotation without size", func(c *Config) {
			c.Logging.File = "/tmp/ledger.log"
			c.Logging.MaxSizeMB = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
