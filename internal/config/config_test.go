package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []uint64{7, 14, 28, 90, 180, 365}, cfg.Ledger.PeriodDays)
	assert.Equal(t, uint64(2000), cfg.Ledger.BaseRateBps)
	assert.Equal(t, 7*24*time.Hour, cfg.Ledger.RateCooldown)
	assert.Equal(t, "0 */5 * * * *", cfg.Audit.Cron)
	assert.Equal(t, 5*time.Minute, cfg.Server.AdminProofMaxAge)
	assert.False(t, cfg.Export.Enabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  requests_per_min: 60
ledger:
  period_days: [30, 60]
  base_rate_bps: 1200
  rate_cooldown: 1h
journal:
  sqlite_path: /tmp/journal.db
breaker:
  max_custody_drop_bps: 500
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RequestsPerMin)
	assert.Equal(t, 50, cfg.Server.BurstSize, "unset keys keep their default")
	assert.Equal(t, []uint64{30, 60}, cfg.Ledger.PeriodDays)
	assert.Equal(t, uint64(1200), cfg.Ledger.BaseRateBps)
	assert.Equal(t, time.Hour, cfg.Ledger.RateCooldown)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.SQLitePath)
	assert.Equal(t, uint64(500), cfg.BreakerThresholds().MaxCustodyDropBps)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("PERIOD_DAYS", "10, 20")
	t.Setenv("RATE_COOLDOWN", "2h")
	t.Setenv("EXPORT_BATCH_SIZE", "not-a-number")
	t.Setenv("ADMIN_PROOF_MAX_AGE", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, []uint64{10, 20}, cfg.Ledger.PeriodDays)
	assert.Equal(t, 2*time.Hour, cfg.Ledger.RateCooldown)
	assert.Equal(t, 100, cfg.Export.BatchSize, "unparsable values are ignored")
	assert.Equal(t, 30*time.Second, cfg.Server.AdminProofMaxAge)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("EXPORT_ENABLED", "true")
	_, err = Load("")
	assert.ErrorContains(t, err, "webhook_url")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "no periods", mutate: func(c *Config) { c.Ledger.PeriodDays = nil }},
		{name: "zero rate", mutate: func(c *Config) { c.Ledger.BaseRateBps = 0 }},
		{name: "rate above max", mutate: func(c *Config) { c.Ledger.BaseRateBps = 6000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDays(t *testing.T) {
	days, err := parseDays("7,14,,28")
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 14, 28}, days)

	for _, raw := range []string{"", "7,x", "0", " , "} {
		_, err := parseDays(raw)
		assert.Error(t, err, raw)
	}
}

func TestLedgerOptions(t *testing.T) {
	cfg := Default()
	token := custody.NewMemoryToken("LOCK")

	opts, err := cfg.LedgerOptions(token)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa0"), opts.Owner)
	assert.Equal(t, common.HexToAddress("0xc0"), opts.Custody)
	assert.Equal(t, types.Tokens(1), opts.MinAutoCompound)
	assert.Equal(t, types.Tokens(100), opts.AutoFlushThreshold)
	assert.Same(t, token, opts.Token)

	bad := Default()
	bad.Ledger.Owner = "0x123"
	_, err = bad.LedgerOptions(token)
	assert.ErrorContains(t, err, "ledger.owner")

	bad = Default()
	bad.Ledger.Custody = bad.Ledger.Owner
	_, err = bad.LedgerOptions(token)
	assert.Error(t, err)

	bad = Default()
	bad.Ledger.AutoFlushThreshold = "1.5"
	_, err = bad.LedgerOptions(token)
	assert.ErrorContains(t, err, "auto_flush_threshold")
}
