// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Journal JournalConfig `yaml:"journal"`
	Export  ExportConfig  `yaml:"export"`
	Breaker BreakerConfig `yaml:"breaker"`
	Audit   AuditConfig   `yaml:"audit"`

	// OpenTelemetry endpoint for observability
	OtelEndpoint string `yaml:"otel_endpoint"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	// HTTP server port
	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Rate limiting of mutating routes
	RequestsPerMin int `yaml:"requests_per_min"`
	BurstSize      int `yaml:"burst_size"`

	// DevToken serves an in-process custody token with mint and approve routes
	DevToken bool `yaml:"dev_token"`

	// AdminProofMaxAge bounds the age of signed admin caller proofs
	AdminProofMaxAge time.Duration `yaml:"admin_proof_max_age"`
}

// LedgerConfig holds the engine parameters
type LedgerConfig struct {
	Owner   string `yaml:"owner"`
	Custody string `yaml:"custody"`

	PeriodDays     []uint64      `yaml:"period_days"`
	BaseRateBps    uint64        `yaml:"base_rate_bps"`
	MaxBaseRateBps uint64        `yaml:"max_base_rate_bps"`
	RateCooldown   time.Duration `yaml:"rate_cooldown"`

	// Token amounts as decimal base-unit strings
	MinAutoCompound    string `yaml:"min_auto_compound"`
	AutoFlushThreshold string `yaml:"auto_flush_threshold"`

	TokenSymbol string `yaml:"token_symbol"`
}

// JournalConfig controls the event journal; an empty path disables it
type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// ExportConfig defines settings for webhook event export
type ExportConfig struct {
	Enabled       bool          `yaml:"enabled"`
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookAPIKey string        `yaml:"webhook_api_key"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`

	// SigningKey is a hex secp256k1 key; a random key is generated when empty
	SigningKey string `yaml:"signing_key"`
}

// BreakerConfig tunes the solvency circuit breaker
type BreakerConfig struct {
	ResetDelay       time.Duration `yaml:"reset_delay"`
	SuccessThreshold int           `yaml:"success_threshold"`

	// MinCoverageBps is the minimum funded/reserved ratio, in basis points
	MinCoverageBps uint64 `yaml:"min_coverage_bps"`

	// MaxCustodyDropBps bounds the custody drop between two audits; zero disables it
	MaxCustodyDropBps uint64 `yaml:"max_custody_drop_bps"`
}

// AuditConfig schedules the periodic ledger audit
type AuditConfig struct {
	// Cron is a six-field cron expression (with seconds)
	Cron string `yaml:"cron"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 10 * time.Second,
			RequestsPerMin: 600,
			BurstSize:      50,
			DevToken:       true,

			AdminProofMaxAge: 5 * time.Minute,
		},
		Ledger: LedgerConfig{
			Owner:              "0x00000000000000000000000000000000000000a0",
			Custody:            "0x00000000000000000000000000000000000000c0",
			PeriodDays:         []uint64{7, 14, 28, 90, 180, 365},
			BaseRateBps:        2000,
			MaxBaseRateBps:     5000,
			RateCooldown:       7 * 24 * time.Hour,
			MinAutoCompound:    "1000000000000000000",
			AutoFlushThreshold: "100000000000000000000",
			TokenSymbol:        "LOCK",
		},
		Export: ExportConfig{
			BatchSize:     100,
			FlushInterval: 30 * time.Second,
			MaxRetries:    3,
		},
		Breaker: BreakerConfig{
			ResetDelay:       5 * time.Minute,
			SuccessThreshold: 2,
			MinCoverageBps:   10000,
		},
		Audit: AuditConfig{
			Cron: "0 */5 * * * *",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path if one
// is given, then environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		logrus.Infof("Loaded configuration from %s", path)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets the environment win over file values
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = GetEnvOrDefault("PORT", cfg.Server.Port)
	cfg.Server.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.RequestsPerMin = GetEnvAsInt("REQUESTS_PER_MIN", cfg.Server.RequestsPerMin)
	cfg.Server.BurstSize = GetEnvAsInt("BURST_SIZE", cfg.Server.BurstSize)
	cfg.Server.DevToken = GetEnvAsBool("DEV_TOKEN", cfg.Server.DevToken)
	cfg.Server.AdminProofMaxAge = GetEnvAsDuration("ADMIN_PROOF_MAX_AGE", cfg.Server.AdminProofMaxAge)

	cfg.Ledger.Owner = GetEnvOrDefault("LEDGER_OWNER", cfg.Ledger.Owner)
	cfg.Ledger.Custody = GetEnvOrDefault("LEDGER_CUSTODY", cfg.Ledger.Custody)
	cfg.Ledger.BaseRateBps = GetEnvAsUint("BASE_RATE_BPS", cfg.Ledger.BaseRateBps)
	cfg.Ledger.MaxBaseRateBps = GetEnvAsUint("MAX_BASE_RATE_BPS", cfg.Ledger.MaxBaseRateBps)
	cfg.Ledger.RateCooldown = GetEnvAsDuration("RATE_COOLDOWN", cfg.Ledger.RateCooldown)
	cfg.Ledger.MinAutoCompound = GetEnvOrDefault("MIN_AUTO_COMPOUND", cfg.Ledger.MinAutoCompound)
	cfg.Ledger.AutoFlushThreshold = GetEnvOrDefault("AUTO_FLUSH_THRESHOLD", cfg.Ledger.AutoFlushThreshold)
	if raw, ok := GetEnv("PERIOD_DAYS"); ok {
		if days, err := parseDays(raw); err == nil {
			cfg.Ledger.PeriodDays = days
		} else {
			logrus.WithError(err).Warn("Ignoring invalid PERIOD_DAYS")
		}
	}

	cfg.Journal.SQLitePath = GetEnvOrDefault("SQLITE_PATH", cfg.Journal.SQLitePath)

	cfg.Export.Enabled = GetEnvAsBool("EXPORT_ENABLED", cfg.Export.Enabled)
	cfg.Export.WebhookURL = GetEnvOrDefault("WEBHOOK_URL", cfg.Export.WebhookURL)
	cfg.Export.WebhookAPIKey = GetEnvOrDefault("WEBHOOK_API_KEY", cfg.Export.WebhookAPIKey)
	cfg.Export.BatchSize = GetEnvAsInt("EXPORT_BATCH_SIZE", cfg.Export.BatchSize)
	cfg.Export.FlushInterval = GetEnvAsDuration("EXPORT_INTERVAL", cfg.Export.FlushInterval)
	cfg.Export.SigningKey = GetEnvOrDefault("SIGNING_KEY", cfg.Export.SigningKey)

	cfg.Breaker.ResetDelay = GetEnvAsDuration("CIRCUIT_RESET_DELAY", cfg.Breaker.ResetDelay)
	cfg.Breaker.MinCoverageBps = GetEnvAsUint("MIN_COVERAGE_BPS", cfg.Breaker.MinCoverageBps)
	cfg.Audit.Cron = GetEnvOrDefault("AUDIT_CRON", cfg.Audit.Cron)

	cfg.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if len(c.Ledger.PeriodDays) == 0 {
		return fmt.Errorf("ledger.period_days must not be empty")
	}
	if c.Ledger.BaseRateBps == 0 {
		return fmt.Errorf("ledger.base_rate_bps must be positive")
	}
	if c.Ledger.MaxBaseRateBps != 0 && c.Ledger.BaseRateBps > c.Ledger.MaxBaseRateBps {
		return fmt.Errorf("ledger.base_rate_bps %d exceeds max_base_rate_bps %d", c.Ledger.BaseRateBps, c.Ledger.MaxBaseRateBps)
	}
	if c.Export.Enabled && c.Export.WebhookURL == "" {
		return fmt.Errorf("export.webhook_url is required when export is enabled")
	}
	return nil
}

func parseDays(raw string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.ParseUint(part, 10, 64)
		if err != nil || d == 0 {
			return nil, fmt.Errorf("invalid period %q", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no periods in %q", raw)
	}
	return out, nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsUint retrieves an environment variable as an unsigned integer with a default value
func GetEnvAsUint(key string, defaultValue uint64) uint64 {
	if value, exists := GetEnv(key); exists {
		if u, err := strconv.ParseUint(value, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
