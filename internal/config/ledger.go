package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/export"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// LedgerOptions converts the ledger section into engine options bound to token
func (c *Config) LedgerOptions(token custody.Token) (ledger.Options, error) {
	opts := ledger.Options{
		Token:          token,
		PeriodDays:     append([]uint64(nil), c.Ledger.PeriodDays...),
		BaseRateBps:    c.Ledger.BaseRateBps,
		MaxBaseRateBps: c.Ledger.MaxBaseRateBps,
		RateCooldown:   c.Ledger.RateCooldown,
	}

	var err error
	if opts.Owner, err = parseAddress("ledger.owner", c.Ledger.Owner); err != nil {
		return ledger.Options{}, err
	}
	if opts.Custody, err = parseAddress("ledger.custody", c.Ledger.Custody); err != nil {
		return ledger.Options{}, err
	}
	if opts.Owner == opts.Custody {
		return ledger.Options{}, fmt.Errorf("ledger.owner and ledger.custody must differ")
	}

	if opts.MinAutoCompound, err = types.ParseAmount(c.Ledger.MinAutoCompound); err != nil {
		return ledger.Options{}, fmt.Errorf("ledger.min_auto_compound: %w", err)
	}
	if opts.AutoFlushThreshold, err = types.ParseAmount(c.Ledger.AutoFlushThreshold); err != nil {
		return ledger.Options{}, fmt.Errorf("ledger.auto_flush_threshold: %w", err)
	}
	return opts, nil
}

// BreakerThresholds returns the solvency limits of the circuit breaker
func (c *Config) BreakerThresholds() circuitbreaker.Thresholds {
	return circuitbreaker.Thresholds{
		MinCoverageBps:    c.Breaker.MinCoverageBps,
		MaxCustodyDropBps: c.Breaker.MaxCustodyDropBps,
	}
}

// ExporterConfig returns the exporter settings
func (c *Config) ExporterConfig() export.Config {
	return export.Config{
		WebhookURL:    c.Export.WebhookURL,
		WebhookAPIKey: c.Export.WebhookAPIKey,
		BatchSize:     c.Export.BatchSize,
		FlushInterval: c.Export.FlushInterval,
		MaxRetries:    c.Export.MaxRetries,
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}
