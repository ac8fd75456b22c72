package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/api"
	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/config"
	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/export"
	"github.com/yourorg/lockstake-ledger/internal/journal"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/scheduler"
	"github.com/yourorg/lockstake-ledger/internal/security"
)

// devSeed is the dev token seeding read from DEV_SEED_TOKENS and DEV_SEED_FUND
type devSeed struct {
	tokens uint64
	fund   uint64
}

// app holds the wired service components
type app struct {
	engine   *ledger.Engine
	token    *custody.MemoryToken
	journal  journal.Recorder
	exporter *export.Exporter
	breaker  *circuitbreaker.CircuitBreaker
	sched    *scheduler.Scheduler
	server   *api.Server
}

// newApp wires config into the engine, its sinks, the audit schedule and the
// HTTP server. Background workers are not started.
func newApp(ctx context.Context, cfg *config.Config, seed devSeed) (*app, error) {
	// The in-process token is the only custody backend; the dev routes expose it
	token := custody.NewMemoryToken(cfg.Ledger.TokenSymbol)
	opts, err := cfg.LedgerOptions(token)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger configuration: %w", err)
	}
	engine, err := ledger.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	rec, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	engine.WithSink(rec)
	a := &app{engine: engine, token: token, journal: rec}

	if cfg.Export.Enabled {
		signer, err := security.NewSigner(cfg.Export.SigningKey)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("invalid export signing key: %w", err)
		}
		a.exporter, err = export.New(cfg.ExporterConfig(), signer)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create exporter: %w", err)
		}
		engine.WithSink(a.exporter)
		logrus.WithField("signer", signer.Address().Hex()).Info("Event export enabled")
	}

	a.breaker = circuitbreaker.New(cfg.BreakerThresholds()).
		WithResetDelay(cfg.Breaker.ResetDelay).
		WithSuccessThreshold(cfg.Breaker.SuccessThreshold)

	a.sched = scheduler.NewScheduler(ctx, engine, a.breaker)
	if err := a.sched.Register(cfg.Audit.Cron); err != nil {
		a.close()
		return nil, fmt.Errorf("invalid audit schedule: %w", err)
	}

	deps := api.Deps{
		Engine:    engine,
		Journal:   rec,
		Breaker:   a.breaker,
		Exporter:  a.exporter,
		Scheduler: a.sched,
	}
	if cfg.Server.DevToken {
		deps.DevToken = token
	}
	a.server, err = api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		RequestsPerMin: cfg.Server.RequestsPerMin,
		BurstSize:      cfg.Server.BurstSize,
		ProofMaxAge:    cfg.Server.AdminProofMaxAge,
	}, deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	engine.WithSink(a.server.EventSink())
	a.sched.OnReport(a.server.ObserveAudit())

	// Seed only once every sink is registered so its events are counted
	if cfg.Server.DevToken {
		seedDevToken(ctx, engine, token, seed)
	}
	return a, nil
}

// start runs the background workers
func (a *app) start() {
	if a.exporter != nil {
		a.exporter.Start()
	}
	a.sched.Start()
}

// shutdown stops the server and the workers and closes the journal
func (a *app) shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	a.sched.Stop()
	if a.exporter != nil {
		if err := a.exporter.Stop(ctx); err != nil {
			logrus.Warnf("Final event export failed: %v", err)
		}
	}
	a.close()
}

func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		logrus.Warnf("Closing journal: %v", err)
	}
}

// openJournal opens the SQLite journal, or a no-op one when no path is set
func openJournal(cfg config.JournalConfig) (journal.Recorder, error) {
	if cfg.SQLitePath == "" {
		return journal.NewNoopRecorder(), nil
	}
	rec, err := journal.NewSQLiteRecorder(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	logrus.WithField("path", cfg.SQLitePath).Info("Event journal enabled")
	return rec, nil
}
