// Package api exposes the lock-stake ledger over HTTP
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/export"
	"github.com/yourorg/lockstake-ledger/internal/journal"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/scheduler"
)

// Version is reported by /health and /status
const Version = "1.0.0"

// Config holds the HTTP surface settings
type Config struct {
	// HTTP port to listen on
	Port string

	// Per-request deadline
	RequestTimeout time.Duration

	// Rate limit of mutating routes; zero disables limiting
	RequestsPerMin int
	BurstSize      int

	// ProofMaxAge bounds the clock skew accepted on signed admin calls
	ProofMaxAge time.Duration
}

// Deps are the components served by the API. Only Engine is required.
type Deps struct {
	Engine    *ledger.Engine
	Journal   journal.Recorder
	Breaker   *circuitbreaker.CircuitBreaker
	Exporter  *export.Exporter
	Scheduler *scheduler.Scheduler

	// DevToken enables the mint, approve and balance routes
	DevToken *custody.MemoryToken
}

// Server represents the ledger HTTP server instance
type Server struct {
	config Config
	deps   Deps

	metrics   *serverMetrics
	rateLimit *rate.Limiter
	router    http.Handler
	server    *http.Server
	startTime time.Time
	log       *logrus.Entry
}

// NewServer builds the router over deps
func NewServer(config Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("api: ledger engine is required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewNoopRecorder()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.ProofMaxAge <= 0 {
		config.ProofMaxAge = 5 * time.Minute
	}

	s := &Server{
		config:    config,
		deps:      deps,
		metrics:   registerMetrics(deps.Engine),
		startTime: time.Now(),
		log:       logrus.WithField("module", "api"),
	}
	if config.RequestsPerMin > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		s.rateLimit = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMin)/60), burst)
	}
	if deps.Breaker != nil {
		s.metrics.setBreaker(deps.Breaker.GetState())
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         ":" + config.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithFields(logrus.Fields{
		"port":             config.Port,
		"requests_per_min": config.RequestsPerMin,
		"circuit_breaker":  deps.Breaker != nil,
		"exporter":         deps.Exporter != nil,
		"dev_token":        deps.DevToken != nil,
	}).Info("Server initialized")
	return s, nil
}

// EventSink counts committed events for /metrics; register it on the engine
func (s *Server) EventSink() ledger.EventSink {
	return s.metrics
}

// ObserveAudit feeds audit results into the gauges; register it on the scheduler
func (s *Server) ObserveAudit() scheduler.Observer {
	return func(report model.AuditReport, violation error) {
		s.metrics.ObserveAudit(report, violation)
		if s.deps.Breaker != nil {
			s.metrics.setBreaker(s.deps.Breaker.GetState())
		}
	}
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)
	r.Use(chimw.Timeout(s.config.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/periods", s.handlePeriods)
		v1.Get("/periods/active", s.handleActivePeriods)
		v1.Get("/pool", s.handlePool)
		v1.Get("/estimate", s.handleEstimate)

		v1.Route("/accounts/{account}", func(acct chi.Router) {
			acct.Get("/stakes", s.handleStakes)
			acct.Get("/stakes/{index}", s.handleStake)
			acct.Get("/summary", s.handleSummary)
			acct.Get("/compound", s.handleCompound)
			acct.Get("/history", s.handleHistory)

			acct.Group(func(m chi.Router) {
				m.Use(s.limit, s.guard)
				m.Post("/stakes", s.handleOpen)
				m.Post("/stakes/{index}/claim", s.handleClaim)
				m.Post("/stakes/{index}/withdraw", s.handleWithdraw)
				m.Post("/stakes/{index}/restake", s.handleRestake)
				m.Post("/claim-all", s.handleClaimAll)
				m.Post("/compound/flush", s.handleFlushCompound)
				m.Post("/compound/withdraw", s.handleWithdrawCompound)
			})
		})

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.limit)
			admin.Get("/circuit", s.handleCircuitStatus)
			admin.Group(func(signed chi.Router) {
				signed.Use(s.authenticate)
				signed.Post("/circuit/reset", s.handleCircuitReset)
				signed.Post("/audit", s.handleAudit)
				signed.Group(func(m chi.Router) {
					m.Use(s.guard)
					m.Post("/rate", s.handleSetRate)
					m.Post("/periods/{index}", s.handleTogglePeriod)
					m.Post("/fund", s.handleFund)
					m.Post("/withdraw-excess", s.handleWithdrawExcess)
				})
			})
		})

		if s.deps.DevToken != nil {
			v1.Route("/token", func(tok chi.Router) {
				tok.With(s.limit).Post("/mint", s.handleMint)
				tok.With(s.limit).Post("/approve", s.handleApprove)
				tok.Get("/balance/{account}", s.handleBalance)
			})
		}
	})
	return r
}

// Start begins serving; it returns once the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.Infof("Server starting on port %s", s.config.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
