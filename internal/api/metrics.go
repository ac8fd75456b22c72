package api

import (
	"context"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	registry *prometheus.Registry
	engine   *ledger.Engine

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejected        *prometheus.CounterVec
	events          *prometheus.CounterVec
	ledgerTotals    *prometheus.GaugeVec
	circuitBreaker  prometheus.Gauge
	auditViolations prometheus.Counter
	openStakes      prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection on a private registry
func registerMetrics(engine *ledger.Engine) *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		engine:   engine,
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstake_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lockstake_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstake_rejected_calls_total",
				Help: "Ledger calls rejected, by error kind",
			},
			[]string{"kind"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstake_events_total",
				Help: "Committed ledger events by type",
			},
			[]string{"type"},
		),
		ledgerTotals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lockstake_ledger_tokens",
				Help: "Ledger totals in whole tokens",
			},
			[]string{"total"},
		),
		circuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockstake_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		auditViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lockstake_audit_violations_total",
				Help: "Audits that found a broken ledger invariant",
			},
		),
		openStakes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lockstake_open_stakes",
				Help: "Open stakes at the last audit",
			},
		),
	}

	m.registry.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.rejected,
		m.events,
		m.ledgerTotals,
		m.circuitBreaker,
		m.auditViolations,
		m.openStakes,
	)
	return m
}

// Publish counts committed events and refreshes the pool gauges
func (m *serverMetrics) Publish(_ context.Context, events []model.Event) {
	for _, ev := range events {
		m.events.WithLabelValues(ev.Type).Inc()
	}
	if m.engine == nil {
		return
	}
	pool := m.engine.Pool()
	m.setTotal("funded", pool.TotalFunded)
	m.setTotal("reserved", pool.TotalReserved)
	m.setTotal("staked", pool.TotalStaked)
	m.setTotal("compound", pool.TotalCompound)
}

// ObserveAudit records an audit report and the breaker verdict
func (m *serverMetrics) ObserveAudit(report model.AuditReport, violation error) {
	m.ledgerTotals.WithLabelValues("funded").Set(tokenFloat(&report.TotalFunded))
	m.ledgerTotals.WithLabelValues("reserved").Set(tokenFloat(&report.TotalReserved))
	m.ledgerTotals.WithLabelValues("staked").Set(tokenFloat(&report.TotalStaked))
	m.ledgerTotals.WithLabelValues("compound").Set(tokenFloat(&report.TotalCompound))
	m.ledgerTotals.WithLabelValues("custody").Set(tokenFloat(&report.CustodyBalance))
	m.openStakes.Set(float64(report.OpenStakes))
	if violation != nil {
		m.auditViolations.Inc()
	}
}

func (m *serverMetrics) setBreaker(state circuitbreaker.State) {
	m.circuitBreaker.Set(float64(state))
}

func (m *serverMetrics) setTotal(name, dec string) {
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		return
	}
	m.ledgerTotals.WithLabelValues(name).Set(tokenFloat(v))
}

// tokenFloat converts base units to whole tokens for gauges
func tokenFloat(v *uint256.Int) float64 {
	f, err := strconv.ParseFloat(types.FormatTokens(v), 64)
	if err != nil {
		return 0
	}
	return f
}
