// Package scheduler runs the periodic ledger audit
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/circuitbreaker"
	"github.com/yourorg/lockstake-ledger/internal/model"
)

// Auditor produces ledger audit reports
type Auditor interface {
	Audit(ctx context.Context) (model.AuditReport, error)
}

// Observer receives every audit report together with the breaker verdict
type Observer func(report model.AuditReport, violation error)

// Result describes the most recent audit run
type Result struct {
	Report    model.AuditReport
	Violation error
	Err       error
	RanAt     time.Time
	Runs      uint64
}

// Scheduler manages the audit cron task.
type Scheduler struct {
	Cron    *cron.Cron
	Auditor Auditor
	Breaker *circuitbreaker.CircuitBreaker
	Ctx     context.Context

	mu        sync.Mutex
	observers []Observer
	last      Result
	log       *logrus.Entry
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, auditor Auditor, breaker *circuitbreaker.CircuitBreaker) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Auditor: auditor,
		Breaker: breaker,
		Ctx:     ctx,
		log:     logrus.WithField("module", "scheduler"),
	}
}

// OnReport registers an observer called after every audit
func (s *Scheduler) OnReport(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Register schedules the audit with a six-field cron expression.
func (s *Scheduler) Register(auditCron string) error {
	if _, err := s.Cron.AddFunc(auditCron, s.auditTask); err != nil {
		return fmt.Errorf("register audit task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("Audit scheduler started")
}

// Stop stops the cron scheduler and waits for a running audit.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("Audit scheduler stopped")
}

// RunNow executes the audit immediately and returns its result.
func (s *Scheduler) RunNow() Result {
	s.auditTask()
	return s.Last()
}

// Last returns the result of the most recent audit
func (s *Scheduler) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) auditTask() {
	ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
	defer cancel()

	report, err := s.Auditor.Audit(ctx)

	s.mu.Lock()
	s.last.Runs++
	s.last.RanAt = time.Now()
	s.last.Err = err
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("Ledger audit failed")
		return
	}

	var violation error
	if s.Breaker != nil {
		// lets an expired trip move to half-open so clean audits can close it
		_ = s.Breaker.Allow()
		violation = s.Breaker.Check(report)
	}
	if violation != nil {
		s.log.WithError(violation).Error("Ledger audit found a violation")
	} else {
		s.log.WithFields(logrus.Fields{
			"funded":      report.TotalFunded.Dec(),
			"reserved":    report.TotalReserved.Dec(),
			"staked":      report.TotalStaked.Dec(),
			"open_stakes": report.OpenStakes,
		}).Debug("Ledger audit passed")
	}

	s.mu.Lock()
	s.last.Report = report
	s.last.Violation = violation
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(report, violation)
	}
}
