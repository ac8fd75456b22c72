// Package export ships committed ledger events to an external webhook in
// signed batches
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/security"
)

// Config holds configuration for event exporting
type Config struct {
	WebhookURL    string
	WebhookAPIKey string

	// BatchSize triggers an immediate export once that many events are queued
	BatchSize int

	// FlushInterval is the period of the background export
	FlushInterval time.Duration

	// Retry policy of the webhook client
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// MaxPending bounds the queue while the webhook is unreachable; the oldest
	// events are dropped beyond it
	MaxPending int
}

// Batch is the signed payload posted to the webhook
type Batch struct {
	Sequence   uint64        `json:"sequence"`
	ExportTime string        `json:"export_time"`
	Count      int           `json:"count"`
	Events     []model.Event `json:"events"`
}

// Status is a snapshot of the exporter counters
type Status struct {
	Pending    int       `json:"pending"`
	Exported   uint64    `json:"exported"`
	Failures   uint64    `json:"failures"`
	Dropped    uint64    `json:"dropped"`
	LastExport time.Time `json:"last_export,omitempty"`
	Signer     string    `json:"signer"`
}

// Exporter batches events and posts them to the webhook
type Exporter struct {
	cfg    Config
	client *retryablehttp.Client
	signer *security.Signer

	mu         sync.Mutex
	pending    []model.Event
	sequence   uint64
	exported   uint64
	failures   uint64
	dropped    uint64
	lastExport time.Time

	// sendMu keeps batches in sequence order
	sendMu sync.Mutex

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an exporter; call Start to run the background loop
func New(cfg Config, signer *security.Signer) (*Exporter, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("export: webhook URL not configured")
	}
	if signer == nil {
		return nil, errors.New("export: signer not configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = cfg.BatchSize * 100
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 3 * time.Second
	}

	return &Exporter{
		cfg:    cfg,
		client: newRetryClient(cfg),
		signer: signer,
		kick:   make(chan struct{}, 1),
	}, nil
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient(cfg Config) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.MaxRetries
	c.RetryWaitMin = cfg.RetryWaitMin
	c.RetryWaitMax = cfg.RetryWaitMax
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = leveledLogger{logrus.WithField("module", "export")}
	return c
}

// Start runs the periodic export until Stop
func (e *Exporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx)
	logrus.WithField("url", e.cfg.WebhookURL).Info("Event exporter started")
}

func (e *Exporter) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-e.kick:
		case <-ctx.Done():
			return
		}
		if err := e.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("Failed to export events: %v", err)
		}
	}
}

// Publish queues events for export. It never blocks on the network.
func (e *Exporter) Publish(_ context.Context, events []model.Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, events...)
	e.trimLocked()
	full := len(e.pending) >= e.cfg.BatchSize
	e.mu.Unlock()

	if full {
		select {
		case e.kick <- struct{}{}:
		default:
		}
	}
}

func (e *Exporter) trimLocked() {
	if over := len(e.pending) - e.cfg.MaxPending; over > 0 {
		e.pending = append([]model.Event(nil), e.pending[over:]...)
		e.dropped += uint64(over)
		logrus.Warnf("Export queue full, dropped %d oldest events", over)
	}
}

// Flush exports everything queued, one batch at a time. Events of a failed
// batch go back to the front of the queue.
func (e *Exporter) Flush(ctx context.Context) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	for {
		e.mu.Lock()
		n := len(e.pending)
		if n == 0 {
			e.mu.Unlock()
			return nil
		}
		if n > e.cfg.BatchSize {
			n = e.cfg.BatchSize
		}
		events := make([]model.Event, n)
		copy(events, e.pending[:n])
		e.pending = e.pending[n:]
		e.sequence++
		batch := Batch{
			Sequence:   e.sequence,
			ExportTime: time.Now().UTC().Format(time.RFC3339),
			Count:      n,
			Events:     events,
		}
		e.mu.Unlock()

		if err := e.send(ctx, batch); err != nil {
			e.mu.Lock()
			e.pending = append(events, e.pending...)
			e.sequence--
			e.failures++
			e.trimLocked()
			e.mu.Unlock()
			return err
		}

		e.mu.Lock()
		e.exported += uint64(n)
		e.lastExport = time.Now()
		e.mu.Unlock()
		logrus.Debugf("Exported batch %d with %d events", batch.Sequence, n)
	}
}

// send signs a batch and posts it to the webhook
func (e *Exporter) send(ctx context.Context, batch Batch) error {
	env, err := e.signer.Sign(batch)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Batch-Signer", env.Signer)
	req.Header.Set("X-Batch-Sequence", fmt.Sprintf("%d", batch.Sequence))
	if e.cfg.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.WebhookAPIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop cleanly stops the exporter and exports what is left
func (e *Exporter) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	return e.Flush(ctx)
}

// Status returns the current status of the exporter
func (e *Exporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Pending:    len(e.pending),
		Exported:   e.exported,
		Failures:   e.failures,
		Dropped:    e.dropped,
		LastExport: e.lastExport,
		Signer:     e.signer.Address().Hex(),
	}
}

// leveledLogger routes retryablehttp logs through logrus
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) fields(kv []interface{}) *logrus.Entry {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return l.entry.WithFields(f)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Trace(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
