package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/security"
)

type webhook struct {
	mu       sync.Mutex
	batches  []Batch
	auth     []string
	failNext int32
	server   *httptest.Server
	signer   common.Address
}

func newWebhook(t *testing.T, signer common.Address) *webhook {
	w := &webhook{signer: signer}
	w.server = httptest.NewServer(http.HandlerFunc(w.handle))
	t.Cleanup(w.server.Close)
	return w
}

func (w *webhook) handle(rw http.ResponseWriter, r *http.Request) {
	if atomic.AddInt32(&w.failNext, -1) >= 0 {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var env security.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := security.Verify(&env, w.signer, time.Now()); err != nil {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}
	var batch Batch
	if err := json.Unmarshal(env.Payload, &batch); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	w.batches = append(w.batches, batch)
	w.auth = append(w.auth, r.Header.Get("Authorization"))
	w.mu.Unlock()
	rw.WriteHeader(http.StatusNoContent)
}

func (w *webhook) received() []Batch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Batch(nil), w.batches...)
}

func events(n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = model.Event{ID: fmt.Sprintf("ev-%d", i), Type: model.EventStakeOpened, Timestamp: int64(i)}
	}
	return out
}

func newExporter(t *testing.T, url string, cfg Config) *Exporter {
	t.Helper()
	signer, err := security.NewSigner("")
	require.NoError(t, err)
	cfg.WebhookURL = url
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = time.Millisecond
		cfg.RetryWaitMax = 5 * time.Millisecond
	}
	e, err := New(cfg, signer)
	require.NoError(t, err)
	return e
}

func TestNew_RequiresWebhookAndSigner(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	_, err = New(Config{WebhookURL: "http://localhost"}, nil)
	assert.Error(t, err)
}

func TestFlush_SendsSignedBatches(t *testing.T) {
	e := newExporter(t, "", Config{BatchSize: 2, WebhookAPIKey: "secret"})
	hook := newWebhook(t, e.signer.Address())
	e.cfg.WebhookURL = hook.server.URL

	e.Publish(context.Background(), events(5))
	require.NoError(t, e.Flush(context.Background()))

	got := hook.received()
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{got[0].Count, got[1].Count, got[2].Count})
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].Sequence, got[1].Sequence, got[2].Sequence})
	assert.Equal(t, "ev-4", got[2].Events[0].ID)
	assert.Equal(t, "Bearer secret", hook.auth[0])

	st := e.Status()
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, uint64(5), st.Exported)
	assert.False(t, st.LastExport.IsZero())
}

func TestFlush_RetriesTransientFailures(t *testing.T) {
	e := newExporter(t, "", Config{BatchSize: 10, MaxRetries: 3})
	hook := newWebhook(t, e.signer.Address())
	hook.failNext = 2
	e.cfg.WebhookURL = hook.server.URL

	e.Publish(context.Background(), events(3))
	require.NoError(t, e.Flush(context.Background()))
	require.Len(t, hook.received(), 1)
	assert.Equal(t, uint64(0), e.Status().Failures)
}

func TestFlush_RequeuesOnFailure(t *testing.T) {
	e := newExporter(t, "", Config{BatchSize: 10})
	hook := newWebhook(t, e.signer.Address())
	hook.failNext = 1
	e.cfg.WebhookURL = hook.server.URL

	e.Publish(context.Background(), events(3))
	require.Error(t, e.Flush(context.Background()))

	st := e.Status()
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, uint64(1), st.Failures)

	require.NoError(t, e.Flush(context.Background()))
	got := hook.received()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Sequence, "failed batch keeps its sequence")
	assert.Equal(t, "ev-0", got[0].Events[0].ID)
}

func TestPublish_DropsOldestBeyondMaxPending(t *testing.T) {
	e := newExporter(t, "http://127.0.0.1:1", Config{BatchSize: 100, MaxPending: 4})

	e.Publish(context.Background(), events(6))
	st := e.Status()
	assert.Equal(t, 4, st.Pending)
	assert.Equal(t, uint64(2), st.Dropped)
}

func TestStart_ExportsWhenBatchFills(t *testing.T) {
	e := newExporter(t, "", Config{BatchSize: 3, FlushInterval: time.Hour})
	hook := newWebhook(t, e.signer.Address())
	e.cfg.WebhookURL = hook.server.URL
	e.Start()

	e.Publish(context.Background(), events(3))
	assert.Eventually(t, func() bool { return len(hook.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	e.Publish(context.Background(), events(1))
	require.NoError(t, e.Stop(context.Background()))
	assert.Len(t, hook.received(), 2, "stop flushes the remainder")
}
