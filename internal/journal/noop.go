package journal

import (
	"context"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Publish(_ context.Context, _ []model.Event) {}
func (n *NoopRecorder) History(_ context.Context, _ string, _ int) ([]model.Event, error) {
	return []model.Event{}, nil
}
func (n *NoopRecorder) Count(_ context.Context) (int64, error) { return 0, nil }
func (n *NoopRecorder) Close() error                           { return nil }
