// Package journal keeps a queryable history of committed ledger events
package journal

import (
	"context"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// Recorder persists committed events and serves per-account history.
// Publish satisfies ledger.EventSink.
type Recorder interface {
	Publish(ctx context.Context, events []model.Event)
	History(ctx context.Context, account string, limit int) ([]model.Event, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
