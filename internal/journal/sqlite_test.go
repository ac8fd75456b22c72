package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/lockstake-ledger/internal/custody"
	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/model"
	"github.com/yourorg/lockstake-ledger/internal/types"
)

func openRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_History(t *testing.T) {
	r := openRecorder(t)
	ctx := context.Background()
	alice := common.HexToAddress("0xA11CE").Hex()

	require.NoError(t, r.Record(ctx, []model.Event{
		{ID: "1", Type: model.EventPoolFunded, Timestamp: 10, Attributes: map[string]string{"amount": "5"}},
		{ID: "2", Type: model.EventStakeOpened, Account: alice, Timestamp: 11, Attributes: map[string]string{"index": "0"}},
		{ID: "3", Type: model.EventRewardClaimed, Account: alice, Timestamp: 12},
	}))

	history, err := r.History(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "3", history[0].ID, "newest first")
	assert.Equal(t, "2", history[1].ID)
	assert.Equal(t, "0", history[1].Attr("index"))
	assert.Equal(t, int64(11), history[1].Timestamp)

	limited, err := r.History(ctx, alice, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := r.History(ctx, common.HexToAddress("0xb0b").Hex(), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLiteRecorder_DuplicateIDsIgnored(t *testing.T) {
	r := openRecorder(t)
	ctx := context.Background()
	ev := model.Event{ID: "same", Type: model.EventPoolFunded, Timestamp: 1}

	r.Publish(ctx, []model.Event{ev})
	r.Publish(ctx, []model.Event{ev})

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteRecorder_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	r, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	r.Publish(context.Background(), []model.Event{{ID: "a", Type: model.EventPoolFunded, Timestamp: 1}})
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteRecorder_AsEngineSink(t *testing.T) {
	r := openRecorder(t)
	ctx := context.Background()
	owner := common.HexToAddress("0xa0")
	vault := common.HexToAddress("0xc0")
	alice := common.HexToAddress("0xa11ce")

	token := custody.NewMemoryToken("LOCK")
	token.Mint(owner, types.Tokens(1000))
	token.Mint(alice, types.Tokens(1000))
	token.Approve(owner, vault, types.Tokens(1000))
	token.Approve(alice, vault, types.Tokens(1000))

	opts := ledger.DefaultOptions()
	opts.Token, opts.Owner, opts.Custody = token, owner, vault
	engine, err := ledger.New(opts)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	engine.WithClock(func() time.Time { return now }).WithSink(r)

	require.NoError(t, engine.Fund(ctx, owner, types.Tokens(500)))
	_, err = engine.Open(ctx, alice, types.Tokens(100), 2, false)
	require.NoError(t, err)

	history, err := r.History(ctx, alice.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.EventStakeOpened, history[0].Type)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	r.Publish(context.Background(), []model.Event{{ID: "x"}})
	history, err := r.History(context.Background(), "0x1", 5)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NoError(t, r.Close())
}
