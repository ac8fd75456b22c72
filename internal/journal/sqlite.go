package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/yourorg/lockstake-ledger/internal/model"
)

// SQLiteRecorder persists ledger events to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logrus.Entry
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets history reads run next to event writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logrus.WithField("module", "journal")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Infof("SQLite journal opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL UNIQUE,
			type       TEXT NOT NULL,
			account    TEXT,
			timestamp  INTEGER NOT NULL,
			attributes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_account ON events(account, id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Publish writes events in one transaction. Failures are logged; the ledger
// has already committed and must not be affected by the journal.
func (r *SQLiteRecorder) Publish(ctx context.Context, events []model.Event) {
	if len(events) == 0 {
		return
	}
	if err := r.Record(ctx, events); err != nil {
		r.log.WithError(err).Errorf("Failed to journal %d events", len(events))
	}
}

// Record writes events in one transaction
func (r *SQLiteRecorder) Record(ctx context.Context, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO events
		(event_id, type, account, timestamp, attributes)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes of %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Type, strings.ToLower(ev.Account), ev.Timestamp, string(attrs)); err != nil {
			return fmt.Errorf("insert %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// History returns the newest events of account first, at most limit of them
func (r *SQLiteRecorder) History(ctx context.Context, account string, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event_id, type, account, timestamp, attributes
		FROM events WHERE account = ? ORDER BY id DESC LIMIT ?`,
		strings.ToLower(account), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		var (
			ev      model.Event
			account sql.NullString
			attrs   sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &account, &ev.Timestamp, &attrs); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		ev.Account = account.String
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &ev.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes of %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count returns the number of journaled events
func (r *SQLiteRecorder) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("Closing SQLite journal")
	return r.db.Close()
}
