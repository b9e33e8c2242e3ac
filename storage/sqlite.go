package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"perflog/event"
)

// SQLite stores events in a single append-only table. The modernc.org
// driver is pure Go and works without CGO.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the SQLite file at dbPath and runs the
// migration that creates the `events` table if it does not exist.
// The caller must call Close() when the program shuts down.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	// busy_timeout makes a writer wait for the lock instead of failing
	// with SQLITE_BUSY when appends arrive concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite allows a single writer at a time; funnel the pool through
	// one connection so parallel appends queue instead of contending.
	db.SetMaxOpenConns(1)

	// Verify the connection quickly.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	// ts is stored as unix nanoseconds so range queries compare exactly.
	const stmt = `
CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    subject     TEXT NOT NULL,
    duration    REAL NOT NULL,
    device      TEXT NOT NULL DEFAULT '',
    input_size  INTEGER NOT NULL DEFAULT 0,
    output_size INTEGER NOT NULL DEFAULT 0,
    extra       TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_kind_ts ON events(kind, ts);
`
	_, err := s.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	s.log.Info("SQLite migration applied")
	return nil
}

// Append inserts one event row.
func (s *SQLite) Append(ctx context.Context, ev event.Event) error {
	extra, err := json.Marshal(ev.Extra)
	if err != nil {
		return persistErr("append", fmt.Errorf("encode extra: %w", err))
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (ts, kind, subject, duration, device, input_size, output_size, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UnixNano(), string(ev.Kind), ev.Subject, ev.DurationSeconds,
		ev.Device, ev.InputSize, ev.OutputSize, string(extra))
	if err != nil {
		return persistErr("append", err)
	}
	s.log.Debug("event persisted",
		zap.String("kind", string(ev.Kind)), zap.String("subject", ev.Subject))
	return nil
}

// Export returns every stored event in insertion order.
func (s *SQLite) Export(ctx context.Context) ([]event.Event, error) {
	return s.selectEvents(ctx,
		`SELECT ts, kind, subject, duration, device, input_size, output_size, extra
		 FROM events ORDER BY id`)
}

// Query returns events of one kind with timestamps in [from, to]. An
// empty kind matches all kinds.
func (s *SQLite) Query(ctx context.Context, kind event.Kind, from, to time.Time) ([]event.Event, error) {
	return s.selectEvents(ctx,
		`SELECT ts, kind, subject, duration, device, input_size, output_size, extra
		 FROM events WHERE (kind = ? OR ? = '') AND ts >= ? AND ts <= ? ORDER BY id`,
		string(kind), string(kind), from.UnixNano(), to.UnixNano())
}

func (s *SQLite) selectEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			ev    event.Event
			ns    int64
			kind  string
			extra string
		)
		if err := rows.Scan(&ns, &kind, &ev.Subject, &ev.DurationSeconds,
			&ev.Device, &ev.InputSize, &ev.OutputSize, &extra); err != nil {
			return nil, persistErr("scan", err)
		}
		ev.Kind = event.Kind(kind)
		ev.Timestamp = time.Unix(0, ns).UTC()
		if extra != "" && extra != "null" {
			if err := json.Unmarshal([]byte(extra), &ev.Extra); err != nil {
				return nil, persistErr("decode extra", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query", err)
	}
	return out, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
