// Package ledger is the durable side of admission control: day-keyed action
// counters, per-account contact cooldowns, handled-tweet markers, the
// append-only reply history, and the audit/draft/trend tables.
//
// Counter updates are single-statement upserts so that several processes
// sharing one database file never lose increments to read-then-write races.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"starling/internal/schedule"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("ledger: not found")

// DB wraps the SQLite database holding all durable engine state.
type DB struct {
	sql *sql.DB
	loc *time.Location
}

// Open opens (creating if needed) the ledger at path. Day keys are derived
// in loc; pass the account's local timezone so "today" resets at local
// midnight. A nil loc means time.Local.
func Open(path string, loc *time.Location) (*DB, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer connection; modernc sqlite serializes poorly across many.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d, loc: loc}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS action_counters (
	  day TEXT NOT NULL,
	  kind TEXT NOT NULL,
	  count INTEGER NOT NULL DEFAULT 0,
	  PRIMARY KEY (day, kind)
	);
	CREATE TABLE IF NOT EXISTS account_cooldowns (
	  account TEXT PRIMARY KEY,
	  last_contact INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS targets (
	  id TEXT PRIMARY KEY,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reply_history (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  text TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS action_log (
	  id TEXT PRIMARY KEY,
	  kind TEXT NOT NULL,
	  target_id TEXT,
	  target_author TEXT,
	  detail TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_log_created ON action_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_action_log_kind ON action_log(kind, created_at);
	CREATE TABLE IF NOT EXISTS drafts (
	  id TEXT PRIMARY KEY,
	  kind TEXT NOT NULL,
	  target_id TEXT,
	  target_author TEXT,
	  source_text TEXT,
	  text TEXT NOT NULL,
	  status TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL,
	  posted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status, created_at);
	CREATE TABLE IF NOT EXISTS trends (
	  id TEXT PRIMARY KEY,
	  topic TEXT NOT NULL,
	  summary TEXT,
	  source TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cmd_log (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  name TEXT NOT NULL,
	  args TEXT,
	  status TEXT NOT NULL,
	  elapsed_ms INTEGER NOT NULL,
	  created_at INTEGER NOT NULL
	);
	`)
	return err
}

// DayKey returns the calendar-date partition key for t in the ledger's
// timezone.
func (d *DB) DayKey(t time.Time) string {
	return schedule.DayKey(t.In(d.loc))
}

// normalizeAccount folds an account handle to its canonical cooldown key.
func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(account), "@"))
}

// Prune deletes day counters, history, audit rows, and cooldown rows older
// than before. Returns the number of rows removed.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	cut := before.Unix()
	for _, q := range []struct {
		stmt string
		arg  any
	}{
		{`DELETE FROM action_counters WHERE day < ?`, d.DayKey(before)},
		{`DELETE FROM reply_history WHERE created_at < ?`, cut},
		{`DELETE FROM action_log WHERE created_at < ?`, cut},
		{`DELETE FROM cmd_log WHERE created_at < ?`, cut},
		{`DELETE FROM account_cooldowns WHERE last_contact < ?`, cut},
		{`DELETE FROM targets WHERE created_at < ?`, cut},
	} {
		res, err := d.sql.ExecContext(ctx, q.stmt, q.arg)
		if err != nil {
			return total, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
