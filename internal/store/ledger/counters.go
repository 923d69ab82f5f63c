package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"starling/internal/model"
)

// RecordAction increments today's counter for kind, creating the row on the
// first action of the day. The increment happens inside one upsert statement.
func (d *DB) RecordAction(ctx context.Context, kind model.ActionKind, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO action_counters(day, kind, count) VALUES(?,?,1)
		ON CONFLICT(day, kind) DO UPDATE SET count=count+1`, d.DayKey(at), string(kind))
	return err
}

// TodayCount returns today's count for kind, 0 when no row exists yet.
func (d *DB) TodayCount(ctx context.Context, kind model.ActionKind, now time.Time) (int, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT count FROM action_counters WHERE day=? AND kind=?`,
		d.DayKey(now), string(kind))
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// CountsForDay returns all per-kind counts recorded under the given day key.
func (d *DB) CountsForDay(ctx context.Context, day string) (map[model.ActionKind]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT kind, count FROM action_counters WHERE day=?`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.ActionKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[model.ActionKind(kind)] = n
	}
	return out, rows.Err()
}

// OnCooldown reports whether account was contacted less than window ago,
// and if so how much cooldown remains.
func (d *DB) OnCooldown(ctx context.Context, account string, window time.Duration, now time.Time) (bool, time.Duration, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT last_contact FROM account_cooldowns WHERE account=?`,
		normalizeAccount(account))
	var last int64
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, err
	}
	elapsed := now.Sub(time.Unix(last, 0))
	if elapsed < window {
		return true, window - elapsed, nil
	}
	return false, 0, nil
}

// RecordContact upserts the last-contact timestamp for account.
func (d *DB) RecordContact(ctx context.Context, account string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO account_cooldowns(account, last_contact) VALUES(?,?)
		ON CONFLICT(account) DO UPDATE SET last_contact=excluded.last_contact`,
		normalizeAccount(account), at.Unix())
	return err
}

// MarkTarget remembers a tweet id as handled, so later scans that surface
// the same tweet skip it. Marking an already-marked id is a no-op.
func (d *DB) MarkTarget(ctx context.Context, id string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO targets(id, created_at) VALUES(?,?)
		ON CONFLICT(id) DO NOTHING`, id, at.Unix())
	return err
}

// TargetSeen reports whether a tweet id was already handled.
func (d *DB) TargetSeen(ctx context.Context, id string) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM targets WHERE id=?`, id)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AppendHistory appends one generated text to the durable reply history.
func (d *DB) AppendHistory(ctx context.Context, text string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO reply_history(text, created_at) VALUES(?,?)`,
		text, at.Unix())
	return err
}

// RecentHistory returns the newest limit history texts in oldest-first
// order, for reseeding the in-memory similarity window at startup.
func (d *DB) RecentHistory(ctx context.Context, limit int) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT text FROM reply_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
