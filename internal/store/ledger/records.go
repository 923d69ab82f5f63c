package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"starling/internal/model"
)

type scanner interface {
	Scan(dest ...any) error
}

// LogAction appends one row to the action audit log. A missing ID is filled
// in.
func (d *DB) LogAction(ctx context.Context, rec model.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO action_log(id, kind, target_id, target_author, detail, created_at)
		VALUES(?,?,?,?,?,?)`,
		rec.ID, string(rec.Kind), rec.TargetID, rec.TargetAuthor, rec.Detail, rec.CreatedAt.Unix())
	return err
}

// CountActionsSince counts audited actions of kind at or after since.
func (d *DB) CountActionsSince(ctx context.Context, kind model.ActionKind, since time.Time) (int, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM action_log WHERE kind=? AND created_at>=?`,
		string(kind), since.Unix())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// RecentActions returns the newest limit audit rows, newest first.
func (d *DB) RecentActions(ctx context.Context, limit int) ([]model.ActionRecord, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, kind, target_id, target_author, detail, created_at
		FROM action_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		var kind string
		var created int64
		if err := rows.Scan(&rec.ID, &kind, &rec.TargetID, &rec.TargetAuthor, &rec.Detail, &created); err != nil {
			return nil, err
		}
		rec.Kind = model.ActionKind(kind)
		rec.CreatedAt = time.Unix(created, 0).In(d.loc)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveDraft inserts a draft, filling ID/status/timestamps when unset.
func (d *DB) SaveDraft(ctx context.Context, dr *model.Draft) error {
	if dr.ID == "" {
		dr.ID = uuid.NewString()
	}
	if dr.Status == "" {
		dr.Status = model.DraftPending
	}
	if dr.CreatedAt.IsZero() {
		dr.CreatedAt = time.Now()
	}
	dr.UpdatedAt = dr.CreatedAt
	_, err := d.sql.ExecContext(ctx, `INSERT INTO drafts(id, kind, target_id, target_author, source_text, text, status, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		dr.ID, string(dr.Kind), dr.TargetID, dr.TargetAuthor, dr.SourceText, dr.Text, dr.Status,
		dr.CreatedAt.Unix(), dr.UpdatedAt.Unix())
	return err
}

func (d *DB) scanDraft(s scanner) (model.Draft, error) {
	var dr model.Draft
	var kind string
	var created, updated int64
	var posted sql.NullInt64
	if err := s.Scan(&dr.ID, &kind, &dr.TargetID, &dr.TargetAuthor, &dr.SourceText, &dr.Text, &dr.Status,
		&created, &updated, &posted); err != nil {
		return dr, err
	}
	dr.Kind = model.ActionKind(kind)
	dr.CreatedAt = time.Unix(created, 0).In(d.loc)
	dr.UpdatedAt = time.Unix(updated, 0).In(d.loc)
	if posted.Valid {
		dr.PostedAt = time.Unix(posted.Int64, 0).In(d.loc)
	}
	return dr, nil
}

const draftCols = `id, kind, target_id, target_author, source_text, text, status, created_at, updated_at, posted_at`

// Draft fetches one draft by id.
func (d *DB) Draft(ctx context.Context, id string) (model.Draft, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+draftCols+` FROM drafts WHERE id=?`, id)
	dr, err := d.scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dr, ErrNotFound
	}
	return dr, err
}

// DraftsByStatus lists drafts in a status, oldest first. An empty status
// lists everything.
func (d *DB) DraftsByStatus(ctx context.Context, status string, limit int) ([]model.Draft, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = d.sql.QueryContext(ctx, `SELECT `+draftCols+` FROM drafts ORDER BY created_at, id LIMIT ?`, limit)
	} else {
		rows, err = d.sql.QueryContext(ctx, `SELECT `+draftCols+` FROM drafts WHERE status=? ORDER BY created_at, id LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Draft
	for rows.Next() {
		dr, err := d.scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

// UpdateDraftStatus moves a draft to status; posted drafts also get their
// posted_at stamp.
func (d *DB) UpdateDraftStatus(ctx context.Context, id, status string, now time.Time) error {
	var (
		res sql.Result
		err error
	)
	if status == model.DraftPosted {
		res, err = d.sql.ExecContext(ctx, `UPDATE drafts SET status=?, updated_at=?, posted_at=? WHERE id=?`,
			status, now.Unix(), now.Unix(), id)
	} else {
		res, err = d.sql.ExecContext(ctx, `UPDATE drafts SET status=?, updated_at=? WHERE id=?`,
			status, now.Unix(), id)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDraftText replaces a draft's text, e.g. after regeneration.
func (d *DB) UpdateDraftText(ctx context.Context, id, text string, now time.Time) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE drafts SET text=?, updated_at=? WHERE id=?`, text, now.Unix(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DraftStatusCounts tallies drafts per status.
func (d *DB) DraftStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT status, COUNT(1) FROM drafts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// SaveTrend stores one researched trend, filling its ID when unset.
func (d *DB) SaveTrend(ctx context.Context, tr *model.Trend) error {
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO trends(id, topic, summary, source, created_at) VALUES(?,?,?,?,?)`,
		tr.ID, tr.Topic, tr.Summary, tr.Source, tr.CreatedAt.Unix())
	return err
}

// RecentTrends returns the newest limit trends, newest first.
func (d *DB) RecentTrends(ctx context.Context, limit int) ([]model.Trend, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, topic, summary, source, created_at
		FROM trends ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trend
	for rows.Next() {
		var tr model.Trend
		var created int64
		if err := rows.Scan(&tr.ID, &tr.Topic, &tr.Summary, &tr.Source, &created); err != nil {
			return nil, err
		}
		tr.CreatedAt = time.Unix(created, 0).In(d.loc)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// LogCommand records one CLI invocation in the audit table.
func (d *DB) LogCommand(ctx context.Context, name, args, status string, elapsed time.Duration, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cmd_log(name, args, status, elapsed_ms, created_at) VALUES(?,?,?,?,?)`,
		name, args, status, elapsed.Milliseconds(), at.Unix())
	return err
}
