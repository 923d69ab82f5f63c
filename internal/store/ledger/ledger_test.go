package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"starling/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", time.UTC)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTodayCountIdempotent(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	n1, err := db.TodayCount(ctx, model.KindReply, now)
	if err != nil {
		t.Fatal(err)
	}
	n2, err := db.TodayCount(ctx, model.KindReply, now)
	if err != nil {
		t.Fatal(err)
	}
	if n1 != 0 || n2 != 0 {
		t.Fatalf("expected 0,0 got %d,%d", n1, n2)
	}

	if err := db.RecordAction(ctx, model.KindReply, now); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAction(ctx, model.KindReply, now); err != nil {
		t.Fatal(err)
	}
	n, err := db.TodayCount(ctx, model.KindReply, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 got %d", n)
	}
}

func TestDayRollover(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	d1 := time.Date(2025, 6, 10, 23, 50, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 11, 0, 10, 0, 0, time.UTC)

	if err := db.RecordAction(ctx, model.KindReply, d1); err != nil {
		t.Fatal(err)
	}
	n, err := db.TodayCount(ctx, model.KindReply, d2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("next-day count should be 0, got %d", n)
	}
	n, err = db.TodayCount(ctx, model.KindReply, d1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("same-day count should be 1, got %d", n)
	}
}

func TestCounterSharedAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	a, err := Open(path, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(path, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.RecordAction(ctx, model.KindLike, now); err != nil {
		t.Fatal(err)
	}
	if err := b.RecordAction(ctx, model.KindLike, now); err != nil {
		t.Fatal(err)
	}
	n, err := a.TodayCount(ctx, model.KindLike, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("increments from both handles should accumulate, got %d", n)
	}
}

func TestCooldownBoundary(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	if err := db.RecordContact(ctx, "@SomeUser", now.Add(-23*time.Hour-59*time.Minute)); err != nil {
		t.Fatal(err)
	}
	on, remaining, err := db.OnCooldown(ctx, "someuser", window, now)
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Fatal("23h59m since contact should still be on cooldown")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("remaining should be about 1m, got %v", remaining)
	}

	if err := db.RecordContact(ctx, "other", now.Add(-24*time.Hour-time.Minute)); err != nil {
		t.Fatal(err)
	}
	on, _, err = db.OnCooldown(ctx, "other", window, now)
	if err != nil {
		t.Fatal(err)
	}
	if on {
		t.Fatal("24h01m since contact should be off cooldown")
	}

	on, _, err = db.OnCooldown(ctx, "never_contacted", window, now)
	if err != nil {
		t.Fatal(err)
	}
	if on {
		t.Fatal("unknown account should not be on cooldown")
	}
}

func TestContactUpsertKeepsOneRow(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	if err := db.RecordContact(ctx, "acct", now.Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordContact(ctx, "acct", now); err != nil {
		t.Fatal(err)
	}
	on, remaining, err := db.OnCooldown(ctx, "acct", 24*time.Hour, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Fatal("refreshed contact should be on cooldown")
	}
	if remaining < 22*time.Hour {
		t.Fatalf("remaining should reflect the newest contact, got %v", remaining)
	}
}

func TestTargetMarkers(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	seen, err := db.TargetSeen(ctx, "555")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("unknown target should not be seen")
	}
	if err := db.MarkTarget(ctx, "555", now); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkTarget(ctx, "555", now.Add(time.Minute)); err != nil {
		t.Fatalf("re-marking should be a no-op, got %v", err)
	}
	seen, err = db.TargetSeen(ctx, "555")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("marked target should be seen")
	}

	// Markers older than the prune horizon are dropped with the rest.
	if err := db.MarkTarget(ctx, "444", now.AddDate(0, 0, -90)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Prune(ctx, now.AddDate(0, 0, -30)); err != nil {
		t.Fatal(err)
	}
	seen, err = db.TargetSeen(ctx, "444")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("pruned marker should be gone")
	}
	seen, err = db.TargetSeen(ctx, "555")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("recent marker should survive the prune")
	}
}

func TestRecentHistoryWindow(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	for i, s := range []string{"one", "two", "three", "four", "five"} {
		if err := db.AppendHistory(ctx, s, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.RecentHistory(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"three", "four", "five"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDraftLifecycle(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	dr := &model.Draft{
		Kind:         model.KindReply,
		TargetID:     "123",
		TargetAuthor: "someone",
		SourceText:   "original post",
		Text:         "generated reply",
		CreatedAt:    now,
	}
	if err := db.SaveDraft(ctx, dr); err != nil {
		t.Fatal(err)
	}
	if dr.ID == "" {
		t.Fatal("SaveDraft should assign an id")
	}

	pending, err := db.DraftsByStatus(ctx, model.DraftPending, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != dr.ID {
		t.Fatalf("pending: %+v", pending)
	}

	if err := db.UpdateDraftStatus(ctx, dr.ID, model.DraftApproved, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateDraftStatus(ctx, dr.ID, model.DraftPosted, now.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, err := db.Draft(ctx, dr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.DraftPosted {
		t.Fatalf("status: %s", got.Status)
	}
	if got.PostedAt.IsZero() {
		t.Fatal("posted draft should carry posted_at")
	}

	if err := db.UpdateDraftStatus(ctx, "missing", model.DraftRejected, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.Draft(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountActionsSince(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{10 * time.Minute, 30 * time.Minute, 2 * time.Hour} {
		rec := model.ActionRecord{Kind: model.KindReply, TargetID: "t", CreatedAt: now.Add(-age)}
		if err := db.LogAction(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	n, err := db.CountActionsSince(ctx, model.KindReply, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 replies in the last hour, got %d", n)
	}
}

func TestPrune(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	old := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	if err := db.RecordAction(ctx, model.KindReply, old); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAction(ctx, model.KindReply, now); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendHistory(ctx, "stale", old); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendHistory(ctx, "fresh", now); err != nil {
		t.Fatal(err)
	}

	removed, err := db.Prune(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatal(err)
	}
	if removed < 2 {
		t.Fatalf("expected at least 2 pruned rows, got %d", removed)
	}
	n, err := db.TodayCount(ctx, model.KindReply, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("current-day counter should survive, got %d", n)
	}
	hist, err := db.RecentHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0] != "fresh" {
		t.Fatalf("history after prune: %v", hist)
	}
}
