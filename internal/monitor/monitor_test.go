package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"starling/internal/config"
	"starling/internal/gate"
	"starling/internal/model"
	"starling/internal/store/ledger"
)

type fakeFeed struct {
	items    []model.CandidateItem
	err      error
	panicMsg string
	calls    int
}

func (f *fakeFeed) ScanFeed(ctx context.Context, limit int) ([]model.CandidateItem, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.CandidateItem, len(f.items))
	copy(out, f.items)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeActor struct {
	replies  []string
	targets  []string
	posts    []string
	quotes   []string
	threads  [][]string
	likes    int
	retweets int
	replyErr error
}

func (a *fakeActor) Reply(ctx context.Context, item model.CandidateItem, text string) error {
	if a.replyErr != nil {
		return a.replyErr
	}
	a.replies = append(a.replies, text)
	a.targets = append(a.targets, item.ID)
	return nil
}

func (a *fakeActor) Like(ctx context.Context, item model.CandidateItem) error {
	a.likes++
	return nil
}

func (a *fakeActor) Retweet(ctx context.Context, item model.CandidateItem) error {
	a.retweets++
	return nil
}

func (a *fakeActor) Quote(ctx context.Context, item model.CandidateItem, text string) error {
	a.quotes = append(a.quotes, text)
	return nil
}

func (a *fakeActor) Post(ctx context.Context, text string) error {
	a.posts = append(a.posts, text)
	return nil
}

func (a *fakeActor) Thread(ctx context.Context, parts []string) error {
	a.threads = append(a.threads, parts)
	return nil
}

// clockActor advances a test clock when a post goes out, standing in for
// wall time spent mid-pass.
type clockActor struct {
	fakeActor
	onPost func()
}

func (a *clockActor) Post(ctx context.Context, text string) error {
	if a.onPost != nil {
		a.onPost()
	}
	return a.fakeActor.Post(ctx, text)
}

// fakeLLM replays texts/errs by call index; past the end it produces
// distinct filler so dedup checks stay quiet.
type fakeLLM struct {
	texts []string
	errs  []error
	idx   int
}

func (l *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	i := l.idx
	l.idx++
	if i < len(l.errs) && l.errs[i] != nil {
		return "", l.errs[i]
	}
	if i < len(l.texts) {
		return l.texts[i], nil
	}
	return fmt.Sprintf("Fresh angle number %d on the topic.", i), nil
}

var testNow = time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, feed Feed, actor Actor, llm Responder, mutate func(*config.Config)) (*Monitor, *ledger.DB) {
	t.Helper()
	cfg := config.Default()
	cfg.Account.Handle = "starling_test"
	cfg.Account.Timezone = "UTC"
	cfg.Admission.SkipMin, cfg.Admission.SkipMax = 0, 0
	cfg.Admission.SleepStartHour, cfg.Admission.SleepEndHour = 0, 0
	cfg.Admission.HourlyMin, cfg.Admission.HourlyMax = 8, 8
	cfg.Admission.SessionMin, cfg.Admission.SessionMax = 50, 50
	cfg.Admission.BreakMinMinutes, cfg.Admission.BreakMaxMinutes = 1, 1
	cfg.Pacing.CandidateDelayMinMs, cfg.Pacing.CandidateDelayMaxMs = 0, 0
	cfg.Pacing.CycleMinSeconds, cfg.Pacing.CycleMaxSeconds = 0, 0
	cfg.Pacing.CycleJitterMinSeconds, cfg.Pacing.CycleJitterMaxSeconds = 0, 0
	cfg.Content.LikeProbability, cfg.Content.RetweetProbability = 0, 0
	cfg.Content.ThreadProbability = 0
	cfg.Trends.Schedules = nil
	cfg.Content.PostSchedules = nil
	if mutate != nil {
		mutate(&cfg)
	}
	led, err := ledger.Open(":memory:", time.UTC)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { led.Close() })
	g := gate.New(cfg.Admission, led, rand.New(rand.NewSource(1)))
	m, err := New(context.Background(), cfg, led, g, feed, actor, llm, nil, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	m.now = func() time.Time { return testNow }
	return m, led
}

func cand(id, author, text string, likes int) model.CandidateItem {
	return model.CandidateItem{
		ID:           id,
		AuthorHandle: author,
		Text:         text,
		URL:          "https://x.com/" + author + "/status/" + id,
		Metrics:      model.Metrics{Likes: likes},
	}
}

func TestCycleRepliesToRankedCandidates(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("101", "alice", "Shipped a tiny parser today", 5),
		cand("102", "bob", "Debugging a goroutine leak in prod", 500),
		cand("103", "carol", "Thoughts on sqlite for queues", 50),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{
		"Leaks like that usually hide in a missing channel close.",
		"Used sqlite as a queue for a year, the trick is WAL mode.",
		"Parsers are all fun until the error messages matter.",
	}}
	m, led := newTestMonitor(t, feed, actor, llm, nil)

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(actor.replies))
	}
	wantOrder := []string{"102", "103", "101"}
	for i, want := range wantOrder {
		if actor.targets[i] != want {
			t.Fatalf("rank order: target %d = %s, want %s", i, actor.targets[i], want)
		}
	}
	n, err := led.TodayCount(context.Background(), model.KindReply, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 counted replies, got %d", n)
	}
	hist, err := led.RecentHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(hist))
	}
}

func TestCycleSleepWindowNaps(t *testing.T) {
	feed := &fakeFeed{}
	m, _ := newTestMonitor(t, feed, &fakeActor{}, &fakeLLM{}, func(cfg *config.Config) {
		cfg.Admission.SleepStartHour, cfg.Admission.SleepEndHour = 2, 7
	})
	m.now = func() time.Time { return time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC) }

	pause, err := m.runCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if pause != 30*time.Minute {
		t.Fatalf("expected 30m nap, got %v", pause)
	}
	if feed.calls != 0 {
		t.Fatal("feed should not be scanned during the sleep window")
	}
}

func TestCycleHourlyMetNaps(t *testing.T) {
	feed := &fakeFeed{}
	m, _ := newTestMonitor(t, feed, &fakeActor{}, &fakeLLM{}, func(cfg *config.Config) {
		cfg.Admission.HourlyMin, cfg.Admission.HourlyMax = 1, 1
	})
	if _, err := m.gate.RecordSuccess(context.Background(), model.KindReply, "", testNow); err != nil {
		t.Fatalf("record success: %v", err)
	}

	pause, err := m.runCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if pause != 5*time.Minute {
		t.Fatalf("expected 5m nap, got %v", pause)
	}
	if feed.calls != 0 {
		t.Fatal("feed should not be scanned once the hourly target is met")
	}
}

func TestCycleDailyLimitStopsBatch(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("201", "alice", "First candidate", 100),
		cand("202", "bob", "Second candidate", 50),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"One reply is all the budget allows today."}}
	m, _ := newTestMonitor(t, feed, actor, llm, func(cfg *config.Config) {
		cfg.Admission.DailyLimits = map[string]int{"reply": 1}
	})

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(actor.replies))
	}
	if llm.idx != 1 {
		t.Fatalf("generation should not run for the rejected candidate, got %d calls", llm.idx)
	}
}

func TestCycleCooldownSkipsCandidate(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("301", "alice", "Talked to this account recently", 500),
		cand("302", "bob", "Never talked to this one", 50),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"Replying to the account without a cooldown."}}
	m, led := newTestMonitor(t, feed, actor, llm, nil)
	if err := led.RecordContact(context.Background(), "alice", testNow.Add(-2*time.Hour)); err != nil {
		t.Fatalf("record contact: %v", err)
	}

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.targets) != 1 || actor.targets[0] != "302" {
		t.Fatalf("expected only bob's tweet replied, got %v", actor.targets)
	}
}

func TestCycleRegeneratesRejectedText(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("401", "alice", "Hot take on code review", 10),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{
		"Great point about code review!",
		"Review latency matters more than review depth in my experience.",
	}}
	m, _ := newTestMonitor(t, feed, actor, llm, nil)

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.replies) != 1 {
		t.Fatalf("expected 1 reply after regeneration, got %d", len(actor.replies))
	}
	if actor.replies[0] != "Review latency matters more than review depth in my experience." {
		t.Fatalf("wrong text posted: %q", actor.replies[0])
	}
	if llm.idx != 2 {
		t.Fatalf("expected 2 generation attempts, got %d", llm.idx)
	}
}

func TestCycleMixedBatch(t *testing.T) {
	// Three candidates: one on cooldown, one whose generation keeps ending
	// in a question even after the retry, one that goes through cleanly.
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("901", "alice", "Already talked to this account", 500),
		cand("902", "bob", "Generator keeps asking questions here", 50),
		cand("903", "carol", "Clean candidate", 5),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{
		"Curious, what framework was that?",
		"Still wondering what framework that was?",
		"We hit the same wall and ended up writing the scheduler by hand.",
	}}
	m, led := newTestMonitor(t, feed, actor, llm, nil)
	if err := led.RecordContact(context.Background(), "alice", testNow.Add(-time.Hour)); err != nil {
		t.Fatalf("record contact: %v", err)
	}

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.targets) != 1 || actor.targets[0] != "903" {
		t.Fatalf("exactly carol's tweet should get a reply, got %v", actor.targets)
	}
	if llm.idx != 3 {
		t.Fatalf("expected 2 attempts for bob plus 1 for carol, got %d", llm.idx)
	}
	n, err := led.TodayCount(context.Background(), model.KindReply, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 counted reply, got %d", n)
	}
}

func TestCycleHandlesEachTweetOnce(t *testing.T) {
	// The same tweet keeps showing up in the feed; only the first scan may
	// act on it. Approval mode makes the leak visible as queue growth.
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("601", "alice", "Interesting architecture thread", 20),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"Drafted once, then the tweet is done."}}
	m, led := newTestMonitor(t, feed, actor, llm, func(cfg *config.Config) {
		cfg.Content.ApprovalRequired = true
	})

	for i := 0; i < 3; i++ {
		if _, err := m.runCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	pending, err := led.DraftsByStatus(context.Background(), model.DraftPending, 10)
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("one tweet must yield one draft across repeated scans, got %d", len(pending))
	}
	if llm.idx != 1 {
		t.Fatalf("generation must not rerun for a handled tweet, got %d calls", llm.idx)
	}
}

func TestCycleFailedGenerationNotRetriedNextCycle(t *testing.T) {
	// Every attempt ends in a question, exhausting the retry. The tweet is
	// marked handled anyway, so the next scan spends nothing on it.
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("611", "alice", "Generator never produces a clean reply", 20),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{
		"Curious, what framework was that?",
		"Still wondering what framework that was?",
	}}
	m, _ := newTestMonitor(t, feed, actor, llm, nil)

	for i := 0; i < 2; i++ {
		if _, err := m.runCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if llm.idx != 2 {
		t.Fatalf("retry budget should be spent once per tweet, got %d calls", llm.idx)
	}
	if len(actor.replies) != 0 {
		t.Fatalf("nothing should have been posted, got %v", actor.replies)
	}
}

func TestCycleCooldownLeavesTweetEligible(t *testing.T) {
	// A cooldown rejection must not mark the tweet: once the cooldown
	// expires the same tweet can still be replied to.
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("621", "alice", "Worth replying to once alice is off cooldown", 20),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"Off cooldown now, so this goes out."}}
	m, led := newTestMonitor(t, feed, actor, llm, nil)
	if err := led.RecordContact(context.Background(), "alice", testNow.Add(-23*time.Hour)); err != nil {
		t.Fatalf("record contact: %v", err)
	}

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.replies) != 0 {
		t.Fatal("reply should be blocked by the cooldown")
	}
	m.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.targets) != 1 || actor.targets[0] != "621" {
		t.Fatalf("tweet should still be eligible after the cooldown, got %v", actor.targets)
	}
}

func TestCycleGenerationErrorSkipsCandidate(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("501", "alice", "Candidate whose generation fails", 100),
		cand("502", "bob", "Candidate whose generation works", 50),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{
		errs:  []error{errors.New("model unavailable"), nil},
		texts: []string{"", "The failure of the first should not block this."},
	}
	m, _ := newTestMonitor(t, feed, actor, llm, nil)

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.targets) != 1 || actor.targets[0] != "502" {
		t.Fatalf("expected only the second candidate replied, got %v", actor.targets)
	}
}

func TestCycleFeedErrorCooldown(t *testing.T) {
	feed := &fakeFeed{err: errors.New("chrome crashed")}
	m, _ := newTestMonitor(t, feed, &fakeActor{}, &fakeLLM{}, nil)

	pause := m.cycle(context.Background())
	if pause != 60*time.Second {
		t.Fatalf("expected 60s error cooldown, got %v", pause)
	}
}

func TestCyclePanicRecovered(t *testing.T) {
	feed := &fakeFeed{panicMsg: "selector gone"}
	m, _ := newTestMonitor(t, feed, &fakeActor{}, &fakeLLM{}, nil)

	pause := m.cycle(context.Background())
	if pause != 60*time.Second {
		t.Fatalf("expected cooldown pause after panic, got %v", pause)
	}
}

func TestApprovalModeSavesDraft(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("601", "alice", "Interesting architecture thread", 20),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"Drafted but waiting for a human to approve."}}
	m, led := newTestMonitor(t, feed, actor, llm, func(cfg *config.Config) {
		cfg.Content.ApprovalRequired = true
	})

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.replies) != 0 {
		t.Fatal("approval mode must not post directly")
	}
	pending, err := led.DraftsByStatus(context.Background(), model.DraftPending, 10)
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if len(pending) != 1 || pending[0].TargetID != "601" || pending[0].Kind != model.KindReply {
		t.Fatalf("unexpected pending drafts: %+v", pending)
	}
	n, err := led.TodayCount(context.Background(), model.KindReply, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 0 {
		t.Fatalf("draft saving must not consume quota, count=%d", n)
	}
}

func TestCyclePostsApprovedDrafts(t *testing.T) {
	feed := &fakeFeed{}
	actor := &fakeActor{}
	m, led := newTestMonitor(t, feed, actor, &fakeLLM{}, nil)
	d := model.Draft{Kind: model.KindPost, Text: "An approved observation to publish."}
	if err := led.SaveDraft(context.Background(), &d); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if err := led.UpdateDraftStatus(context.Background(), d.ID, model.DraftApproved, testNow); err != nil {
		t.Fatalf("approve draft: %v", err)
	}

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(actor.posts) != 1 || actor.posts[0] != d.Text {
		t.Fatalf("expected the approved draft posted, got %v", actor.posts)
	}
	got, err := led.Draft(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if got.Status != model.DraftPosted {
		t.Fatalf("expected posted status, got %s", got.Status)
	}
	n, err := led.TodayCount(context.Background(), model.KindPost, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected post counted, got %d", n)
	}
}

func TestApprovedDraftsAdmitOnFreshClock(t *testing.T) {
	// Posting the first draft eats enough wall time to cross into the
	// quiet hours; the second draft must be admitted against the moved
	// clock, not the one the pass started with.
	actor := &clockActor{}
	m, led := newTestMonitor(t, &fakeFeed{}, actor, &fakeLLM{}, func(cfg *config.Config) {
		cfg.Admission.SleepStartHour, cfg.Admission.SleepEndHour = 2, 7
	})
	base := time.Date(2025, 6, 10, 1, 30, 0, 0, time.UTC)
	cur := base
	m.now = func() time.Time { return cur }
	actor.onPost = func() { cur = base.Add(45 * time.Minute) }
	ctx := context.Background()
	for i, text := range []string{
		"Posted before the quiet hours begin.",
		"Should wait out the quiet hours first.",
	} {
		d := model.Draft{Kind: model.KindPost, Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := led.SaveDraft(ctx, &d); err != nil {
			t.Fatalf("save draft: %v", err)
		}
		if err := led.UpdateDraftStatus(ctx, d.ID, model.DraftApproved, base); err != nil {
			t.Fatalf("approve draft: %v", err)
		}
	}

	if err := m.postApprovedDrafts(ctx); err != nil {
		t.Fatalf("post drafts: %v", err)
	}
	if len(actor.posts) != 1 || actor.posts[0] != "Posted before the quiet hours begin." {
		t.Fatalf("only the first draft should go out, got %v", actor.posts)
	}
	left, err := led.DraftsByStatus(ctx, model.DraftApproved, 10)
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if len(left) != 1 || left[0].Text != "Should wait out the quiet hours first." {
		t.Fatalf("second draft should stay approved, got %+v", left)
	}
}

func TestSessionBreakBlocksLoop(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("701", "alice", "First tweet", 100),
		cand("702", "bob", "Second tweet", 50),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"The break should start right after this one."}}
	m, _ := newTestMonitor(t, feed, actor, llm, func(cfg *config.Config) {
		cfg.Admission.SessionMin, cfg.Admission.SessionMax = 1, 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.runCycle(ctx)
	if err == nil {
		t.Fatal("expected ctx error while blocked on the session break")
	}
	if len(actor.replies) != 1 {
		t.Fatalf("expected 1 reply before the break, got %d", len(actor.replies))
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("break did not block: %v", elapsed)
	}
}

func TestCycleLikesWhenProbabilityHits(t *testing.T) {
	feed := &fakeFeed{items: []model.CandidateItem{
		cand("801", "alice", "Something worth a like", 10),
	}}
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"The reply that rides along with the like."}}
	m, led := newTestMonitor(t, feed, actor, llm, func(cfg *config.Config) {
		cfg.Content.LikeProbability = 1.0
	})

	if _, err := m.runCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if actor.likes != 1 {
		t.Fatalf("expected 1 like, got %d", actor.likes)
	}
	n, err := led.TodayCount(context.Background(), model.KindLike, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected like counted, got %d", n)
	}
}

func TestScheduledPostPublishes(t *testing.T) {
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"A small lesson from today: measure before caching."}}
	m, led := newTestMonitor(t, &fakeFeed{}, actor, llm, nil)

	m.runScheduledPost(context.Background())
	if len(actor.posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(actor.posts))
	}
	n, err := led.TodayCount(context.Background(), model.KindPost, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected post counted, got %d", n)
	}
}

func TestScheduledThreadPublishes(t *testing.T) {
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{
		"1. Caching felt like the obvious fix for our slow dashboard.\n2. Profiling said otherwise, the time went to JSON encoding.\n3. One streaming encoder later the cache never shipped.",
	}}
	m, led := newTestMonitor(t, &fakeFeed{}, actor, llm, func(cfg *config.Config) {
		cfg.Content.ThreadProbability = 1.0
	})

	m.runScheduledPost(context.Background())
	if len(actor.posts) != 0 {
		t.Fatalf("thread compositions must not go out as single posts, got %v", actor.posts)
	}
	if len(actor.threads) != 1 || len(actor.threads[0]) != 3 {
		t.Fatalf("expected one 3-part thread, got %v", actor.threads)
	}
	if actor.threads[0][0] != "Caching felt like the obvious fix for our slow dashboard." {
		t.Fatalf("numbering not stripped: %q", actor.threads[0][0])
	}
	n, err := led.TodayCount(context.Background(), model.KindThread, testNow)
	if err != nil {
		t.Fatalf("today count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected thread counted, got %d", n)
	}
}

func TestScheduledPostApprovalSavesDraft(t *testing.T) {
	actor := &fakeActor{}
	llm := &fakeLLM{texts: []string{"Waiting for approval before this goes out."}}
	m, led := newTestMonitor(t, &fakeFeed{}, actor, llm, func(cfg *config.Config) {
		cfg.Content.ApprovalRequired = true
	})

	m.runScheduledPost(context.Background())
	if len(actor.posts) != 0 {
		t.Fatal("approval mode must not post directly")
	}
	pending, err := led.DraftsByStatus(context.Background(), model.DraftPending, 10)
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != model.KindPost {
		t.Fatalf("unexpected pending drafts: %+v", pending)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeFeed{}, &fakeActor{}, &fakeLLM{}, func(cfg *config.Config) {
		cfg.Pacing.CycleMinSeconds, cfg.Pacing.CycleMaxSeconds = 1, 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
