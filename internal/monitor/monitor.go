// Package monitor is the engine's main loop: scan the timeline, rank
// candidates, run each through admission, generation and validation,
// execute what survives, and pace everything so the account behaves like
// a person. One failing cycle never stops the loop.
package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"starling/internal/compose"
	"starling/internal/config"
	"starling/internal/gate"
	"starling/internal/logging"
	"starling/internal/metrics"
	"starling/internal/model"
	"starling/internal/schedule"
	"starling/internal/store/ledger"
	"starling/internal/validate"
)

// Feed surfaces candidate tweets from the home timeline.
type Feed interface {
	ScanFeed(ctx context.Context, limit int) ([]model.CandidateItem, error)
}

// Actor executes actions against x.com.
type Actor interface {
	Reply(ctx context.Context, item model.CandidateItem, text string) error
	Like(ctx context.Context, item model.CandidateItem) error
	Retweet(ctx context.Context, item model.CandidateItem) error
	Quote(ctx context.Context, item model.CandidateItem, text string) error
	Post(ctx context.Context, text string) error
	Thread(ctx context.Context, parts []string) error
}

// Responder generates text in the account voice.
type Responder interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Researcher files fresh trend rows for later composition.
type Researcher interface {
	Research(ctx context.Context, now time.Time) ([]model.Trend, error)
}

// Monitor owns the engagement loop and the cron-fired side schedules.
// mu serializes cycles and scheduled posts over the single browser
// session.
type Monitor struct {
	cfg    config.Config
	led    *ledger.DB
	gate   *gate.Gate
	check  *validate.Checker
	hist   *validate.History
	feed   Feed
	actor  Actor
	llm    Responder
	scout  Researcher
	rng    *rand.Rand
	loc    *time.Location
	window schedule.Window
	system string
	now    func() time.Time
	mu     sync.Mutex
}

// New wires a Monitor. scout may be nil when trend research is not
// configured. The reply-history window is reseeded from the ledger so
// restarts keep deduplicating against recent output.
func New(ctx context.Context, cfg config.Config, led *ledger.DB, g *gate.Gate, feed Feed, actor Actor, llm Responder, scout Researcher, rng *rand.Rand) (*Monitor, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	hist := validate.NewHistory(cfg.Validation.HistoryWindow)
	recent, err := led.RecentHistory(ctx, cfg.Validation.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("seed history: %w", err)
	}
	hist.Seed(recent)
	return &Monitor{
		cfg:    cfg,
		led:    led,
		gate:   g,
		check:  validate.New(cfg.Validation),
		hist:   hist,
		feed:   feed,
		actor:  actor,
		llm:    llm,
		scout:  scout,
		rng:    rng,
		loc:    loc,
		window: schedule.Window{Start: cfg.Admission.SleepStartHour, End: cfg.Admission.SleepEndHour},
		system: compose.SystemPrompt(cfg.Persona),
		now:    time.Now,
	}, nil
}

// Run drives cycles until ctx ends. The pause between cycles comes from
// the cycle itself: a nap for sleep window or met hourly target, the
// error cooldown after a failed cycle, or the randomized inter-cycle
// pause.
func (m *Monitor) Run(ctx context.Context) error {
	metrics.MonitorRunning.Set(1)
	defer metrics.MonitorRunning.Set(0)
	logging.Info("monitor_start", map[string]any{"handle": m.cfg.Account.Handle})
	if cr := m.startSchedules(ctx); cr != nil {
		defer cr.Stop()
	}
	for {
		pause := m.cycle(ctx)
		if ctx.Err() != nil {
			logging.Info("monitor_stop", nil)
			return ctx.Err()
		}
		if !sleepCtx(ctx, pause) {
			logging.Info("monitor_stop", nil)
			return ctx.Err()
		}
	}
}

// cycle runs one guarded cycle and returns the pause to take before the
// next one. Panics and errors are absorbed here so the loop survives
// anything a cycle does.
func (m *Monitor) cycle(ctx context.Context) (pause time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()
	metrics.Cycles.Inc()
	defer func() {
		metrics.ObserveCycleDuration(start)
		if r := recover(); r != nil {
			metrics.CycleErrors.Inc()
			logging.Error("cycle_error", map[string]any{"panic": fmt.Sprint(r)})
			pause = m.errorCooldown()
		}
	}()
	var err error
	pause, err = m.runCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		metrics.CycleErrors.Inc()
		logging.Error("cycle_error", map[string]any{"error": err.Error()})
		return m.errorCooldown()
	}
	return pause
}

func (m *Monitor) errorCooldown() time.Duration {
	secs := m.cfg.Pacing.ErrorCooldownSeconds
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// randDuration draws uniformly from [min,max] in the given unit. Callers
// must hold mu; the rng is not safe for concurrent use.
func (m *Monitor) randDuration(min, max int, unit time.Duration) time.Duration {
	if max < min {
		max = min
	}
	n := min
	if max > min {
		n = min + m.rng.Intn(max-min+1)
	}
	return time.Duration(n) * unit
}

// sleepCtx blocks for d, reporting false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
