// Package gate is the admission policy: for every candidate action it
// decides whether the action may run right now, given the sleep window,
// daily and hourly quotas, per-account cooldowns, and a deliberate random
// skip. It also paces sessions, forcing a break after a run of consecutive
// actions.
//
// Hourly and session targets are process-local; only the day counters and
// cooldowns in the ledger are shared between processes.
package gate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"starling/internal/config"
	"starling/internal/model"
	"starling/internal/schedule"
)

// Ledger is the slice of the durable store the gate needs.
type Ledger interface {
	TodayCount(ctx context.Context, kind model.ActionKind, now time.Time) (int, error)
	OnCooldown(ctx context.Context, account string, window time.Duration, now time.Time) (bool, time.Duration, error)
	RecordAction(ctx context.Context, kind model.ActionKind, at time.Time) error
	RecordContact(ctx context.Context, account string, at time.Time) error
}

// Scope says how far a rejection reaches.
type Scope int

const (
	// ScopeCandidate rejections skip one candidate; the batch goes on.
	ScopeCandidate Scope = iota
	// ScopeBatch rejections end the whole batch: the condition holds for
	// every further candidate too.
	ScopeBatch
)

// Admission rejection reason codes. These appear in logs and metrics; never
// rename.
const (
	ReasonSleepWindow = "sleep_window"
	ReasonDailyLimit  = "daily_limit"
	ReasonHourlyLimit = "hourly_limit"
	ReasonCooldown    = "cooldown"
	ReasonRandomSkip  = "random_skip"
)

// Decision is the outcome of one admission check.
type Decision struct {
	OK     bool
	Reason string
	Scope  Scope
	Detail string
}

// Gate evaluates admission for one running scheduler. Not safe for
// concurrent use.
type Gate struct {
	cfg      config.AdmissionConfig
	led      Ledger
	window   schedule.Window
	cooldown time.Duration
	rng      *rand.Rand

	hourStart      time.Time
	actionsHour    int
	hourlyTarget   int
	actionsSession int
	sessionTarget  int
}

// New builds a Gate. A nil rng gets a time-seeded one; tests pass a seeded
// source for determinism.
func New(cfg config.AdmissionConfig, led Ledger, rng *rand.Rand) *Gate {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Gate{
		cfg:      cfg,
		led:      led,
		window:   schedule.Window{Start: cfg.SleepStartHour, End: cfg.SleepEndHour},
		cooldown: time.Duration(cfg.CooldownHours) * time.Hour,
		rng:      rng,
	}
	if g.cooldown <= 0 {
		g.cooldown = 24 * time.Hour
	}
	g.hourlyTarget = g.rollRange(cfg.HourlyMin, cfg.HourlyMax)
	g.sessionTarget = g.rollRange(cfg.SessionMin, cfg.SessionMax)
	return g
}

// rollRange draws uniformly from [min,max] inclusive.
func (g *Gate) rollRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + g.rng.Intn(max-min+1)
}

// InSleepWindow reports whether now falls in the configured sleep window.
func (g *Gate) InSleepWindow(now time.Time) bool { return g.window.Contains(now) }

// Rollover resets the hourly counter and re-rolls the hourly target when the
// clock hour has changed since the last call. Returns true when it rolled.
func (g *Gate) Rollover(now time.Time) bool {
	hs := schedule.HourStart(now)
	if !g.hourStart.IsZero() && hs.Equal(g.hourStart) {
		return false
	}
	g.hourStart = hs
	g.actionsHour = 0
	g.hourlyTarget = g.rollRange(g.cfg.HourlyMin, g.cfg.HourlyMax)
	return true
}

// HourlyTargetMet reports whether this hour's reply target is already
// reached.
func (g *Gate) HourlyTargetMet(now time.Time) bool {
	g.Rollover(now)
	return g.actionsHour >= g.hourlyTarget
}

// HourlyState returns the reply count and target for the current hour.
func (g *Gate) HourlyState() (actions, target int) { return g.actionsHour, g.hourlyTarget }

// SessionState returns the action count and target for the current session.
func (g *Gate) SessionState() (actions, target int) { return g.actionsSession, g.sessionTarget }

// Admit evaluates the admission checks for one candidate action, in fixed
// order: sleep window, daily quota, hourly quota, account cooldown, random
// skip. The first failing check decides the rejection; an empty account
// skips the cooldown check. A kind absent from DailyLimits is uncapped;
// a limit of 0 disables the kind outright.
func (g *Gate) Admit(ctx context.Context, kind model.ActionKind, account string, now time.Time) (Decision, error) {
	g.Rollover(now)
	if g.window.Contains(now) {
		return Decision{Reason: ReasonSleepWindow, Scope: ScopeBatch}, nil
	}
	if limit, capped := g.cfg.DailyLimits[string(kind)]; capped {
		n, err := g.led.TodayCount(ctx, kind, now)
		if err != nil {
			return Decision{}, fmt.Errorf("today count: %w", err)
		}
		if n >= limit {
			return Decision{Reason: ReasonDailyLimit, Scope: ScopeBatch, Detail: fmt.Sprintf("%d/%d today", n, limit)}, nil
		}
	}
	if kind == model.KindReply && g.actionsHour >= g.hourlyTarget {
		return Decision{Reason: ReasonHourlyLimit, Scope: ScopeBatch, Detail: fmt.Sprintf("%d/%d this hour", g.actionsHour, g.hourlyTarget)}, nil
	}
	if account != "" {
		on, remaining, err := g.led.OnCooldown(ctx, account, g.cooldown, now)
		if err != nil {
			return Decision{}, fmt.Errorf("cooldown check: %w", err)
		}
		if on {
			return Decision{Reason: ReasonCooldown, Scope: ScopeCandidate, Detail: remaining.Round(time.Minute).String() + " left"}, nil
		}
	}
	p := g.cfg.SkipMin + g.rng.Float64()*(g.cfg.SkipMax-g.cfg.SkipMin)
	if g.rng.Float64() < p {
		return Decision{Reason: ReasonRandomSkip, Scope: ScopeCandidate}, nil
	}
	return Decision{OK: true}, nil
}

// RecordSuccess accounts for one executed action: pacing counters advance
// first, then the durable writes. A failed durable write is returned as an
// error with the pacing already advanced, since the action has happened
// externally either way. The returned duration, when positive, is a forced
// session break the caller must sleep out before any further action.
func (g *Gate) RecordSuccess(ctx context.Context, kind model.ActionKind, account string, now time.Time) (time.Duration, error) {
	g.Rollover(now)
	if kind == model.KindReply {
		g.actionsHour++
	}
	g.actionsSession++
	var brk time.Duration
	if g.actionsSession >= g.sessionTarget {
		g.actionsSession = 0
		g.sessionTarget = g.rollRange(g.cfg.SessionMin, g.cfg.SessionMax)
		brk = g.breakDuration()
	}
	if err := g.led.RecordAction(ctx, kind, now); err != nil {
		return brk, fmt.Errorf("record action: %w", err)
	}
	if account != "" {
		if err := g.led.RecordContact(ctx, account, now); err != nil {
			return brk, fmt.Errorf("record contact: %w", err)
		}
	}
	return brk, nil
}

// breakDuration draws a session break length from the configured range.
func (g *Gate) breakDuration() time.Duration {
	lo := time.Duration(g.cfg.BreakMinMinutes) * time.Minute
	hi := time.Duration(g.cfg.BreakMaxMinutes) * time.Minute
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(g.rng.Int63n(int64(hi-lo)))
}
