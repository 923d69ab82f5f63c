package monitor

import (
	"context"
	"fmt"
	"time"

	"starling/internal/compose"
	"starling/internal/gate"
	"starling/internal/logging"
	"starling/internal/metrics"
	"starling/internal/model"
	"starling/internal/util"
)

// runCycle is one pass of the engagement loop. The returned duration is
// the pause before the next cycle.
func (m *Monitor) runCycle(ctx context.Context) (time.Duration, error) {
	now := m.now().In(m.loc)
	if m.window.Contains(now) {
		logging.Info("sleep_window", map[string]any{"wake": m.window.NextWake(now).Format("15:04")})
		return m.nap(m.cfg.Pacing.SleepWindowNapMinutes, 30), nil
	}
	m.gate.Rollover(now)
	if m.gate.HourlyTargetMet(now) {
		done, target := m.gate.HourlyState()
		logging.Info("hourly_target_met", map[string]any{"done": done, "target": target})
		return m.nap(m.cfg.Pacing.HourlyMetNapMinutes, 5), nil
	}
	if err := m.postApprovedDrafts(ctx); err != nil {
		return 0, err
	}
	items, err := m.feed.ScanFeed(ctx, m.cfg.Pacing.FeedScanMax)
	if err != nil {
		return 0, fmt.Errorf("scan feed: %w", err)
	}
	items = dedupeByID(items)
	model.RankCandidates(items)
	logging.Debug("cycle_candidates", map[string]any{"count": len(items)})

	replies := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if replies >= m.cfg.Pacing.MaxRepliesPerCycle {
			break
		}
		// reading pause before acting on each candidate
		delay := m.randDuration(m.cfg.Pacing.CandidateDelayMinMs, m.cfg.Pacing.CandidateDelayMaxMs, time.Millisecond)
		if !sleepCtx(ctx, delay) {
			return 0, ctx.Err()
		}
		replied, stop, brk := m.handleCandidate(ctx, item)
		if replied {
			replies++
		}
		if brk > 0 {
			logging.Info("session_break", map[string]any{"minutes": fmt.Sprintf("%.1f", brk.Minutes())})
			metrics.SessionBreaks.Inc()
			if !sleepCtx(ctx, brk) {
				return 0, ctx.Err()
			}
		}
		if stop {
			break
		}
	}
	pause := m.randDuration(m.cfg.Pacing.CycleMinSeconds, m.cfg.Pacing.CycleMaxSeconds, time.Second) +
		m.randDuration(m.cfg.Pacing.CycleJitterMinSeconds, m.cfg.Pacing.CycleJitterMaxSeconds, time.Second)
	return pause, nil
}

func (m *Monitor) nap(minutes, def int) time.Duration {
	if minutes <= 0 {
		minutes = def
	}
	return time.Duration(minutes) * time.Minute
}

func dedupeByID(items []model.CandidateItem) []model.CandidateItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

// handleCandidate takes one ranked candidate through admission,
// generation, validation and execution. stop reports a batch-scope
// rejection that ends the cycle's candidate loop; brk is a session break
// the caller must sleep out. Collaborator failures only cost the
// candidate.
//
// A tweet is handled at most once: admitted candidates are marked in the
// ledger before generation runs, so later scans skip them even when every
// generation attempt fails validation. Cooldown and skip rejections leave
// the tweet unmarked and eligible for a later pass.
func (m *Monitor) handleCandidate(ctx context.Context, item model.CandidateItem) (replied, stop bool, brk time.Duration) {
	now := m.now().In(m.loc)
	seen, err := m.led.TargetSeen(ctx, item.ID)
	if err != nil {
		logging.Error("seen_check_error", map[string]any{"error": err.Error(), "target": item.ID})
		return false, false, 0
	}
	if seen {
		logging.Debug("candidate_seen", map[string]any{"target": item.ID})
		return false, false, 0
	}
	dec, err := m.gate.Admit(ctx, model.KindReply, item.AuthorHandle, now)
	if err != nil {
		logging.Error("admit_error", map[string]any{"error": err.Error(), "target": item.ID})
		return false, false, 0
	}
	if !dec.OK {
		metrics.IncAdmissionRejection(dec.Reason)
		logging.Info("admission_rejected", map[string]any{"kind": "reply", "reason": dec.Reason, "detail": dec.Detail, "target": item.ID})
		return false, dec.Scope == gate.ScopeBatch, 0
	}
	if err := m.led.MarkTarget(ctx, item.ID, now); err != nil {
		logging.Error("target_mark_error", map[string]any{"error": err.Error(), "target": item.ID})
		return false, false, 0
	}
	text, ok := m.generate(ctx, model.KindReply, compose.ReplyPrompt(item.AuthorHandle, item.Text, m.cfg.Validation.MaxReplyLen), item.ID)
	if !ok {
		return false, false, 0
	}
	if m.cfg.Content.ApprovalRequired {
		d := model.Draft{Kind: model.KindReply, TargetID: item.ID, TargetAuthor: item.AuthorHandle, SourceText: item.Text, Text: text}
		if err := m.led.SaveDraft(ctx, &d); err != nil {
			logging.Error("draft_save_error", map[string]any{"error": err.Error(), "target": item.ID})
			return false, false, 0
		}
		logging.Info("draft_saved", map[string]any{"draft": d.ID, "target": item.ID})
		return false, false, m.engagementExtras(ctx, item)
	}
	if err := m.actor.Reply(ctx, item, text); err != nil {
		logging.Error("reply_error", map[string]any{"error": err.Error(), "target": item.ID})
		return false, false, 0
	}
	brk = m.recordExecuted(ctx, model.KindReply, item, text)
	if brk == 0 {
		brk = m.engagementExtras(ctx, item)
	}
	return true, false, brk
}

// generate asks the model for text and validates it, regenerating on
// rejection up to the configured retry count.
func (m *Monitor) generate(ctx context.Context, kind model.ActionKind, prompt, target string) (string, bool) {
	attempts := m.cfg.Content.GenerationRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := m.llm.Complete(ctx, m.system, prompt)
		if err != nil {
			metrics.GenerationErrors.Inc()
			logging.Error("generation_error", map[string]any{"error": err.Error(), "kind": string(kind), "target": target})
			return "", false
		}
		ok, reason := m.validateText(kind, text)
		if ok {
			return text, true
		}
		metrics.IncValidationRejection(reason)
		logging.Info("validation_rejected", map[string]any{"reason": reason, "attempt": attempt, "kind": string(kind), "target": target})
	}
	return "", false
}

// validateText applies the checker, per part for threads.
func (m *Monitor) validateText(kind model.ActionKind, text string) (bool, string) {
	if kind != model.KindThread {
		return m.check.Check(text, kind, m.hist.Items())
	}
	parts := compose.ParseThread(text, 0)
	if len(parts) == 0 {
		return false, "empty"
	}
	for _, part := range parts {
		if ok, reason := m.check.Check(part, kind, m.hist.Items()); !ok {
			return false, reason
		}
	}
	return true, ""
}

// recordExecuted advances pacing state and writes the durable trail for
// an action that already happened on x.com. Storage failures are logged
// loudly; they cannot undo the action.
func (m *Monitor) recordExecuted(ctx context.Context, kind model.ActionKind, item model.CandidateItem, text string) time.Duration {
	now := m.now().In(m.loc)
	brk, err := m.gate.RecordSuccess(ctx, kind, item.AuthorHandle, now)
	if err != nil {
		logging.Error("record_error", map[string]any{"error": err.Error(), "kind": string(kind), "target": item.ID})
	}
	metrics.IncAction(string(kind))
	if kind == model.KindReply && text != "" {
		m.hist.Add(text)
		if err := m.led.AppendHistory(ctx, text, now); err != nil {
			logging.Error("history_error", map[string]any{"error": err.Error()})
		}
	}
	rec := model.ActionRecord{Kind: kind, TargetID: item.ID, TargetAuthor: item.AuthorHandle, Detail: util.Truncate(text, 120), CreatedAt: now}
	if err := m.led.LogAction(ctx, rec); err != nil {
		logging.Error("action_log_error", map[string]any{"error": err.Error()})
	}
	logging.Info("action_executed", map[string]any{"kind": string(kind), "target": item.ID, "author": item.AuthorHandle})
	return brk
}

// engagementExtras sprinkles a like and occasionally a repost on the
// candidate, each run through admission for its own kind. Extras skip
// the cooldown check: that ledger tracks conversations, not taps.
func (m *Monitor) engagementExtras(ctx context.Context, item model.CandidateItem) time.Duration {
	var brk time.Duration
	if m.rng.Float64() < m.cfg.Content.LikeProbability {
		if d := m.tryExtra(ctx, model.KindLike, item); d > brk {
			brk = d
		}
	}
	if m.rng.Float64() < m.cfg.Content.RetweetProbability {
		if d := m.tryExtra(ctx, model.KindRetweet, item); d > brk {
			brk = d
		}
	}
	return brk
}

func (m *Monitor) tryExtra(ctx context.Context, kind model.ActionKind, item model.CandidateItem) time.Duration {
	now := m.now().In(m.loc)
	dec, err := m.gate.Admit(ctx, kind, "", now)
	if err != nil {
		logging.Error("admit_error", map[string]any{"error": err.Error(), "kind": string(kind), "target": item.ID})
		return 0
	}
	if !dec.OK {
		metrics.IncAdmissionRejection(dec.Reason)
		logging.Info("admission_rejected", map[string]any{"kind": string(kind), "reason": dec.Reason, "target": item.ID})
		return 0
	}
	switch kind {
	case model.KindLike:
		err = m.actor.Like(ctx, item)
	case model.KindRetweet:
		err = m.actor.Retweet(ctx, item)
	}
	if err != nil {
		logging.Error("extra_error", map[string]any{"error": err.Error(), "kind": string(kind), "target": item.ID})
		return 0
	}
	item.AuthorHandle = ""
	return m.recordExecuted(ctx, kind, item, "")
}

// postApprovedDrafts publishes operator-approved drafts, a few per
// cycle, each re-checked by admission at post time. Admission sees a
// fresh clock per draft: a session break slept out mid-pass can move
// the hour.
func (m *Monitor) postApprovedDrafts(ctx context.Context) error {
	max := m.cfg.Content.MaxApprovedPerCycle
	if max <= 0 {
		return nil
	}
	drafts, err := m.led.DraftsByStatus(ctx, model.DraftApproved, max)
	if err != nil {
		return fmt.Errorf("load approved drafts: %w", err)
	}
	for _, d := range drafts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		now := m.now().In(m.loc)
		dec, err := m.gate.Admit(ctx, d.Kind, d.TargetAuthor, now)
		if err != nil {
			logging.Error("admit_error", map[string]any{"error": err.Error(), "draft": d.ID})
			continue
		}
		if !dec.OK {
			metrics.IncAdmissionRejection(dec.Reason)
			logging.Info("draft_deferred", map[string]any{"draft": d.ID, "reason": dec.Reason})
			if dec.Scope == gate.ScopeBatch {
				return nil
			}
			continue
		}
		if err := m.executeDraft(ctx, d); err != nil {
			logging.Error("draft_post_error", map[string]any{"draft": d.ID, "error": err.Error()})
			if uerr := m.led.UpdateDraftStatus(ctx, d.ID, model.DraftFailed, m.now().In(m.loc)); uerr != nil {
				logging.Error("draft_status_error", map[string]any{"draft": d.ID, "error": uerr.Error()})
			}
			continue
		}
		if err := m.led.UpdateDraftStatus(ctx, d.ID, model.DraftPosted, m.now().In(m.loc)); err != nil {
			logging.Error("draft_status_error", map[string]any{"draft": d.ID, "error": err.Error()})
		}
		item := model.CandidateItem{ID: d.TargetID, AuthorHandle: d.TargetAuthor, Text: d.SourceText}
		if brk := m.recordExecuted(ctx, d.Kind, item, d.Text); brk > 0 {
			logging.Info("session_break", map[string]any{"minutes": fmt.Sprintf("%.1f", brk.Minutes())})
			metrics.SessionBreaks.Inc()
			if !sleepCtx(ctx, brk) {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (m *Monitor) executeDraft(ctx context.Context, d model.Draft) error {
	item := model.CandidateItem{ID: d.TargetID, AuthorHandle: d.TargetAuthor, Text: d.SourceText}
	switch d.Kind {
	case model.KindReply:
		return m.actor.Reply(ctx, item, d.Text)
	case model.KindQuote:
		return m.actor.Quote(ctx, item, d.Text)
	case model.KindPost:
		return m.actor.Post(ctx, d.Text)
	case model.KindThread:
		return m.actor.Thread(ctx, compose.ParseThread(d.Text, 0))
	default:
		return fmt.Errorf("unsupported draft kind %q", d.Kind)
	}
}
