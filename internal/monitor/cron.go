package monitor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"starling/internal/compose"
	"starling/internal/logging"
	"starling/internal/metrics"
	"starling/internal/model"
)

// startSchedules registers the trend research and composed-post cron
// entries. Returns nil when nothing is scheduled. Entries stop firing
// when ctx ends.
func (m *Monitor) startSchedules(ctx context.Context) *cron.Cron {
	c := cron.New(cron.WithLocation(m.loc))
	entries := 0
	if m.scout != nil {
		for _, spec := range m.cfg.Trends.Schedules {
			if _, err := c.AddFunc(spec, func() { m.runResearch(ctx) }); err != nil {
				logging.Error("cron_spec_error", map[string]any{"spec": spec, "error": err.Error()})
				continue
			}
			entries++
		}
	}
	for _, spec := range m.cfg.Content.PostSchedules {
		if _, err := c.AddFunc(spec, func() { m.runScheduledPost(ctx) }); err != nil {
			logging.Error("cron_spec_error", map[string]any{"spec": spec, "error": err.Error()})
			continue
		}
		entries++
	}
	if entries == 0 {
		return nil
	}
	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	logging.Info("schedules_started", map[string]any{"entries": entries})
	return c
}

func (m *Monitor) runResearch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	found, err := m.scout.Research(ctx, m.now().In(m.loc))
	if err != nil {
		logging.Error("research_error", map[string]any{"error": err.Error()})
		return
	}
	logging.Info("research_done", map[string]any{"trends": len(found)})
}

// runScheduledPost composes one original post, or occasionally a
// thread, from a recent trend and publishes it through the same
// admission and validation path replies take. It holds mu for its whole
// run: the browser session is shared with the cycle loop.
func (m *Monitor) runScheduledPost(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("scheduled_post_panic", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	now := m.now().In(m.loc)
	if m.window.Contains(now) {
		logging.Info("scheduled_post_skipped", map[string]any{"reason": "sleep_window"})
		return
	}
	kind := model.KindPost
	if m.rng.Float64() < m.cfg.Content.ThreadProbability {
		kind = model.KindThread
	}
	if !m.cfg.Content.ApprovalRequired {
		dec, err := m.gate.Admit(ctx, kind, "", now)
		if err != nil {
			logging.Error("admit_error", map[string]any{"error": err.Error(), "kind": string(kind)})
			return
		}
		if !dec.OK {
			metrics.IncAdmissionRejection(dec.Reason)
			logging.Info("admission_rejected", map[string]any{"kind": string(kind), "reason": dec.Reason, "detail": dec.Detail})
			return
		}
	}
	topic := m.pickTopic(ctx)
	prompt := compose.PostPrompt(topic, m.cfg.Validation.MaxPostLen)
	if kind == model.KindThread {
		prompt = compose.ThreadPrompt(topic, 4, m.cfg.Validation.MaxReplyLen)
	}
	text, ok := m.generate(ctx, kind, prompt, "")
	if !ok {
		return
	}
	if m.cfg.Content.ApprovalRequired {
		d := model.Draft{Kind: kind, SourceText: topic, Text: text}
		if err := m.led.SaveDraft(ctx, &d); err != nil {
			logging.Error("draft_save_error", map[string]any{"error": err.Error()})
			return
		}
		logging.Info("draft_saved", map[string]any{"draft": d.ID, "kind": string(kind)})
		return
	}
	var err error
	if kind == model.KindThread {
		err = m.actor.Thread(ctx, compose.ParseThread(text, 0))
	} else {
		err = m.actor.Post(ctx, text)
	}
	if err != nil {
		logging.Error("post_error", map[string]any{"error": err.Error(), "kind": string(kind)})
		return
	}
	m.recordExecuted(ctx, kind, model.CandidateItem{}, text)
}

// pickTopic prefers a recently researched trend, falling back to the
// persona's own topic list.
func (m *Monitor) pickTopic(ctx context.Context) string {
	trs, err := m.led.RecentTrends(ctx, 5)
	if err == nil && len(trs) > 0 {
		tr := trs[m.rng.Intn(len(trs))]
		if tr.Summary != "" {
			return tr.Topic + " (" + tr.Summary + ")"
		}
		return tr.Topic
	}
	if len(m.cfg.Persona.Topics) > 0 {
		return m.cfg.Persona.Topics[m.rng.Intn(len(m.cfg.Persona.Topics))]
	}
	return ""
}
