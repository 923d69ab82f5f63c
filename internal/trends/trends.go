// Package trends researches what the account's topics are buzzing about
// right now, using a search-backed model, and files the findings in the
// ledger for later composition.
package trends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"starling/internal/compose"
	"starling/internal/config"
	"starling/internal/logging"
	"starling/internal/model"
	"starling/internal/store/ledger"
)

const maxTrendsPerRun = 10

// Scout queries a research model and persists what it finds.
type Scout struct {
	client completer
	led    *ledger.DB
	topics []string
	source string
}

// completer lets tests substitute the model call.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// New builds a Scout. The research endpoint speaks the same chat
// completions dialect as the composer, so the client is shared.
func New(cfg config.TrendsConfig, persona config.PersonaConfig, led *ledger.DB) *Scout {
	return &Scout{
		client: compose.NewClient(config.LLMConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			TimeoutSeconds:    cfg.TimeoutSeconds,
			RequestsPerMinute: 6,
		}),
		led:    led,
		topics: persona.Topics,
		source: cfg.Model,
	}
}

// Research asks for the freshest developments across the persona's
// topics and stores each as a trend row.
func (s *Scout) Research(ctx context.Context, now time.Time) ([]model.Trend, error) {
	subjects := strings.Join(s.topics, ", ")
	if subjects == "" {
		subjects = "software engineering"
	}
	system := "You are a research assistant with live web access. Answer only with the requested lines, no preamble."
	user := fmt.Sprintf(
		"List up to %d notable developments from the last 24 hours in: %s. One per line, formatted exactly as: topic | one-sentence summary. No numbering.",
		maxTrendsPerRun, subjects)
	out, err := s.client.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("research: %w", err)
	}
	found := parseTrends(out, s.source, now)
	for i := range found {
		if err := s.led.SaveTrend(ctx, &found[i]); err != nil {
			return found[:i], fmt.Errorf("save trend: %w", err)
		}
	}
	logging.Info("trend research complete", map[string]any{"found": len(found)})
	return found, nil
}

// parseTrends reads "topic | summary" lines. Lines without a separator
// become topic-only entries; blanks are skipped.
func parseTrends(out, source string, now time.Time) []model.Trend {
	var found []model.Trend
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" {
			continue
		}
		topic, summary := line, ""
		if i := strings.Index(line, "|"); i >= 0 {
			topic = strings.TrimSpace(line[:i])
			summary = strings.TrimSpace(line[i+1:])
		}
		if topic == "" {
			continue
		}
		found = append(found, model.Trend{
			Topic:     topic,
			Summary:   summary,
			Source:    source,
			CreatedAt: now,
		})
		if len(found) == maxTrendsPerRun {
			break
		}
	}
	return found
}
