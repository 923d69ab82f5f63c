// Package report aggregates ledger history into the summary the report
// command prints.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"starling/internal/model"
	"starling/internal/store/ledger"
	"starling/internal/util"
)

const recentLimit = 10

// DayCounts is one day's per-kind action tally.
type DayCounts struct {
	Day    string
	Counts map[model.ActionKind]int
	Total  int
}

type Report struct {
	Days   []DayCounts // oldest first
	Totals map[model.ActionKind]int
	Drafts map[string]int
	Recent []model.ActionRecord
}

// Build aggregates the trailing days window ending at now.
func Build(ctx context.Context, led *ledger.DB, days int, now time.Time) (Report, error) {
	if days <= 0 {
		days = 7
	}
	rep := Report{Totals: make(map[model.ActionKind]int)}
	for i := days - 1; i >= 0; i-- {
		key := led.DayKey(now.AddDate(0, 0, -i))
		counts, err := led.CountsForDay(ctx, key)
		if err != nil {
			return Report{}, fmt.Errorf("counts for %s: %w", key, err)
		}
		dc := DayCounts{Day: key, Counts: counts}
		for kind, n := range counts {
			dc.Total += n
			rep.Totals[kind] += n
		}
		rep.Days = append(rep.Days, dc)
	}
	drafts, err := led.DraftStatusCounts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("draft counts: %w", err)
	}
	rep.Drafts = drafts
	recent, err := led.RecentActions(ctx, recentLimit)
	if err != nil {
		return Report{}, fmt.Errorf("recent actions: %w", err)
	}
	rep.Recent = recent
	return rep, nil
}

// Render returns the plain-text report the CLI prints.
func Render(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "activity, last %d days\n", len(rep.Days))
	for _, dc := range rep.Days {
		fmt.Fprintf(&b, "  %s  %s\n", dc.Day, formatCounts(dc.Counts))
	}
	fmt.Fprintf(&b, "totals  %s\n", formatCounts(rep.Totals))
	if len(rep.Drafts) > 0 {
		fmt.Fprintf(&b, "drafts  %s\n", formatDrafts(rep.Drafts))
	}
	if len(rep.Recent) > 0 {
		b.WriteString("recent actions\n")
		for _, rec := range rep.Recent {
			line := fmt.Sprintf("  %s  %-7s", rec.CreatedAt.Format("01-02 15:04"), rec.Kind)
			if rec.TargetAuthor != "" {
				line += " @" + rec.TargetAuthor
			}
			if rec.Detail != "" {
				line += "  " + util.Truncate(rec.Detail, 60)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// formatCounts renders counts in the stable kind order, "-" when empty.
func formatCounts(counts map[model.ActionKind]int) string {
	parts := make([]string, 0, len(counts))
	for _, kind := range model.Kinds() {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatDrafts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
