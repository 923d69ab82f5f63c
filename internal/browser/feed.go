package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-rod/rod"

	"starling/internal/logging"
	"starling/internal/model"
	"starling/internal/util"
)

// ScanFeed loads the home timeline and extracts up to limit candidate
// tweets, skipping promoted placements and duplicates.
func (d *Driver) ScanFeed(ctx context.Context, limit int) ([]model.CandidateItem, error) {
	p := d.p(ctx)
	if err := p.Navigate(homeURL); err != nil {
		return nil, fmt.Errorf("navigate home: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load home: %w", err)
	}
	d.sleepRange(ctx, 1500, 3500)
	if _, err := p.Element(selTweet); err != nil {
		return nil, fmt.Errorf("timeline empty: %w", err)
	}
	d.scrollFeed(ctx, p)
	articles, err := p.Elements(selTweet)
	if err != nil {
		return nil, fmt.Errorf("collect tweets: %w", err)
	}
	seen := make(map[string]bool)
	var items []model.CandidateItem
	for _, a := range articles {
		if limit > 0 && len(items) >= limit {
			break
		}
		item, ok := extractTweet(a)
		if !ok || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	logging.Debug("feed scanned", map[string]any{"articles": len(articles), "candidates": len(items)})
	return items, nil
}

// extractTweet pulls one candidate out of a rendered article. Articles
// missing text or a permalink are not actionable and are skipped.
func extractTweet(a *rod.Element) (model.CandidateItem, bool) {
	var item model.CandidateItem
	if ok, _, _ := a.Has(selPromoted); ok {
		return item, false
	}
	ok, textEl, err := a.Has(selTweetText)
	if !ok || err != nil {
		return item, false
	}
	text, err := textEl.Text()
	if err != nil || strings.TrimSpace(text) == "" {
		return item, false
	}
	item.Text = util.NormalizeWhitespace(text)
	ok, link, err := a.Has(`a[href*="/status/"]`)
	if !ok || err != nil {
		return item, false
	}
	href, err := link.Attribute("href")
	if err != nil || href == nil {
		return item, false
	}
	item.ID = statusIDFromPath(*href)
	if item.ID == "" {
		return item, false
	}
	item.URL = baseURL + *href
	item.AuthorHandle = handleFromPath(*href)
	if ok, group, _ := a.Has(selMetricsGroup); ok {
		if label, err := group.Attribute("aria-label"); err == nil && label != nil {
			item.Metrics = parseMetrics(*label)
		}
	}
	return item, true
}

// statusIDFromPath pulls the numeric id out of a permalink path like
// /somedev/status/1905230000000000000.
func statusIDFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "status" && isDigits(parts[i+1]) {
			return parts[i+1]
		}
	}
	return ""
}

// handleFromPath reads the author handle from a permalink path. The /i/
// namespace carries no handle.
func handleFromPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 0 && parts[0] != "" && parts[0] != "i" {
		return parts[0]
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseMetrics reads engagement counts from the action bar aria-label,
// e.g. "27 replies, 154 reposts, 2,132 likes, 144K views". Segments are
// separated by comma-space; commas inside numbers have no space.
func parseMetrics(label string) model.Metrics {
	var m model.Metrics
	for _, seg := range strings.Split(label, ", ") {
		f := strings.Fields(strings.TrimSpace(seg))
		if len(f) < 2 {
			continue
		}
		n := parseCount(f[0])
		switch word := strings.ToLower(f[1]); {
		case strings.HasPrefix(word, "repl"):
			m.Replies = n
		case strings.HasPrefix(word, "repost") || strings.HasPrefix(word, "retweet"):
			m.Retweets = n
		case strings.HasPrefix(word, "like"):
			m.Likes = n
		}
	}
	return m
}

// parseCount handles "2,132", "144K" and "1.2M" display forms.
func parseCount(s string) int {
	s = strings.ToLower(strings.ReplaceAll(s, ",", ""))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1e3, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1e6, strings.TrimSuffix(s, "m")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f * mult)
}
