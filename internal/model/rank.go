package model

import (
	"math"
	"sort"

	"starling/internal/util"
)

var spammyTokens = []string{"giveaway", "win big", "click here", "promo", "ref code"}

// EngagementScore estimates how much a candidate is worth replying to.
// Heuristics: conversation (replies, retweets) over passive likes, log-damped
// so viral outliers do not dominate, spammy tokens penalized.
func EngagementScore(c CandidateItem) float64 {
	m := c.Metrics
	raw := 2.0*float64(m.Replies) + 1.5*float64(m.Retweets) + 0.5*float64(m.Likes)
	score := math.Log1p(raw)
	if util.ContainsAnyCaseInsensitive(c.Text, spammyTokens) {
		score *= 0.5
	}
	return math.Round(score*100) / 100
}

// RankCandidates orders candidates best-first by EngagementScore, keeping
// feed order for equal scores.
func RankCandidates(items []CandidateItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return EngagementScore(items[i]) > EngagementScore(items[j])
	})
}
