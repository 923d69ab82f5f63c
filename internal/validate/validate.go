// Package validate rejects generated text that reads as machine-written or
// repeats what the account recently said. Checks run in a fixed order and
// the first failure wins, so every rejection maps to exactly one reason
// code.
package validate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"starling/internal/config"
	"starling/internal/model"
	"starling/internal/util"
)

// Rejection reason codes. These appear in logs and metrics; never rename.
const (
	ReasonEmpty        = "empty"
	ReasonTooLong      = "too_long"
	ReasonHashtag      = "hashtag"
	ReasonQuestion     = "question_reply"
	ReasonBannedPhrase = "banned_phrase"
	ReasonBannedEmoji  = "banned_emoji"
	ReasonEmDash       = "em_dash"
	ReasonOpener       = "generic_opener"
	ReasonDuplicate    = "duplicate"
	ReasonSimilarStart = "similar_start"
)

// Checker applies the content rules from the validation config.
type Checker struct {
	maxReplyLen   int
	maxPostLen    int
	similarPrefix int
	banned        []string
	emojis        []string
	openers       []string
}

// New builds a Checker. Phrase and opener lists are matched case-insensitively.
func New(cfg config.ValidationConfig) *Checker {
	c := &Checker{
		maxReplyLen:   cfg.MaxReplyLen,
		maxPostLen:    cfg.MaxPostLen,
		similarPrefix: cfg.SimilarPrefixLen,
		emojis:        cfg.BannedEmojis,
	}
	if c.maxReplyLen <= 0 {
		c.maxReplyLen = 240
	}
	if c.maxPostLen <= 0 {
		c.maxPostLen = 280
	}
	if c.similarPrefix <= 0 {
		c.similarPrefix = 20
	}
	for _, p := range cfg.BannedPhrases {
		c.banned = append(c.banned, strings.ToLower(p))
	}
	for _, o := range cfg.GenericOpeners {
		c.openers = append(c.openers, strings.ToLower(o))
	}
	return c
}

func (c *Checker) maxFor(kind model.ActionKind) int {
	switch kind {
	case model.KindReply, model.KindThread:
		return c.maxReplyLen
	default:
		return c.maxPostLen
	}
}

// Check validates text of the given kind against the rules and the recent
// history window. It returns (true, "") on acceptance, otherwise the first
// violated reason code.
func (c *Checker) Check(text string, kind model.ActionKind, history []string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, ReasonEmpty
	}
	if utf8.RuneCountInString(trimmed) > c.maxFor(kind) {
		return false, ReasonTooLong
	}
	if strings.Contains(trimmed, "#") {
		return false, ReasonHashtag
	}
	if kind == model.KindReply && strings.HasSuffix(trimmed, "?") {
		return false, ReasonQuestion
	}
	lower := strings.ToLower(trimmed)
	for _, p := range c.banned {
		if strings.Contains(lower, p) {
			return false, ReasonBannedPhrase
		}
	}
	for _, e := range c.emojis {
		if e != "" && strings.Contains(trimmed, e) {
			return false, ReasonBannedEmoji
		}
	}
	if strings.ContainsRune(trimmed, '—') {
		return false, ReasonEmDash
	}
	if c.startsGeneric(lower) {
		return false, ReasonOpener
	}
	prefix := util.FirstRunes(lower, c.similarPrefix)
	for _, h := range history {
		hl := strings.ToLower(strings.TrimSpace(h))
		if hl == lower {
			return false, ReasonDuplicate
		}
		if util.FirstRunes(hl, c.similarPrefix) == prefix {
			return false, ReasonSimilarStart
		}
	}
	return true, ""
}

// startsGeneric reports whether lower starts with a configured opener as a
// whole word ("great idea" matches "great", "greatness" does not).
func (c *Checker) startsGeneric(lower string) bool {
	for _, op := range c.openers {
		if op == "" || !strings.HasPrefix(lower, op) {
			continue
		}
		if len(lower) == len(op) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(lower[len(op):])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return true
	}
	return false
}
