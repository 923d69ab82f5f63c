package compose

import (
	"fmt"
	"strings"
	"unicode"

	"starling/internal/config"
)

// SystemPrompt renders the account voice plus the hard style rules that
// keep generated text publishable as-is.
func SystemPrompt(p config.PersonaConfig) string {
	var b strings.Builder
	b.WriteString("You write posts for an X (Twitter) account.\n")
	if p.Style != "" {
		b.WriteString("Voice: " + p.Style + "\n")
	}
	if len(p.Topics) > 0 {
		b.WriteString("Topics you know well: " + strings.Join(p.Topics, ", ") + "\n")
	}
	b.WriteString(`Rules:
- Plain text only. No hashtags, no emojis, no links, no em dashes.
- Never open with generic praise like "great point" or "so true".
- Sound like a person typing quickly, not a brand.
- One concrete thought beats three vague ones.
- Output only the text to publish, nothing else.`)
	return b.String()
}

// ReplyPrompt asks for a reply to a single tweet. Replies must be
// statements, not questions.
func ReplyPrompt(author, text string, maxLen int) string {
	return fmt.Sprintf(
		"Reply to this tweet by @%s:\n\n%s\n\nAdd something from your own experience. Statement, not a question. Max %d characters.",
		author, text, maxLen)
}

// QuotePrompt asks for quote-post commentary on a tweet.
func QuotePrompt(author, text string, maxLen int) string {
	return fmt.Sprintf(
		"Write commentary to quote-post this tweet by @%s:\n\n%s\n\nGive your own angle on it. Max %d characters.",
		author, text, maxLen)
}

// PostPrompt asks for a standalone post. An empty topic lets the model
// pick from the persona's topics.
func PostPrompt(topic string, maxLen int) string {
	subject := "one of your topics"
	if topic != "" {
		subject = topic
	}
	return fmt.Sprintf(
		"Write one standalone post about %s. A specific observation or lesson, not general advice. Max %d characters.",
		subject, maxLen)
}

// ThreadPrompt asks for a numbered thread of parts tweets.
func ThreadPrompt(topic string, parts, maxLen int) string {
	subject := "one of your topics"
	if topic != "" {
		subject = topic
	}
	return fmt.Sprintf(
		"Write a thread of %d tweets about %s. Number each tweet on its own line like \"1. ...\". Each tweet max %d characters. First tweet must stand on its own.",
		parts, subject, maxLen)
}

// ParseThread splits model output into individual tweets, stripping
// numbering. At most max entries are returned; zero max means no cap.
func ParseThread(s string, max int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = stripNumbering(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// stripNumbering removes leading "1.", "2)", "3/" style markers.
func stripNumbering(s string) string {
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	switch s[i] {
	case '.', ')', '/', ':':
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
