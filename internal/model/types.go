package model

import "time"

// ActionKind names one kind of outward-facing action. The string value is
// what the ledger stores, so it never changes once shipped.
type ActionKind string

const (
	KindReply   ActionKind = "reply"
	KindLike    ActionKind = "like"
	KindRetweet ActionKind = "retweet"
	KindPost    ActionKind = "post"
	KindThread  ActionKind = "thread"
	KindQuote   ActionKind = "quote"
)

// Kinds lists every action kind in a stable order.
func Kinds() []ActionKind {
	return []ActionKind{KindReply, KindLike, KindRetweet, KindPost, KindThread, KindQuote}
}

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindReply, KindLike, KindRetweet, KindPost, KindThread, KindQuote:
		return true
	}
	return false
}

// Metrics is the engagement snapshot scraped alongside a post.
type Metrics struct {
	Replies  int
	Retweets int
	Likes    int
}

// CandidateItem is a discovered post under consideration for engagement.
// It lives for one scheduler pass; either a draft comes out of it or it is
// dropped.
type CandidateItem struct {
	ID           string
	AuthorHandle string
	Text         string
	URL          string
	Metrics      Metrics
}

// Draft status lifecycle: pending -> approved -> posted | failed, or
// pending -> rejected.
const (
	DraftPending  = "pending"
	DraftApproved = "approved"
	DraftPosted   = "posted"
	DraftRejected = "rejected"
	DraftFailed   = "failed"
)

// Draft is a piece of generated content waiting in the approval queue.
type Draft struct {
	ID           string
	Kind         ActionKind
	TargetID     string
	TargetAuthor string
	SourceText   string
	Text         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PostedAt     time.Time
}

// ActionRecord is one row of the append-only action audit log.
type ActionRecord struct {
	ID           string
	Kind         ActionKind
	TargetID     string
	TargetAuthor string
	Detail       string
	CreatedAt    time.Time
}

// Trend is a researched topic the content writer can draw on.
type Trend struct {
	ID        string
	Topic     string
	Summary   string
	Source    string
	CreatedAt time.Time
}
