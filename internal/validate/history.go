package validate

// History is the in-memory window of the most recent generated texts. It
// fronts the unbounded durable log; Seed at startup is the only point the
// two are synchronized.
type History struct {
	capacity int
	items    []string
}

// NewHistory returns a window keeping the last capacity texts.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 30
	}
	return &History{capacity: capacity}
}

// Seed replaces the window contents with the last capacity entries of texts
// (oldest first).
func (h *History) Seed(texts []string) {
	h.items = h.items[:0]
	start := 0
	if len(texts) > h.capacity {
		start = len(texts) - h.capacity
	}
	h.items = append(h.items, texts[start:]...)
}

// Add appends one text, evicting the oldest entry when full.
func (h *History) Add(text string) {
	if len(h.items) == h.capacity {
		copy(h.items, h.items[1:])
		h.items = h.items[:h.capacity-1]
	}
	h.items = append(h.items, text)
}

// Items returns the window contents, oldest first. The slice is shared;
// callers must not mutate it.
func (h *History) Items() []string { return h.items }

// Len returns the number of texts currently in the window.
func (h *History) Len() int { return len(h.items) }
