package shell

import "strings"

// HistoryStore persists submitted lines between sessions.
type HistoryStore interface {
	LoadHistory(limit int) ([]string, error)
	AppendHistory(line string, keep int) error
}

// DefaultHistorySize applies when no size is configured.
const DefaultHistorySize = 1000

// History is the bounded list of submitted lines, oldest first, with a
// cursor for Up/Down navigation. Consecutive duplicates are stored once.
type History struct {
	max    int
	lines  []string
	cursor int // len(lines) when not navigating
	draft  string
	store  HistoryStore
}

// NewHistory returns a history holding at most max lines. When store is not
// nil, earlier lines are loaded from it and new lines are appended to it.
func NewHistory(max int, store HistoryStore) (*History, error) {
	if max <= 0 {
		max = DefaultHistorySize
	}
	h := &History{max: max, store: store}
	if store != nil {
		lines, err := store.LoadHistory(max)
		if err != nil {
			return h, err
		}
		for _, l := range lines {
			h.push(l)
		}
	}
	h.cursor = len(h.lines)
	return h, nil
}

// Add records a submitted line and resets navigation. Blank lines and
// repeats of the previous line are ignored.
func (h *History) Add(line string) error {
	defer h.Reset()
	if !h.push(line) {
		return nil
	}
	if h.store != nil {
		return h.store.AppendHistory(line, h.max)
	}
	return nil
}

func (h *History) push(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return false
	}
	h.lines = append(h.lines, line)
	if over := len(h.lines) - h.max; over > 0 {
		h.lines = append(h.lines[:0], h.lines[over:]...)
	}
	return true
}

// Prev steps back one line. current is what the user has typed so far; it
// comes back when Next walks past the newest entry.
func (h *History) Prev(current string) (string, bool) {
	if h.cursor == 0 {
		return "", false
	}
	if h.cursor == len(h.lines) {
		h.draft = current
	}
	h.cursor--
	return h.lines[h.cursor], true
}

// Next steps forward one line, ending at the saved draft.
func (h *History) Next() (string, bool) {
	if h.cursor >= len(h.lines) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.lines) {
		return h.draft, true
	}
	return h.lines[h.cursor], true
}

// Reset ends navigation.
func (h *History) Reset() {
	h.cursor = len(h.lines)
	h.draft = ""
}

// Entries returns a copy of the stored lines, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.lines))
	copy(out, h.lines)
	return out
}

// Len returns the number of stored lines.
func (h *History) Len() int { return len(h.lines) }
