package repl

// defaultHistorySize caps the remembered lines.
const defaultHistorySize = 1000

// History remembers the lines entered in a session.
type History struct {
	entries []string
	maxSize int
}

// NewHistory creates a history holding up to maxSize lines. A non-positive
// maxSize means the default.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = defaultHistorySize
	}
	return &History{
		entries: make([]string, 0),
		maxSize: maxSize,
	}
}

// Add appends cmd, dropping the oldest entry when full. A line equal to the
// previous one is not repeated.
func (h *History) Add(cmd string) {
	if n := len(h.entries); n > 0 && h.entries[n-1] == cmd {
		return
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Get returns the history entry at index (0 = most recent).
func (h *History) Get(index int) string {
	if index < 0 || index >= len(h.entries) {
		return ""
	}
	return h.entries[len(h.entries)-1-index]
}

// Entries returns the lines oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of remembered lines.
func (h *History) Len() int {
	return len(h.entries)
}
