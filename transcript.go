package convai

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one conversation turn. Timestamp is assignment
// time on this client; consumers must not assume monotonic embedded
// time and should render in append order.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptLog is the append-only ordered record of a call. Entries
// are ordered by arrival and never reordered or deduplicated.
type TranscriptLog struct {
	mu      sync.Mutex
	entries []TranscriptEntry
	now     func() time.Time
}

func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{now: time.Now}
}

func (t *TranscriptLog) Append(role Role, message string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := TranscriptEntry{Role: role, Message: message, Timestamp: t.now()}
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a snapshot in append order.
func (t *TranscriptLog) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *TranscriptLog) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
