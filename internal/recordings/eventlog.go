package recordings

import (
	"sync"
	"time"
)

// Event is one received webhook notification, kept for inspection.
type Event struct {
	ReceivedAt  time.Time `json:"received_at"`
	EventType   string    `json:"event_type"`
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name"`
	FileCount   int       `json:"file_count"`
	JobID       string    `json:"job_id,omitempty"`
}

// EventLog is a bounded in-memory ring of received webhook events. Oldest
// entries are overwritten once capacity is reached. Lifecycle is explicit:
// inject one per process and Clear it when needed.
type EventLog struct {
	mu      sync.Mutex
	entries []Event
	next    int
	filled  bool
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventLog{entries: make([]Event, capacity)}
}

// Append records an event, evicting the oldest when full.
func (l *EventLog) Append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.filled = true
	}
}

// Recent returns the stored events, newest first.
func (l *EventLog) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := l.next
	if l.filled {
		size = len(l.entries)
	}
	out := make([]Event, 0, size)
	for i := 1; i <= size; i++ {
		idx := l.next - i
		if idx < 0 {
			idx += len(l.entries)
		}
		out = append(out, l.entries[idx])
	}
	return out
}

// Len returns the number of stored events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.filled {
		return len(l.entries)
	}
	return l.next
}

// Clear drops all stored events.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.filled = false
}
