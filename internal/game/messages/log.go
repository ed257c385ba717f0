// Package messages is the shared observability log: an insertion-ordered
// record of (text, severity) entries read by presentation layers and
// mirrored to the structured logger.
package messages

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity classifies a log entry.
type Severity int

const (
	Default Severity = iota
	Info
	Warning
	Error
	ClientExit
	ClientDisconnect
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case ClientExit:
		return "client_exit"
	case ClientDisconnect:
		return "client_disconnect"
	default:
		return "default"
	}
}

// Entry is one log record. Seq starts at 1 and increases by one per Add.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Text     string    `json:"text"`
	Severity Severity  `json:"-"`
	Level    string    `json:"severity"`
}

// Log is safe for concurrent use. The lock is never held while logging to
// zap.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	next     uint64
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewLog creates a log retaining at most capacity entries (oldest dropped
// first). capacity <= 0 retains everything.
func NewLog(logger *zap.Logger, capacity int) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		capacity: capacity,
		logger:   logger,
		now:      time.Now,
		next:     1,
	}
}

// Add appends an entry and returns it.
func (l *Log) Add(text string, sev Severity) Entry {
	l.mu.Lock()
	e := Entry{Seq: l.next, Time: l.now(), Text: text, Severity: sev, Level: sev.String()}
	l.next++
	l.entries = append(l.entries, e)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		drop := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0], l.entries[drop:]...)
	}
	l.mu.Unlock()

	l.mirror(e)
	return e
}

func (l *Log) mirror(e Entry) {
	fields := []zap.Field{zap.String("severity", e.Level), zap.Uint64("seq", e.Seq)}
	switch e.Severity {
	case Error:
		l.logger.Error(e.Text, fields...)
	case Warning:
		l.logger.Warn(e.Text, fields...)
	default:
		l.logger.Info(e.Text, fields...)
	}
}

// All returns a copy of the retained entries in insertion order.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns retained entries with Seq greater than seq.
func (l *Log) Since(seq uint64) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many retained entries have the given severity.
func (l *Log) Count(sev Severity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
