package eventlog

import (
	"sync"
	"time"

	"selfie-capture-kiosk/models"
)

// Publisher receives every change to the log.
type Publisher interface {
	PublishLogAppend(entry models.LogEntry)
	PublishLogClear()
}

// Log is the append-only entry list behind the log panel. Entries are only
// ever removed all at once by Clear.
type Log struct {
	// pubMu keeps published appends in Seq order. Lock order: pubMu, then mu.
	pubMu   sync.Mutex
	mu      sync.RWMutex
	entries []models.LogEntry
	nextSeq uint64
	pub     Publisher
	now     func() time.Time
}

func New(pub Publisher) *Log {
	return &Log{
		pub: pub,
		now: time.Now,
	}
}

// WithClock overrides the wall clock (tests).
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

func (l *Log) Info(message string, detail ...string) models.LogEntry {
	return l.Append(models.SeverityInfo, message, detail...)
}

func (l *Log) Success(message string, detail ...string) models.LogEntry {
	return l.Append(models.SeveritySuccess, message, detail...)
}

func (l *Log) Error(message string, detail ...string) models.LogEntry {
	return l.Append(models.SeverityError, message, detail...)
}

// Append adds an entry. Only the first detail string is kept.
func (l *Log) Append(sev models.Severity, message string, detail ...string) models.LogEntry {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	l.nextSeq++
	entry := models.LogEntry{
		Seq:      l.nextSeq,
		Severity: sev,
		Message:  message,
		Time:     l.now(),
	}
	if len(detail) > 0 {
		entry.Detail = detail[0]
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.pub != nil {
		l.pub.PublishLogAppend(entry)
	}
	return entry
}

// Clear drops every entry. Sequence numbers keep increasing.
func (l *Log) Clear() {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()

	if l.pub != nil {
		l.pub.PublishLogClear()
	}
}

// Entries returns a copy in append order.
func (l *Log) Entries() []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
