// Package auditlog keeps the bounded, append-only audit trail every other
// component writes to. There is no deletion API; entries only leave the log
// through rolling eviction when the buffer is full.
package auditlog

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/infrastructure/buffer"
)

// DefaultCapacity bounds the rolling audit buffer.
const DefaultCapacity = 5000

// Log is a concurrency-safe bounded audit log.
type Log struct {
	mu     sync.RWMutex
	buf    *buffer.Ring[audit.Entry]
	logger *zap.Logger
	now    func() time.Time
}

// New creates a log with the given capacity; zero or negative means
// DefaultCapacity.
func New(capacity int, logger *zap.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		buf:    buffer.NewRing[audit.Entry](capacity),
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an entry and returns its id. Never fails; an audit write is
// a result of a decision, not a decision point.
func (l *Log) Record(source, event string, details map[string]interface{}) string {
	l.mu.Lock()
	entry := audit.NewEntry(source, event, details, l.now())
	_, evicted := l.buf.Push(entry)
	l.mu.Unlock()

	if evicted {
		l.logger.Debug("audit entry evicted by rolling bound",
			zap.Int("capacity", l.buf.Cap()))
	}
	l.logger.Debug("audit entry recorded",
		zap.String("event", event),
		zap.String("source", source),
		zap.String("audit_id", entry.ID))
	return entry.ID
}

// Query returns entries recorded at or after since, oldest first.
func (l *Log) Query(since time.Time) []audit.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []audit.Entry
	l.buf.Do(func(e audit.Entry) bool {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
		return true
	})
	return out
}

// CountSince counts entries for one event name recorded at or after since.
func (l *Log) CountSince(event string, since time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	l.buf.Do(func(e audit.Entry) bool {
		if e.Event == event && !e.Timestamp.Before(since) {
			n++
		}
		return true
	})
	return n
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buf.Len()
}

// SetClock overrides the time source. Test hook.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
