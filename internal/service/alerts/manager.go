// Package alerts records and deduplicates security alerts raised by the
// fraud engine and the background monitor. Delivery to external channels
// (SMS, USSD broadcast) is fire-and-forget: the core only decides that an
// alert exists, never how it reaches anyone.
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/infrastructure/buffer"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

// DefaultCapacity bounds the rolling alert buffer.
const DefaultCapacity = 1000

// deliveryQueueSize bounds the handoff queue to the notifier. Overflow drops
// the delivery, never the alert record.
const deliveryQueueSize = 64

// Notifier hands an alert to an external delivery channel.
type Notifier interface {
	Deliver(a alert.Alert)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(a alert.Alert)

func (f NotifierFunc) Deliver(a alert.Alert) { f(a) }

// Summary aggregates the retained alerts.
type Summary struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	Resolved   int            `json:"resolved"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

// Manager is the concurrency-safe bounded alert store.
type Manager struct {
	mu     sync.Mutex
	buf    *buffer.Ring[*alert.Alert]
	index  map[string]*alert.Alert
	closed bool

	deliveries chan alert.Alert
	done       chan struct{}

	audit   *auditlog.Log
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// NewManager creates an alert manager. Capacity zero or negative means
// DefaultCapacity; a nil notifier logs deliveries and drops them.
func NewManager(capacity int, auditLog *auditlog.Log, notifier Notifier, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		buf:        buffer.NewRing[*alert.Alert](capacity),
		index:      make(map[string]*alert.Alert),
		deliveries: make(chan alert.Alert, deliveryQueueSize),
		done:       make(chan struct{}),
		audit:      auditLog,
		logger:     logger,
		now:        time.Now,
	}
	go m.dispatch(notifier)
	return m
}

// Raise assigns an identifier and timestamp, appends the alert, and hands it
// off for delivery without blocking. Returns the assigned id.
func (m *Manager) Raise(a alert.Alert) string {
	m.mu.Lock()
	a.ID = uuid.NewString()
	a.CreatedAt = m.now()
	if a.Severity == "" {
		a.Severity = alert.SeverityMedium
	}
	stored := a
	if old, evicted := m.buf.Push(&stored); evicted {
		delete(m.index, old.ID)
	}
	m.index[stored.ID] = &stored
	dropped := false
	if !m.closed {
		select {
		case m.deliveries <- stored:
		default:
			dropped = true
		}
	}
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(audit.SourceAlerts, audit.EventAlertRaised, map[string]interface{}{
			"alert_id": a.ID,
			"type":     a.Type,
			"severity": string(a.Severity),
			"region":   a.Region,
		})
	}
	if m.metrics != nil {
		m.metrics.RecordAlertRaised(context.Background(), string(a.Severity))
	}

	m.logger.Warn("security alert raised",
		zap.String("alert_id", a.ID),
		zap.String("type", a.Type),
		zap.String("severity", string(a.Severity)),
		zap.String("region", a.Region),
		zap.String("message", a.Message))

	if dropped {
		m.logger.Debug("alert delivery queue full, dropping handoff",
			zap.String("alert_id", a.ID))
	}
	return a.ID
}

// Resolve marks an alert resolved and audits the transition. Returns false
// when the id is unknown or was already evicted.
func (m *Manager) Resolve(id, note string) bool {
	m.mu.Lock()
	a, ok := m.index[id]
	if !ok || a.Resolved {
		resolved := ok && a.Resolved
		m.mu.Unlock()
		if !ok {
			m.logger.Debug("resolve for unknown alert", zap.String("alert_id", id))
		}
		return resolved
	}
	now := m.now()
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolveNote = note
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(audit.SourceAlerts, audit.EventAlertResolved, map[string]interface{}{
			"alert_id": id,
			"note":     note,
		})
	}
	m.logger.Info("alert resolved", zap.String("alert_id", id), zap.String("note", note))
	return true
}

// List returns copies of the retained alerts matching the resolved flag,
// oldest first.
func (m *Manager) List(resolved bool) []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []alert.Alert
	m.buf.Do(func(a *alert.Alert) bool {
		if a.Resolved == resolved {
			out = append(out, *a)
		}
		return true
	})
	return out
}

// UnresolvedSince returns copies of unresolved alerts created at or after
// the cutoff, oldest first. Used by the background monitor's cluster scan.
func (m *Manager) UnresolvedSince(cutoff time.Time) []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []alert.Alert
	m.buf.Do(func(a *alert.Alert) bool {
		if !a.Resolved && !a.CreatedAt.Before(cutoff) {
			out = append(out, *a)
		}
		return true
	})
	return out
}

// PendingCount returns the number of unresolved alerts.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	m.buf.Do(func(a *alert.Alert) bool {
		if !a.Resolved {
			n++
		}
		return true
	})
	return n
}

// Summarize aggregates retained alerts by severity and type.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	m.buf.Do(func(a *alert.Alert) bool {
		s.Total++
		s.BySeverity[string(a.Severity)]++
		s.ByType[a.Type]++
		if a.Resolved {
			s.Resolved++
		} else {
			s.Open++
		}
		return true
	})
	return s
}

// Close stops the delivery dispatcher. Raised alerts are still recorded
// afterwards; only the external handoff stops.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	close(m.deliveries)
	<-m.done
}

// SetMetrics attaches the OTel registry. Optional; nil disables recording.
func (m *Manager) SetMetrics(reg *metrics.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = reg
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) dispatch(notifier Notifier) {
	defer close(m.done)
	for a := range m.deliveries {
		if notifier == nil {
			m.logger.Debug("no notifier configured, dropping delivery",
				zap.String("alert_id", a.ID))
			continue
		}
		notifier.Deliver(a)
	}
}
