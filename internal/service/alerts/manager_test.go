package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

func newTestManager(t *testing.T, capacity int) (*Manager, *auditlog.Log) {
	t.Helper()
	log := auditlog.New(200, nil)
	m := NewManager(capacity, log, nil, nil)
	t.Cleanup(m.Close)
	return m, log
}

func TestManager_RaiseAssignsIDAndTimestamp(t *testing.T) {
	m, log := newTestManager(t, 10)

	id := m.Raise(alert.Alert{
		Type:     alert.TypeFraudDetection,
		Severity: alert.SeverityHigh,
		Region:   "nairobi",
		Message:  "velocity ceiling exceeded",
	})
	require.NotEmpty(t, id)

	open := m.List(false)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
	assert.False(t, open[0].CreatedAt.IsZero())

	entries := log.Query(time.Time{})
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventAlertRaised, entries[0].Event)
}

func TestManager_RaiseDefaultsSeverity(t *testing.T) {
	m, _ := newTestManager(t, 10)

	id := m.Raise(alert.Alert{Type: alert.TypeFraudDetection})
	open := m.List(false)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)
	assert.Equal(t, alert.SeverityMedium, open[0].Severity)
}

func TestManager_ResolveTransitions(t *testing.T) {
	m, log := newTestManager(t, 10)

	id := m.Raise(alert.Alert{Type: alert.TypeFraudDetection})

	require.True(t, m.Resolve(id, "false positive"))
	assert.Empty(t, m.List(false))

	resolved := m.List(true)
	require.Len(t, resolved, 1)
	assert.Equal(t, "false positive", resolved[0].ResolveNote)
	require.NotNil(t, resolved[0].ResolvedAt)

	// Resolving twice reports the already-resolved state without re-auditing.
	before := len(log.Query(time.Time{}))
	assert.True(t, m.Resolve(id, "again"))
	assert.Len(t, log.Query(time.Time{}), before)

	// Unknown ids are a false result, not an error.
	assert.False(t, m.Resolve("no-such-alert", ""))
}

func TestManager_BoundedEvictionDropsOldest(t *testing.T) {
	m, _ := newTestManager(t, 5)

	var first string
	for i := 0; i < 8; i++ {
		id := m.Raise(alert.Alert{Type: alert.TypeFraudDetection})
		if i == 0 {
			first = id
		}
	}

	open := m.List(false)
	assert.Len(t, open, 5)
	for _, a := range open {
		assert.NotEqual(t, first, a.ID, "oldest alert was evicted")
	}
	// Evicted alerts also leave the index.
	assert.False(t, m.Resolve(first, ""))
}

func TestManager_UnresolvedSince(t *testing.T) {
	m, _ := newTestManager(t, 20)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	current := base
	m.SetClock(func() time.Time { return current })

	m.Raise(alert.Alert{Type: alert.TypeFraudDetection, Region: "western"})
	current = base.Add(2 * time.Hour)
	recent := m.Raise(alert.Alert{Type: alert.TypeFraudDetection, Region: "western"})

	got := m.UnresolvedSince(base.Add(time.Hour))
	require.Len(t, got, 1)
	assert.Equal(t, recent, got[0].ID)
}

func TestManager_DeliveryIsFireAndForget(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	blocker := make(chan struct{})

	log := auditlog.New(50, nil)
	m := NewManager(10, log, NotifierFunc(func(a alert.Alert) {
		<-blocker
		mu.Lock()
		delivered = append(delivered, a.ID)
		mu.Unlock()
	}), nil)

	// Raise must return immediately even though the notifier is blocked.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			m.Raise(alert.Alert{Type: alert.TypeFraudDetection})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Raise blocked on delivery")
	}

	close(blocker)
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, delivered)
	// The record store kept everything the buffer allows regardless of drops.
	assert.Equal(t, 10, m.Summarize().Total)
}

func TestManager_Summarize(t *testing.T) {
	m, _ := newTestManager(t, 20)

	m.Raise(alert.Alert{Type: alert.TypeFraudDetection, Severity: alert.SeverityHigh})
	m.Raise(alert.Alert{Type: alert.TypeFraudDetection, Severity: alert.SeverityMedium})
	id := m.Raise(alert.Alert{Type: alert.TypeUnusualAccess, Severity: alert.SeverityHigh})
	m.Resolve(id, "handled")

	s := m.Summarize()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 1, s.Resolved)
	assert.Equal(t, 2, s.BySeverity["high"])
	assert.Equal(t, 2, s.ByType[alert.TypeFraudDetection])
}
