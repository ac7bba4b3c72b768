package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertdomain "github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

type stubSweeper struct {
	swept int
	calls int
}

func (s *stubSweeper) SweepExpired() int {
	s.calls++
	return s.swept
}

var tickTime = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func newTestMonitor(t *testing.T) (*Monitor, *stubSweeper, *alerts.Manager) {
	t.Helper()
	log := auditlog.New(500, nil)
	mgr := alerts.NewManager(100, log, nil, nil)
	t.Cleanup(mgr.Close)
	mgr.SetClock(func() time.Time { return tickTime })

	sw := &stubSweeper{}
	m := New(sw, mgr, time.Minute, nil)
	m.SetClock(func() time.Time { return tickTime })
	return m, sw, mgr
}

func raiseFraudAlerts(mgr *alerts.Manager, region string, n int) {
	for i := 0; i < n; i++ {
		mgr.Raise(alertdomain.Alert{
			Type:     alertdomain.TypeFraudDetection,
			Severity: alertdomain.SeverityMedium,
			Region:   region,
			Message:  "fraud rule triggered",
		})
	}
}

func TestTick_RunsSweep(t *testing.T) {
	m, sw, _ := newTestMonitor(t)
	m.Tick()
	assert.Equal(t, 1, sw.calls)
}

func TestTick_EscalatesCluster(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	raiseFraudAlerts(mgr, "nairobi", 5)
	m.Tick()

	var escalations []alertdomain.Alert
	for _, a := range mgr.List(false) {
		if a.Type == alertdomain.TypeUnusualAccess {
			escalations = append(escalations, a)
		}
	}
	require.Len(t, escalations, 1)
	assert.Equal(t, alertdomain.SeverityHigh, escalations[0].Severity)
	assert.Equal(t, "nairobi", escalations[0].Region)
	assert.Equal(t, 5, escalations[0].Details["cluster_size"])
}

func TestTick_BelowClusterSizeDoesNotEscalate(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	raiseFraudAlerts(mgr, "nairobi", 4)
	m.Tick()

	for _, a := range mgr.List(false) {
		assert.NotEqual(t, alertdomain.TypeUnusualAccess, a.Type)
	}
}

func TestTick_DeduplicatesWithinHourBucket(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	raiseFraudAlerts(mgr, "nairobi", 6)
	m.Tick()
	m.Tick()
	m.Tick()

	count := 0
	for _, a := range mgr.List(false) {
		if a.Type == alertdomain.TypeUnusualAccess {
			count++
		}
	}
	assert.Equal(t, 1, count, "same cluster escalates once per hour bucket")
}

func TestTick_NewHourBucketEscalatesAgain(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	raiseFraudAlerts(mgr, "nairobi", 6)
	m.Tick()

	later := tickTime.Add(45 * time.Minute) // crosses into the 13:00 bucket
	m.SetClock(func() time.Time { return later })
	mgr.SetClock(func() time.Time { return later })
	m.Tick()

	count := 0
	for _, a := range mgr.List(false) {
		if a.Type == alertdomain.TypeUnusualAccess {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestTick_ClustersPerRegion(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	raiseFraudAlerts(mgr, "nairobi", 5)
	raiseFraudAlerts(mgr, "mombasa", 5)
	raiseFraudAlerts(mgr, "kisumu", 2)
	m.Tick()

	regions := make(map[string]bool)
	for _, a := range mgr.List(false) {
		if a.Type == alertdomain.TypeUnusualAccess {
			regions[a.Region] = true
		}
	}
	assert.Equal(t, map[string]bool{"nairobi": true, "mombasa": true}, regions)
}

func TestTick_IgnoresEscalationAlerts(t *testing.T) {
	m, _, mgr := newTestMonitor(t)

	// Even many unresolved escalations never feed a new cluster.
	for i := 0; i < 6; i++ {
		mgr.Raise(alertdomain.Alert{
			Type:     alertdomain.TypeUnusualAccess,
			Severity: alertdomain.SeverityHigh,
			Region:   "nairobi",
			Message:  "cluster",
		})
	}
	m.Tick()

	count := 0
	for _, a := range mgr.List(false) {
		if a.Type == alertdomain.TypeUnusualAccess {
			count++
		}
	}
	assert.Equal(t, 6, count)
}

func TestStartStop(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	m.Start(context.Background())
	m.Stop()
	m.Stop() // idempotent
}
