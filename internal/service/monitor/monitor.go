// Package monitor runs the periodic security sweep: expired identities are
// evicted from the registry and unresolved alert clusters are escalated into
// a single meta-alert per cluster.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	alertdomain "github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = 60 * time.Second

// Cluster scan parameters.
const (
	clusterWindow  = time.Hour
	clusterMinSize = 5
	dedupRetention = 2 * time.Hour
)

// Sweeper evicts expired identities. Implemented by the identity service.
type Sweeper interface {
	SweepExpired() int
}

// Monitor drives the periodic sweep and cluster scan.
type Monitor struct {
	sweeper  Sweeper
	alerts   *alerts.Manager
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]time.Time // cluster keys already escalated
	now  func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. A non-positive interval means DefaultInterval.
func New(sweeper Sweeper, alertMgr *alerts.Manager, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		sweeper:  sweeper,
		alerts:   alertMgr,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Start launches the tick loop. The loop stops when ctx is cancelled or Stop
// is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.logger.Info("security monitor started", zap.Duration("interval", m.interval))
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("security monitor stopped")
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick runs one sweep and cluster scan. Exported so callers can force a pass.
func (m *Monitor) Tick() {
	swept := m.sweeper.SweepExpired()
	escalated := m.scanClusters()
	if swept > 0 || escalated > 0 {
		m.logger.Info("monitor pass complete",
			zap.Int("identities_swept", swept),
			zap.Int("clusters_escalated", escalated))
	}
}

// scanClusters groups the last hour's unresolved alerts by type and region
// and raises one meta-alert per group at or above the cluster size. A group
// already escalated in the same hour bucket is skipped.
func (m *Monitor) scanClusters() int {
	now := m.clock()
	recent := m.alerts.UnresolvedSince(now.Add(-clusterWindow))

	groups := make(map[string]int)
	regions := make(map[string]string)
	types := make(map[string]string)
	for _, a := range recent {
		if a.Type == alertdomain.TypeUnusualAccess {
			continue // never cluster the escalations themselves
		}
		key := a.Type + ":" + a.Region
		groups[key]++
		regions[key] = a.Region
		types[key] = a.Type
	}

	escalated := 0
	bucket := now.Truncate(time.Hour)
	for key, count := range groups {
		if count < clusterMinSize {
			continue
		}
		dedupKey := fmt.Sprintf("%s:%d", key, bucket.Unix())
		if !m.markEscalated(dedupKey, now) {
			continue
		}
		m.alerts.Raise(alertdomain.Alert{
			Type:     alertdomain.TypeUnusualAccess,
			Severity: alertdomain.SeverityHigh,
			Region:   regions[key],
			Message: fmt.Sprintf("%d unresolved %s alerts in %s within the last hour",
				count, types[key], regions[key]),
			MessageSW: fmt.Sprintf("tahadhari %d za %s katika %s ndani ya saa moja",
				count, types[key], regions[key]),
			Details: map[string]interface{}{
				"cluster_type":   types[key],
				"cluster_region": regions[key],
				"cluster_size":   count,
				"window":         clusterWindow.String(),
			},
		})
		escalated++
	}
	return escalated
}

// markEscalated records the dedup key, pruning stale entries. Returns false
// when the key was already present.
func (m *Monitor) markEscalated(key string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, at := range m.seen {
		if now.Sub(at) > dedupRetention {
			delete(m.seen, k)
		}
	}
	if _, dup := m.seen[key]; dup {
		return false
	}
	m.seen[key] = now
	return true
}

func (m *Monitor) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

// SetClock overrides the time source. Test hook.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
