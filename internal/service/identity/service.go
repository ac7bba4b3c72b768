// Package identity implements the issuer service and the identity registry.
// The registry is the sole writer of identity records; everything else reads
// copies. Expired identities are removed by the background monitor's sweep.
package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/audit"
	domain "github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

// Config carries the issuer's fixed parameters.
type Config struct {
	TrustDomain    string
	PrimaryNetwork string
	TTL            time.Duration
}

// Service issues identities and owns the registry.
type Service struct {
	cfg     Config
	audit   *auditlog.Log
	logger  *zap.Logger
	metrics *metrics.Registry

	mu         sync.RWMutex
	identities map[string]*domain.Identity

	now func() time.Time
}

// NewService creates the issuer. A zero TTL falls back to the domain default.
func NewService(cfg Config, auditLog *auditlog.Log, logger *zap.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		audit:      auditLog,
		logger:     logger,
		identities: make(map[string]*domain.Identity),
		now:        time.Now,
	}
}

// Issue turns a verification fact into a registered identity. It never
// fails: a fact that fails verification still yields an unverified identity,
// and rejecting it is the evaluator's job.
func (s *Service) Issue(fact domain.VerificationFact) *domain.Identity {
	now := s.now()
	id := domain.New(s.cfg.TrustDomain, fact, s.cfg.PrimaryNetwork, now, s.cfg.TTL)

	s.mu.Lock()
	s.identities[id.ID] = id
	s.mu.Unlock()

	if s.audit != nil {
		s.audit.Record(audit.SourceIssuer, audit.EventIdentityIssued, map[string]interface{}{
			"identity_id": id.ID,
			"account":     id.AccountNumber,
			"tier":        string(id.Tier),
			"verified":    id.Verified,
			"region":      id.Region,
			"expires_at":  id.ExpiresAt,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordIdentityIssued(context.Background())
	}
	s.logger.Debug("identity issued",
		zap.String("identity_id", id.ID),
		zap.String("tier", string(id.Tier)),
		zap.Bool("verified", id.Verified))

	copy := *id
	return &copy
}

// Get returns a copy of the identity, expired or not. Callers decide what
// expiry means for them.
func (s *Service) Get(id string) (*domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.identities[id]
	if !ok {
		return nil, false
	}
	copy := *found
	return &copy, true
}

// SweepExpired deletes every identity past its expiry, auditing each
// eviction, and returns the number removed.
func (s *Service) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	var expired []*domain.Identity
	for key, id := range s.identities {
		if id.Expired(now) {
			expired = append(expired, id)
			delete(s.identities, key)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if s.audit != nil {
			s.audit.Record(audit.SourceMonitor, audit.EventIdentityExpired, map[string]interface{}{
				"identity_id": id.ID,
				"account":     id.AccountNumber,
				"expired_at":  id.ExpiresAt,
			})
		}
	}
	if len(expired) > 0 {
		if s.metrics != nil {
			s.metrics.RecordIdentitiesSwept(context.Background(), int64(len(expired)))
		}
		s.logger.Info("expired identities swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// ActiveCount returns the number of unexpired identities.
func (s *Service) ActiveCount() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.identities {
		if !id.Expired(now) {
			n++
		}
	}
	return n
}

// SetMetrics attaches the OTel registry. Optional; nil disables recording.
func (s *Service) SetMetrics(reg *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = reg
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
