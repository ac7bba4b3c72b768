// Package policy implements the policy store and the prioritized,
// short-circuiting evaluator. Policies name their check through a rule
// registry; adding a policy means registering a rule implementation, not
// editing a switch.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/domain/errors"
	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/policy"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

// IdentityStore is the read side of the identity registry.
type IdentityStore interface {
	Get(id string) (*identity.Identity, bool)
}

// Service holds the policy set and evaluates it against identities.
type Service struct {
	ids     IdentityStore
	audit   *auditlog.Log
	logger  *zap.Logger
	metrics *metrics.Registry

	mu       sync.RWMutex
	policies map[string]*policy.Policy
	rules    map[string]policy.Rule

	now func() time.Time
}

// NewService creates an empty policy store bound to an identity registry.
func NewService(ids IdentityStore, auditLog *auditlog.Log, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ids:      ids,
		audit:    auditLog,
		logger:   logger,
		policies: make(map[string]*policy.Policy),
		rules:    make(map[string]policy.Rule),
		now:      time.Now,
	}
}

// RegisterRule binds a rule implementation to a key policies can reference.
func (s *Service) RegisterRule(key string, rule policy.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[key] = rule
}

// LoadPolicies installs the policy set, replacing any previous one. Every
// policy must reference a registered rule.
func (s *Service) LoadPolicies(policies []policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make(map[string]*policy.Policy, len(policies))
	for i := range policies {
		p := policies[i]
		if p.ID == "" {
			return errors.NewValidationError("MISSING_POLICY_ID", "policy id is required")
		}
		if _, ok := s.rules[p.RuleKey]; !ok {
			return errors.NewValidationError("UNKNOWN_RULE_KEY",
				fmt.Sprintf("policy %s references unregistered rule %q", p.ID, p.RuleKey))
		}
		if _, dup := loaded[p.ID]; dup {
			return errors.NewValidationError("DUPLICATE_POLICY_ID",
				fmt.Sprintf("policy id %s appears twice", p.ID))
		}
		loaded[p.ID] = &p
	}
	s.policies = loaded
	s.logger.Info("policy set loaded", zap.Int("count", len(loaded)))
	return nil
}

// SetActive toggles a policy's active flag, the only mutation policies allow
// after loading. Returns false for an unknown id.
func (s *Service) SetActive(id string, active bool) bool {
	s.mu.Lock()
	p, ok := s.policies[id]
	changed := ok && p.Active != active
	if changed {
		p.Active = active
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if changed && s.audit != nil {
		s.audit.Record(audit.SourcePolicy, audit.EventPolicyToggled, map[string]interface{}{
			"policy_id": id,
			"active":    active,
		})
	}
	return true
}

// Policies returns a copy of the policy set, evaluation-ordered.
func (s *Service) Policies() []policy.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, *p)
	}
	sortPolicies(out)
	return out
}

// Evaluate runs the active policy chain against the identity and context.
// Denies are results, not errors: every path completes and audits.
func (s *Service) Evaluate(identityID, resource, action string, txn transaction.Context) policy.Decision {
	started := time.Now()
	now := s.now()

	id, ok := s.ids.Get(identityID)
	if !ok {
		return s.finalize(policy.Decision{
			Allowed:     false,
			Reason:      errors.NewIdentityNotFoundError(identityID).Message,
			Resource:    resource,
			Action:      action,
			EvaluatedAt: now,
		}, identityID, nil, started)
	}
	if id.Expired(now) {
		return s.finalize(policy.Decision{
			Allowed:     false,
			Reason:      errors.NewIdentityExpiredError(identityID).Message,
			Resource:    resource,
			Action:      action,
			EvaluatedAt: now,
		}, identityID, nil, started)
	}

	ordered, rules := s.activePolicies()

	conditions := make(map[string]interface{})
	for _, p := range ordered {
		if !p.AppliesToRegion(id.Region) {
			continue
		}

		if p.MinTier != "" && !id.Tier.Meets(p.MinTier) {
			reason := errors.NewInsufficientTierError(string(id.Tier), string(p.MinTier)).Message
			s.auditCheck(p, identityID, false, reason)
			return s.finalize(policy.Decision{
				Allowed:     false,
				Reason:      reason,
				PolicyID:    p.ID,
				PolicyName:  p.Name,
				Resource:    resource,
				Action:      action,
				EvaluatedAt: now,
			}, identityID, conditions, started)
		}

		rule, ok := rules[p.RuleKey]
		if !ok {
			// Fail safe: a policy whose rule vanished denies rather than
			// silently passing.
			reason := fmt.Sprintf("no rule registered for policy %s", p.ID)
			s.auditCheck(p, identityID, false, reason)
			return s.finalize(policy.Decision{
				Allowed:     false,
				Reason:      reason,
				PolicyID:    p.ID,
				PolicyName:  p.Name,
				Resource:    resource,
				Action:      action,
				EvaluatedAt: now,
			}, identityID, conditions, started)
		}

		res := rule.Evaluate(id, txn, now)
		s.auditCheck(p, identityID, res.Allowed, res.Reason)
		for k, v := range res.Conditions {
			conditions[k] = v
		}
		if !res.Allowed {
			return s.finalize(policy.Decision{
				Allowed:     false,
				Reason:      res.Reason,
				PolicyID:    p.ID,
				PolicyName:  p.Name,
				Resource:    resource,
				Action:      action,
				Conditions:  conditions,
				EvaluatedAt: now,
			}, identityID, conditions, started)
		}
	}

	return s.finalize(policy.Decision{
		Allowed:     true,
		Reason:      "all active policies passed",
		Resource:    resource,
		Action:      action,
		Conditions:  conditions,
		EvaluatedAt: now,
	}, identityID, conditions, started)
}

// activePolicies snapshots the active policies in deterministic evaluation
// order together with the rule registry.
func (s *Service) activePolicies() ([]policy.Policy, map[string]policy.Rule) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if p.Active {
			out = append(out, *p)
		}
	}
	sortPolicies(out)

	rules := make(map[string]policy.Rule, len(s.rules))
	for k, v := range s.rules {
		rules[k] = v
	}
	return out, rules
}

// sortPolicies orders by priority descending, breaking ties by id so
// evaluation order is stable and testable.
func sortPolicies(ps []policy.Policy) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority > ps[j].Priority
		}
		return ps[i].ID < ps[j].ID
	})
}

func (s *Service) auditCheck(p policy.Policy, identityID string, allowed bool, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.SourcePolicy, audit.EventPolicyChecked, map[string]interface{}{
		"policy_id":   p.ID,
		"policy_name": p.Name,
		"identity_id": identityID,
		"allowed":     allowed,
		"reason":      reason,
	})
}

// finalize records the aggregate audit entry, feeds the metrics registry,
// and stamps the audit id on the decision.
func (s *Service) finalize(d policy.Decision, identityID string, conditions map[string]interface{}, started time.Time) policy.Decision {
	if len(conditions) > 0 && d.Conditions == nil {
		d.Conditions = conditions
	}
	if s.metrics != nil {
		s.metrics.PolicyCheckDuration.Record(context.Background(),
			float64(time.Since(started).Microseconds())/1000.0)
		if !d.Allowed {
			s.metrics.RecordPolicyDenial(context.Background(), d.PolicyID)
		}
	}
	event := audit.EventPolicyDenied
	if d.Allowed {
		event = audit.EventPolicyAllowed
	}
	if s.audit != nil {
		d.AuditID = s.audit.Record(audit.SourcePolicy, event, map[string]interface{}{
			"identity_id": identityID,
			"resource":    d.Resource,
			"action":      d.Action,
			"allowed":     d.Allowed,
			"reason":      d.Reason,
			"policy_id":   d.PolicyID,
		})
	}
	if !d.Allowed {
		s.logger.Info("policy evaluation denied",
			zap.String("identity_id", identityID),
			zap.String("policy_id", d.PolicyID),
			zap.String("reason", d.Reason))
	}
	return d
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
