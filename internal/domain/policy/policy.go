// Package policy defines named, prioritized access policies and the decision
// record produced when they are evaluated.
package policy

import (
	"strings"
	"time"

	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
)

// Policy is a named, prioritized rule. Immutable once loaded except for the
// Active toggle.
type Policy struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Priority    int           `json:"priority"` // higher evaluated first
	Region      string        `json:"region,omitempty"`
	MinTier     identity.Tier `json:"min_tier,omitempty"`
	RuleKey     string        `json:"rule_key"` // names the registered rule implementation
	Active      bool          `json:"active"`
}

// AppliesToRegion reports whether the policy's region scope includes the
// identity's region. An empty scope applies everywhere.
func (p *Policy) AppliesToRegion(region string) bool {
	return p.Region == "" || strings.EqualFold(p.Region, region)
}

// Decision is the per-policy or aggregate outcome of an evaluation. Created
// fresh per call, never mutated afterwards.
type Decision struct {
	Allowed     bool                   `json:"allowed"`
	Reason      string                 `json:"reason"`
	PolicyID    string                 `json:"policy_id,omitempty"`
	PolicyName  string                 `json:"policy_name,omitempty"`
	Resource    string                 `json:"resource"`
	Action      string                 `json:"action"`
	Conditions  map[string]interface{} `json:"conditions,omitempty"`
	AuditID     string                 `json:"audit_id,omitempty"`
	EvaluatedAt time.Time              `json:"evaluated_at"`
}

// RuleResult is what a single rule reports back to the evaluator.
type RuleResult struct {
	Allowed    bool
	Reason     string
	Conditions map[string]interface{} // metadata a rule may attach without denying
}

// Rule is one concrete policy check. Implementations must be deterministic
// for a given identity and context.
type Rule interface {
	Evaluate(id *identity.Identity, txn transaction.Context, now time.Time) RuleResult
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(id *identity.Identity, txn transaction.Context, now time.Time) RuleResult

func (f RuleFunc) Evaluate(id *identity.Identity, txn transaction.Context, now time.Time) RuleResult {
	return f(id, txn, now)
}

// Allow is a convenience result for passing checks.
func Allow(reason string) RuleResult {
	return RuleResult{Allowed: true, Reason: reason}
}

// Deny is a convenience result for failing checks.
func Deny(reason string) RuleResult {
	return RuleResult{Allowed: false, Reason: reason}
}
