// Package fraud implements the rule-based fraud scoring engine. Every
// enabled rule is evaluated on every call, with no short-circuiting, and the
// triggered rules' risk weights sum into the final score.
package fraud

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	alertdomain "github.com/okwaro/pesasentinel/internal/domain/alert"
	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
)

// Engine scores verification facts and transaction context against the rule
// set.
type Engine struct {
	mu             sync.RWMutex
	rules          []Rule
	blockThreshold float64

	alerts *alerts.Manager
	audit  *auditlog.Log
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates an engine. A nil or empty rule slice installs the
// default rule set; a non-positive threshold installs the default threshold.
func NewEngine(rules []Rule, blockThreshold float64, alertMgr *alerts.Manager, auditLog *auditlog.Log, logger *zap.Logger) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if blockThreshold <= 0 {
		blockThreshold = DefaultBlockThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:          rules,
		blockThreshold: blockThreshold,
		alerts:         alertMgr,
		audit:          auditLog,
		logger:         logger,
		now:            time.Now,
	}
}

// Score evaluates all rules and sums the triggered weights. The sum is
// additive and order-independent; isFraud is true iff the sum reaches the
// block threshold.
func (e *Engine) Score(fact identity.VerificationFact, txn transaction.Context) Result {
	e.mu.RLock()
	rules := e.rules
	threshold := e.blockThreshold
	e.mu.RUnlock()

	now := e.now()
	result := Result{}

	for _, rule := range rules {
		hit, reason := rule.Predicate(fact, txn, now)
		if !hit {
			continue
		}
		result.RiskScore += rule.Weight
		result.Reasons = append(result.Reasons, reason)
		result.Actions = append(result.Actions, rule.Action)
		result.Triggered = append(result.Triggered, rule.Name)

		e.raiseAlert(rule, fact, txn, reason)
	}
	result.IsFraud = result.RiskScore >= threshold

	if e.audit != nil {
		e.audit.Record(audit.SourceFraud, audit.EventFraudEvaluated, map[string]interface{}{
			"account":    fact.AccountNumber,
			"region":     txn.Region,
			"risk_score": result.RiskScore,
			"is_fraud":   result.IsFraud,
			"triggered":  append([]string(nil), result.Triggered...),
		})
	}
	if result.IsFraud {
		e.logger.Warn("fraud detected",
			zap.String("account", fact.AccountNumber),
			zap.Float64("risk_score", result.RiskScore),
			zap.Strings("triggered", result.Triggered))
	}
	return result
}

// SetRules replaces the rule set. Used by configuration hot-reload.
func (e *Engine) SetRules(rules []Rule) {
	if len(rules) == 0 {
		return
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	e.logger.Info("fraud rule set replaced", zap.Int("count", len(rules)))
}

// BlockThreshold returns the configured fraud threshold.
func (e *Engine) BlockThreshold() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blockThreshold
}

func (e *Engine) raiseAlert(rule Rule, fact identity.VerificationFact, txn transaction.Context, reason string) {
	if e.alerts == nil {
		return
	}
	e.alerts.Raise(alertdomain.Alert{
		Type:          alertdomain.TypeFraudDetection,
		Severity:      alertdomain.ForWeight(rule.Weight),
		AccountNumber: fact.AccountNumber,
		Region:        txn.Region,
		Message:       fmt.Sprintf("fraud rule %s triggered: %s", rule.Name, reason),
		MessageSW:     fmt.Sprintf("tahadhari ya ulaghai: kanuni %s imegunduliwa", rule.Name),
		Details: map[string]interface{}{
			"rule":    rule.Name,
			"weight":  rule.Weight,
			"action":  rule.Action,
			"account": fact.AccountNumber,
		},
	})
}

// SetClock overrides the time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}
