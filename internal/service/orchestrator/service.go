// Package orchestrator runs the full security flow for one money request:
// verification facts become an identity, the fraud engine scores the request,
// the policy chain rules on it, and the three combine into a single outcome.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/domain/errors"
	"github.com/okwaro/pesasentinel/internal/domain/geo"
	identitydomain "github.com/okwaro/pesasentinel/internal/domain/identity"
	policydomain "github.com/okwaro/pesasentinel/internal/domain/policy"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
	"github.com/okwaro/pesasentinel/internal/service/fraud"
	"github.com/okwaro/pesasentinel/internal/service/identity"
	"github.com/okwaro/pesasentinel/internal/service/policy"
)

// Outcomes of a processed request.
const (
	OutcomeAllow  = "allow"
	OutcomeDeny   = "deny"
	OutcomeReview = "review"
)

// DefaultReviewThreshold is the risk score at and above which an otherwise
// allowed request is routed to manual review.
const DefaultReviewThreshold = 50.0

// FactProvider looks up verification facts for an account. Implemented
// upstream by the KYC/network integration.
type FactProvider interface {
	Lookup(ctx context.Context, account string) (identitydomain.VerificationFact, error)
}

// Request is one money movement to be cleared.
type Request struct {
	Account        string          `json:"account"`
	Region         string          `json:"region"`
	Amount         decimal.Decimal `json:"amount"`
	Resource       string          `json:"resource"`
	Action         string          `json:"action"`
	ConnectionType string          `json:"connection_type"`
}

// Response is the combined ruling.
type Response struct {
	IdentityID string                `json:"identity_id"`
	Outcome    string                `json:"outcome"`
	Reason     string                `json:"reason"`
	RiskScore  float64               `json:"risk_score"`
	Fraud      fraud.Result          `json:"fraud"`
	Decision   policydomain.Decision `json:"decision"`
}

// Service wires the security components into the request flow.
type Service struct {
	facts      FactProvider
	identities *identity.Service
	engine     *fraud.Engine
	policies   *policy.Service
	alerts     *alerts.Manager
	audit      *auditlog.Log
	logger     *zap.Logger
	metrics    *metrics.Registry

	reviewThreshold float64

	mu        sync.Mutex
	processed int64
	flagged   int64
	now       func() time.Time
}

// NewService creates the orchestrator. A non-positive review threshold means
// DefaultReviewThreshold.
func NewService(
	facts FactProvider,
	identities *identity.Service,
	engine *fraud.Engine,
	policies *policy.Service,
	alertMgr *alerts.Manager,
	auditLog *auditlog.Log,
	reviewThreshold float64,
	logger *zap.Logger,
) *Service {
	if reviewThreshold <= 0 {
		reviewThreshold = DefaultReviewThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		facts:           facts,
		identities:      identities,
		engine:          engine,
		policies:        policies,
		alerts:          alertMgr,
		audit:           auditLog,
		logger:          logger,
		reviewThreshold: reviewThreshold,
		now:             time.Now,
	}
}

// ProcessRequest runs the full flow. The only error path is a failed fact
// lookup; every scored request completes with an outcome.
func (s *Service) ProcessRequest(ctx context.Context, req Request) (Response, error) {
	if req.Account == "" {
		return Response{}, errors.NewValidationError("MISSING_ACCOUNT", "account is required")
	}
	if req.Resource == "" {
		req.Resource = "orders"
	}
	if req.Action == "" {
		req.Action = "create"
	}

	started := time.Now()

	fact, err := s.facts.Lookup(ctx, req.Account)
	if err != nil {
		return Response{}, errors.NewExternalError("fact provider", err.Error()).WithCause(err)
	}

	id := s.identities.Issue(fact)

	txn := transaction.Context{
		Amount:         req.Amount,
		MedianAmount:   fact.MedianOrder,
		Region:         req.Region,
		LastRegion:     fact.Region,
		LastSeen:       fact.LastTransaction,
		AccountAgeDays: fact.AccountAgeDays,
		ConnectionType: req.ConnectionType,
	}

	fraudRes := s.engine.Score(fact, txn)
	decision := s.policies.Evaluate(id.ID, req.Resource, req.Action, txn)

	outcome, reason := s.combine(fraudRes, decision)

	s.mu.Lock()
	s.processed++
	if fraudRes.IsFraud {
		s.flagged++
	}
	s.mu.Unlock()

	if s.audit != nil {
		s.audit.Record(audit.SourceOrchestrator, audit.EventRequestProcessed, map[string]interface{}{
			"account":     req.Account,
			"identity_id": id.ID,
			"region":      req.Region,
			"outcome":     outcome,
			"reason":      reason,
			"risk_score":  fraudRes.RiskScore,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(ctx,
			float64(time.Since(started).Microseconds())/1000.0,
			outcome, fraudRes.RiskScore)
		if fraudRes.IsFraud {
			s.metrics.RecordFraudDetection(ctx, fraudRes.Triggered)
		}
	}
	s.logger.Info("request processed",
		zap.String("account", req.Account),
		zap.String("outcome", outcome),
		zap.Float64("risk_score", fraudRes.RiskScore))

	return Response{
		IdentityID: id.ID,
		Outcome:    outcome,
		Reason:     reason,
		RiskScore:  fraudRes.RiskScore,
		Fraud:      fraudRes,
		Decision:   decision,
	}, nil
}

// combine orders the rulings: fraud block first, then the policy chain, then
// the review band. The review band is strictly above the threshold; a score
// exactly on it still clears.
func (s *Service) combine(fraudRes fraud.Result, decision policydomain.Decision) (string, string) {
	switch {
	case fraudRes.IsFraud:
		return OutcomeDeny, errors.NewFraudBlockedError(fraudRes.Triggered).Message
	case !decision.Allowed:
		reason := decision.Reason
		if decision.PolicyID != "" {
			reason = errors.NewPolicyDeniedError(decision.PolicyName, decision.Reason).Message
		}
		return OutcomeDeny, reason
	case fraudRes.RiskScore > s.reviewThreshold:
		return OutcomeReview, "risk score warrants manual review"
	default:
		return OutcomeAllow, "cleared by fraud and policy checks"
	}
}

// Metrics is the operational snapshot surfaced by the API.
type Metrics struct {
	ActiveIdentities   int     `json:"active_identities"`
	PendingAlerts      int     `json:"pending_alerts"`
	FraudDetectionRate float64 `json:"fraud_detection_rate"`
	PolicyViolations   int     `json:"policy_violations_24h"`
	RegionsMonitored   int     `json:"regions_monitored"`
}

// GetMetrics snapshots the security core's health counters.
func (s *Service) GetMetrics() Metrics {
	s.mu.Lock()
	processed, flagged := s.processed, s.flagged
	now := s.now()
	s.mu.Unlock()

	rate := 0.0
	if processed > 0 {
		rate = float64(flagged) / float64(processed)
	}

	violations := 0
	if s.audit != nil {
		violations = s.audit.CountSince(audit.EventPolicyDenied, now.Add(-24*time.Hour))
	}

	return Metrics{
		ActiveIdentities:   s.identities.ActiveCount(),
		PendingAlerts:      s.alerts.PendingCount(),
		FraudDetectionRate: rate,
		PolicyViolations:   violations,
		RegionsMonitored:   geo.RegionCount(),
	}
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
