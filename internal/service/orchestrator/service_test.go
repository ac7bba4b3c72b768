package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okwaro/pesasentinel/internal/domain/audit"
	"github.com/okwaro/pesasentinel/internal/domain/errors"
	identitydomain "github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
	"github.com/okwaro/pesasentinel/internal/service/fraud"
	"github.com/okwaro/pesasentinel/internal/service/identity"
	"github.com/okwaro/pesasentinel/internal/service/policy"
)

var flowTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubFactProvider struct {
	facts map[string]identitydomain.VerificationFact
	err   error
}

func (s *stubFactProvider) Lookup(_ context.Context, account string) (identitydomain.VerificationFact, error) {
	if s.err != nil {
		return identitydomain.VerificationFact{}, s.err
	}
	fact, ok := s.facts[account]
	if !ok {
		return identitydomain.VerificationFact{}, fmt.Errorf("account %s unknown", account)
	}
	return fact, nil
}

func establishedFact(account string) identitydomain.VerificationFact {
	return identitydomain.VerificationFact{
		AccountNumber:   account,
		AccountAgeDays:  400,
		LastTransaction: flowTime.Add(-24 * time.Hour),
		FraudRiskScore:  5,
		Region:          "nairobi",
		Network:         "safaricom",
		MedianOrder:     decimal.NewFromInt(2000),
	}
}

type harness struct {
	svc      *Service
	facts    *stubFactProvider
	alerts   *alerts.Manager
	auditLog *auditlog.Log
	ids      *identity.Service
	engine   *fraud.Engine
	policies *policy.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := auditlog.New(1000, nil)
	log.SetClock(func() time.Time { return flowTime })

	mgr := alerts.NewManager(100, log, nil, nil)
	t.Cleanup(mgr.Close)

	ids := identity.NewService(identity.Config{
		TrustDomain:    "pesasentinel.local",
		PrimaryNetwork: "safaricom",
	}, log, nil)
	ids.SetClock(func() time.Time { return flowTime })

	engine := fraud.NewEngine(nil, 0, mgr, log, nil)
	engine.SetClock(func() time.Time { return flowTime })

	pol := policy.NewService(ids, log, nil)
	pol.SetClock(func() time.Time { return flowTime })
	for key, rule := range policy.DefaultRuleSet("254", 100, 90, 10) {
		pol.RegisterRule(key, rule)
	}
	require.NoError(t, pol.LoadPolicies(policy.DefaultPolicies()))

	facts := &stubFactProvider{facts: map[string]identitydomain.VerificationFact{}}
	svc := NewService(facts, ids, engine, pol, mgr, log, 0, nil)
	svc.SetClock(func() time.Time { return flowTime })

	return &harness{
		svc: svc, facts: facts, alerts: mgr, auditLog: log,
		ids: ids, engine: engine, policies: pol,
	}
}

func okRequest(account string) Request {
	return Request{
		Account:        account,
		Region:         "nairobi",
		Amount:         decimal.NewFromInt(1500),
		ConnectionType: transaction.ConnectionUSSD,
	}
}

func TestProcessRequest_Allows(t *testing.T) {
	h := newHarness(t)
	h.facts.facts["254712345678"] = establishedFact("254712345678")

	resp, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, resp.Outcome)
	assert.NotEmpty(t, resp.IdentityID)
	assert.True(t, resp.Decision.Allowed)
	assert.False(t, resp.Fraud.IsFraud)

	// The identity it minted is registered and active.
	_, ok := h.ids.Get(resp.IdentityID)
	assert.True(t, ok)
}

func TestProcessRequest_FraudBlocks(t *testing.T) {
	h := newHarness(t)

	// Ten-day-old account, order 25x its median, last seen in mombasa an
	// hour ago: new_account_large_order and location_velocity both fire.
	fact := establishedFact("254700000001")
	fact.AccountAgeDays = 10
	fact.Region = "mombasa"
	fact.LastTransaction = flowTime.Add(-time.Hour)
	h.facts.facts["254700000001"] = fact

	req := okRequest("254700000001")
	req.Amount = decimal.NewFromInt(50_000)

	resp, err := h.svc.ProcessRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, resp.Outcome)
	assert.True(t, resp.Fraud.IsFraud)
	assert.GreaterOrEqual(t, resp.RiskScore, 80.0)
	assert.Positive(t, h.alerts.PendingCount())
}

func TestProcessRequest_PolicyDenies(t *testing.T) {
	h := newHarness(t)

	// National-format account number fails verification, so the chain's
	// verification policy denies even though no fraud rule fires.
	fact := establishedFact("0712345678")
	h.facts.facts["0712345678"] = fact

	resp, err := h.svc.ProcessRequest(context.Background(), okRequest("0712345678"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, resp.Outcome)
	assert.False(t, resp.Fraud.IsFraud)
	assert.False(t, resp.Decision.Allowed)
	assert.Contains(t, resp.Reason, "denied by policy Account Verification")
	assert.Contains(t, resp.Reason, resp.Decision.Reason)
}

func TestProcessRequest_ReviewBand(t *testing.T) {
	h := newHarness(t)

	// A dormant but otherwise legitimate account trips only the pattern
	// rule, which no policy mirrors: the request clears the chain but lands
	// in review once its score exceeds the threshold.
	svc := NewService(h.facts, h.ids, h.engine, h.policies, h.alerts, h.auditLog, 30, nil)
	svc.SetClock(func() time.Time { return flowTime })

	fact := establishedFact("254700000002")
	fact.LastTransaction = flowTime.Add(-10 * 24 * time.Hour)
	h.facts.facts["254700000002"] = fact

	resp, err := svc.ProcessRequest(context.Background(), okRequest("254700000002"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, resp.Outcome)
	assert.False(t, resp.Fraud.IsFraud)
	assert.True(t, resp.Decision.Allowed)
	assert.Equal(t, 40.0, resp.RiskScore)
}

func TestProcessRequest_ReviewThresholdBoundary(t *testing.T) {
	scoreWith := func(t *testing.T, weight float64) Response {
		h := newHarness(t)
		h.engine.SetRules([]fraud.Rule{{
			Name:   "fixed_weight",
			Weight: weight,
			Action: fraud.ActionReview,
			Predicate: func(identitydomain.VerificationFact, transaction.Context, time.Time) (bool, string) {
				return true, "fixed weight"
			},
		}})
		h.facts.facts["254712345678"] = establishedFact("254712345678")

		resp, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
		require.NoError(t, err)
		return resp
	}

	// A score exactly on the review threshold still clears; only scores
	// strictly above it route to review.
	onThreshold := scoreWith(t, DefaultReviewThreshold)
	assert.Equal(t, DefaultReviewThreshold, onThreshold.RiskScore)
	assert.Equal(t, OutcomeAllow, onThreshold.Outcome)

	above := scoreWith(t, DefaultReviewThreshold+1)
	assert.Equal(t, OutcomeReview, above.Outcome)
}

func TestProcessRequest_FactLookupFails(t *testing.T) {
	h := newHarness(t)
	h.facts.err = fmt.Errorf("upstream timeout")

	_, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
	assert.True(t, errors.IsRetryable(err))
}

func TestProcessRequest_MissingAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ProcessRequest(context.Background(), Request{Region: "nairobi"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestProcessRequest_Audits(t *testing.T) {
	h := newHarness(t)
	h.facts.facts["254712345678"] = establishedFact("254712345678")

	_, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
	require.NoError(t, err)

	assert.Equal(t, 1, h.auditLog.CountSince(audit.EventRequestProcessed, time.Time{}))
	assert.Equal(t, 1, h.auditLog.CountSince(audit.EventIdentityIssued, time.Time{}))
	assert.Equal(t, 1, h.auditLog.CountSince(audit.EventFraudEvaluated, time.Time{}))
	assert.Equal(t, 1, h.auditLog.CountSince(audit.EventPolicyAllowed, time.Time{}))
}

func TestProcessRequest_WithMetricsRegistry(t *testing.T) {
	h := newHarness(t)

	reg, err := metrics.NewRegistry("pesasentinel_test")
	require.NoError(t, err)
	h.ids.SetMetrics(reg)
	h.alerts.SetMetrics(reg)
	h.policies.SetMetrics(reg)
	h.svc.SetMetrics(reg)

	h.facts.facts["254712345678"] = establishedFact("254712345678")
	fraudFact := establishedFact("254700000001")
	fraudFact.AccountAgeDays = 10
	fraudFact.Region = "mombasa"
	fraudFact.LastTransaction = flowTime.Add(-time.Hour)
	h.facts.facts["254700000001"] = fraudFact
	h.facts.facts["0712345678"] = establishedFact("0712345678")

	// One request per recording path: allow, fraud block with triggered
	// rules and raised alerts, and a policy chain denial. Outcomes are
	// unchanged with the registry attached.
	resp, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllow, resp.Outcome)

	fraudReq := okRequest("254700000001")
	fraudReq.Amount = decimal.NewFromInt(50_000)
	resp, err = h.svc.ProcessRequest(context.Background(), fraudReq)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, resp.Outcome)
	assert.True(t, resp.Fraud.IsFraud)

	resp, err = h.svc.ProcessRequest(context.Background(), okRequest("0712345678"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, resp.Outcome)
	assert.False(t, resp.Decision.Allowed)
}

func TestGetMetrics(t *testing.T) {
	h := newHarness(t)
	h.facts.facts["254712345678"] = establishedFact("254712345678")

	fraudFact := establishedFact("254700000001")
	fraudFact.AccountAgeDays = 10
	fraudFact.Region = "mombasa"
	fraudFact.LastTransaction = flowTime.Add(-time.Hour)
	h.facts.facts["254700000001"] = fraudFact

	_, err := h.svc.ProcessRequest(context.Background(), okRequest("254712345678"))
	require.NoError(t, err)

	fraudReq := okRequest("254700000001")
	fraudReq.Amount = decimal.NewFromInt(50_000)
	_, err = h.svc.ProcessRequest(context.Background(), fraudReq)
	require.NoError(t, err)

	m := h.svc.GetMetrics()
	assert.Equal(t, 2, m.ActiveIdentities)
	assert.Equal(t, 0.5, m.FraudDetectionRate)
	assert.Positive(t, m.PendingAlerts)
	assert.Equal(t, 7, m.RegionsMonitored)
	assert.Equal(t, 1, m.PolicyViolations, "the blocked request also failed the policy chain")
}
