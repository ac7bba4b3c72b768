package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the security core
type Registry struct {
	meter metric.Meter

	// Request flow metrics
	RequestDuration metric.Float64Histogram
	RequestCounter  metric.Int64Counter

	// Identity metrics
	IdentitiesIssuedCounter metric.Int64Counter
	ActiveIdentities        metric.Int64ObservableGauge
	IdentitiesSweptCounter  metric.Int64Counter

	// Fraud metrics
	FraudScore           metric.Float64Histogram
	FraudDetectedCounter metric.Int64Counter
	RuleTriggeredCounter metric.Int64Counter

	// Policy metrics
	PolicyCheckDuration metric.Float64Histogram
	PolicyDenialCounter metric.Int64Counter

	// Alert metrics
	AlertsRaisedCounter metric.Int64Counter
	PendingAlerts       metric.Int64ObservableGauge

	// API metrics
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter

	// State for observable metrics
	mu               sync.RWMutex
	activeIdentities int64
	pendingAlerts    int64
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	meter := otel.Meter(meterName)
	r := &Registry{meter: meter}

	if err := r.initRequestMetrics(); err != nil {
		return nil, err
	}
	if err := r.initIdentityMetrics(); err != nil {
		return nil, err
	}
	if err := r.initFraudMetrics(); err != nil {
		return nil, err
	}
	if err := r.initPolicyMetrics(); err != nil {
		return nil, err
	}
	if err := r.initAlertMetrics(); err != nil {
		return nil, err
	}
	return r, r.initAPIMetrics()
}

func (r *Registry) initRequestMetrics() error {
	var err error

	r.RequestDuration, err = r.meter.Float64Histogram(
		"sentinel.request.duration",
		metric.WithDescription("End-to-end request clearing duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 50, 100, 500),
	)
	if err != nil {
		return err
	}

	r.RequestCounter, err = r.meter.Int64Counter(
		"sentinel.request.total",
		metric.WithDescription("Total number of processed requests by outcome"),
	)
	return err
}

func (r *Registry) initIdentityMetrics() error {
	var err error

	r.IdentitiesIssuedCounter, err = r.meter.Int64Counter(
		"sentinel.identity.issued_total",
		metric.WithDescription("Total identities issued"),
	)
	if err != nil {
		return err
	}

	r.ActiveIdentities, err = r.meter.Int64ObservableGauge(
		"sentinel.identity.active_total",
		metric.WithDescription("Number of unexpired identities in the registry"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.activeIdentities)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.IdentitiesSweptCounter, err = r.meter.Int64Counter(
		"sentinel.identity.swept_total",
		metric.WithDescription("Total expired identities removed by the monitor"),
	)
	return err
}

func (r *Registry) initFraudMetrics() error {
	var err error

	r.FraudScore, err = r.meter.Float64Histogram(
		"sentinel.fraud.risk_score",
		metric.WithDescription("Risk score distribution of evaluated requests"),
		metric.WithExplicitBucketBoundaries(0, 10, 25, 40, 50, 65, 80, 100, 150),
	)
	if err != nil {
		return err
	}

	r.FraudDetectedCounter, err = r.meter.Int64Counter(
		"sentinel.fraud.detected_total",
		metric.WithDescription("Total requests classified as fraud"),
	)
	if err != nil {
		return err
	}

	r.RuleTriggeredCounter, err = r.meter.Int64Counter(
		"sentinel.fraud.rule_triggered_total",
		metric.WithDescription("Total fraud rule triggers by rule name"),
	)
	return err
}

func (r *Registry) initPolicyMetrics() error {
	var err error

	r.PolicyCheckDuration, err = r.meter.Float64Histogram(
		"sentinel.policy.evaluation_duration",
		metric.WithDescription("Policy chain evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return err
	}

	r.PolicyDenialCounter, err = r.meter.Int64Counter(
		"sentinel.policy.denial_total",
		metric.WithDescription("Total policy chain denials by policy id"),
	)
	return err
}

func (r *Registry) initAlertMetrics() error {
	var err error

	r.AlertsRaisedCounter, err = r.meter.Int64Counter(
		"sentinel.alert.raised_total",
		metric.WithDescription("Total security alerts raised by severity"),
	)
	if err != nil {
		return err
	}

	r.PendingAlerts, err = r.meter.Int64ObservableGauge(
		"sentinel.alert.pending_total",
		metric.WithDescription("Number of unresolved alerts"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.pendingAlerts)
			return nil
		}),
	)
	return err
}

func (r *Registry) initAPIMetrics() error {
	var err error

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"sentinel.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"sentinel.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)
	return err
}

// SetActiveIdentities sets the active identity count for the gauge
func (r *Registry) SetActiveIdentities(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeIdentities = n
}

// SetPendingAlerts sets the unresolved alert count for the gauge
func (r *Registry) SetPendingAlerts(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingAlerts = n
}

// RecordRequest records one cleared request with its outcome
func (r *Registry) RecordRequest(ctx context.Context, durationMS float64, outcome string, riskScore float64) {
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}

	r.RequestDuration.Record(ctx, durationMS, metric.WithAttributes(attrs...))
	r.RequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	r.FraudScore.Record(ctx, riskScore)
}

// RecordIdentityIssued records one issued identity
func (r *Registry) RecordIdentityIssued(ctx context.Context) {
	r.IdentitiesIssuedCounter.Add(ctx, 1)
}

// RecordIdentitiesSwept records identities removed by an expiry sweep
func (r *Registry) RecordIdentitiesSwept(ctx context.Context, n int64) {
	if n > 0 {
		r.IdentitiesSweptCounter.Add(ctx, n)
	}
}

// RecordFraudDetection records a fraud classification and its triggered rules
func (r *Registry) RecordFraudDetection(ctx context.Context, rules []string) {
	r.FraudDetectedCounter.Add(ctx, 1)
	for _, rule := range rules {
		r.RuleTriggeredCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule", rule),
		))
	}
}

// RecordPolicyDenial records a policy chain denial
func (r *Registry) RecordPolicyDenial(ctx context.Context, policyID string) {
	r.PolicyDenialCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy_id", policyID),
	))
}

// RecordAlertRaised records a raised alert by severity
func (r *Registry) RecordAlertRaised(ctx context.Context, severity string) {
	r.AlertsRaisedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
	))
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, durationMS float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, durationMS, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
