// Package audit defines the append-only audit record. Entries are immutable
// after creation; the only way one disappears is bounded rolling eviction in
// the log that stores it.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Source tags identify which component recorded an entry.
const (
	SourceIssuer       = "identity_issuer"
	SourcePolicy       = "policy_evaluator"
	SourceFraud        = "fraud_engine"
	SourceAlerts       = "alert_manager"
	SourceMonitor      = "background_monitor"
	SourceOrchestrator = "orchestrator"
)

// Well-known event names.
const (
	EventIdentityIssued   = "identity.issued"
	EventIdentityExpired  = "identity.expired"
	EventPolicyChecked    = "policy.checked"
	EventPolicyDenied     = "policy.denied"
	EventPolicyAllowed    = "policy.allowed"
	EventPolicyToggled    = "policy.toggled"
	EventFraudEvaluated   = "fraud.evaluated"
	EventAlertRaised      = "alert.raised"
	EventAlertResolved    = "alert.resolved"
	EventRequestProcessed = "request.processed"
)

// Entry is one append-only audit record.
type Entry struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewEntry stamps a fresh entry. Details may be nil.
func NewEntry(source, event string, details map[string]interface{}, now time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Event:     event,
		Details:   details,
		Timestamp: now,
		Source:    source,
	}
}
