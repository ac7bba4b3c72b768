// Package alert defines the severity-tagged security alert record.
package alert

import "time"

// Severity levels, lowest to highest.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ForWeight maps a fraud-rule risk weight to an alert severity.
func ForWeight(weight float64) Severity {
	switch {
	case weight > 80:
		return SeverityCritical
	case weight > 60:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Well-known alert types.
const (
	TypeFraudDetection = "fraud_detection"
	TypeUnusualAccess  = "unusual_access"
)

// Alert records a detected condition. Only the resolution fields are ever
// mutated after creation.
type Alert struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Severity      Severity               `json:"severity"`
	AccountNumber string                 `json:"account_number,omitempty"`
	Region        string                 `json:"region,omitempty"`
	Message       string                 `json:"message"`
	MessageSW     string                 `json:"message_sw,omitempty"` // Swahili variant for operator SMS surfaces
	Details       map[string]interface{} `json:"details,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	Resolved      bool                   `json:"resolved"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
	ResolveNote   string                 `json:"resolve_note,omitempty"`
}
