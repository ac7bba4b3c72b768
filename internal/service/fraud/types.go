package fraud

import (
	"time"

	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
)

// Recommended actions a rule can attach to a hit.
const (
	ActionBlock  = "block"
	ActionReview = "review"
	ActionNotify = "notify"
)

// DefaultBlockThreshold is the summed risk score at and above which a
// request is classified as fraud. Overridable through configuration.
const DefaultBlockThreshold = 80.0

// Predicate decides whether a rule fires for the given fact and context.
// It returns a human-readable reason when it does.
type Predicate func(fact identity.VerificationFact, txn transaction.Context, now time.Time) (bool, string)

// Rule is an independent fraud check. Rules are static configuration: every
// enabled rule is evaluated on every call and triggered weights sum.
type Rule struct {
	Name      string
	Weight    float64
	Action    string
	Predicate Predicate
}

// Result is the outcome of one engine evaluation.
type Result struct {
	IsFraud   bool     `json:"is_fraud"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	Triggered []string `json:"triggered,omitempty"` // rule names
}
