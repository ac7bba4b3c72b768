package fraud

import (
	"fmt"
	"time"

	"github.com/okwaro/pesasentinel/internal/domain/geo"
	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
)

// Rule names.
const (
	RuleNewAccountLargeOrder = "new_account_large_order"
	RuleLocationVelocity     = "location_velocity"
	RuleStaleOrRiskyPattern  = "stale_or_risky_pattern"
)

// Default rule parameters.
const (
	newAccountMaxAgeDays = 90
	medianMultiple       = 10
	maxTravelKMH         = 100.0
	riskyUpstreamScore   = 70.0
	staleAfter           = 7 * 24 * time.Hour
)

// NewAccountLargeOrderRule fires when a young account places an order far
// above its historical median.
func NewAccountLargeOrderRule(weight float64) Rule {
	return Rule{
		Name:   RuleNewAccountLargeOrder,
		Weight: weight,
		Action: ActionBlock,
		Predicate: func(fact identity.VerificationFact, txn transaction.Context, _ time.Time) (bool, string) {
			if fact.AccountAgeDays >= newAccountMaxAgeDays {
				return false, ""
			}
			if !txn.ExceedsMedianMultiple(medianMultiple) {
				return false, ""
			}
			return true, fmt.Sprintf(
				"account aged %dd placed an order above %dx its historical median",
				fact.AccountAgeDays, medianMultiple)
		},
	}
}

// LocationVelocityRule fires when the implied travel speed between the last
// and current region exceeds the ceiling. Unknown region pairs use the
// conservative default distance, so they can still fire.
func LocationVelocityRule(weight float64) Rule {
	return Rule{
		Name:   RuleLocationVelocity,
		Weight: weight,
		Action: ActionBlock,
		Predicate: func(_ identity.VerificationFact, txn transaction.Context, now time.Time) (bool, string) {
			if !txn.HasMovement() {
				return false, ""
			}
			v := geo.VelocityKMH(txn.LastRegion, txn.Region, txn.Elapsed(now))
			if v <= maxTravelKMH {
				return false, ""
			}
			return true, fmt.Sprintf(
				"implied travel velocity %.0f km/h from %s to %s exceeds %.0f km/h",
				v, txn.LastRegion, txn.Region, maxTravelKMH)
		},
	}
}

// StaleOrRiskyPatternRule fires when the upstream risk score is already high
// or the account has been dormant for more than a week.
func StaleOrRiskyPatternRule(weight float64) Rule {
	return Rule{
		Name:   RuleStaleOrRiskyPattern,
		Weight: weight,
		Action: ActionReview,
		Predicate: func(fact identity.VerificationFact, _ transaction.Context, now time.Time) (bool, string) {
			if fact.FraudRiskScore > riskyUpstreamScore {
				return true, fmt.Sprintf("upstream risk score %.0f exceeds %.0f",
					fact.FraudRiskScore, riskyUpstreamScore)
			}
			if !fact.LastTransaction.IsZero() && now.Sub(fact.LastTransaction) > staleAfter {
				return true, fmt.Sprintf("no account activity for %.0f days",
					now.Sub(fact.LastTransaction).Hours()/24)
			}
			return false, ""
		},
	}
}

// DefaultRules returns the standing rule set with its default weights.
func DefaultRules() []Rule {
	return []Rule{
		NewAccountLargeOrderRule(50),
		LocationVelocityRule(65),
		StaleOrRiskyPatternRule(40),
	}
}
