package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/okwaro/pesasentinel/internal/domain/geo"
	"github.com/okwaro/pesasentinel/internal/domain/identity"
	"github.com/okwaro/pesasentinel/internal/domain/policy"
	"github.com/okwaro/pesasentinel/internal/domain/transaction"
)

// Rule keys under which the built-in rules are registered.
const (
	RuleVerifiedAccount    = "verified_account"
	RuleLocationVelocity   = "location_velocity"
	RuleLargeOrderTenure   = "large_order_tenure"
	RuleConnectionPriority = "connection_priority"
)

// NewVerifiedAccountRule requires a verified identity whose account number is
// formatted for the expected country prefix (e.g. "254" followed by nine
// digits, with or without a leading plus).
func NewVerifiedAccountRule(countryPrefix string) policy.Rule {
	return policy.RuleFunc(func(id *identity.Identity, _ transaction.Context, _ time.Time) policy.RuleResult {
		if !id.Verified {
			return policy.Deny("identity is not verified")
		}
		if !accountMatchesPrefix(id.AccountNumber, countryPrefix) {
			return policy.Deny(fmt.Sprintf("account number is not formatted for country code %s", countryPrefix))
		}
		return policy.Allow("verified account in expected country format")
	})
}

func accountMatchesPrefix(account, prefix string) bool {
	account = strings.TrimPrefix(strings.TrimSpace(account), "+")
	if !strings.HasPrefix(account, prefix) {
		return false
	}
	if len(account) != len(prefix)+9 {
		return false
	}
	for _, ch := range account {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// NewLocationVelocityRule denies when moving from the last region to the
// current one would require exceeding the travel-speed ceiling.
func NewLocationVelocityRule(maxKMH float64) policy.Rule {
	return policy.RuleFunc(func(_ *identity.Identity, txn transaction.Context, now time.Time) policy.RuleResult {
		if !txn.HasMovement() {
			return policy.Allow("no prior location to compare against")
		}
		v := geo.VelocityKMH(txn.LastRegion, txn.Region, txn.Elapsed(now))
		if v > maxKMH {
			return policy.Deny(fmt.Sprintf(
				"implied travel velocity %.0f km/h from %s to %s exceeds ceiling %.0f km/h",
				v, txn.LastRegion, txn.Region, maxKMH))
		}
		return policy.Allow("location change is physically plausible")
	})
}

// NewLargeOrderTenureRule requires established tenure for orders exceeding a
// multiple of the caller's historical median. Large orders from accounts with
// enough tenure pass, but are tagged for review visibility.
func NewLargeOrderTenureRule(minAgeDays int, medianMultiple int64) policy.Rule {
	return policy.RuleFunc(func(_ *identity.Identity, txn transaction.Context, _ time.Time) policy.RuleResult {
		if !txn.ExceedsMedianMultiple(medianMultiple) {
			return policy.Allow("order is within the historical envelope")
		}
		if txn.AccountAgeDays < minAgeDays {
			return policy.Deny(fmt.Sprintf(
				"order exceeds %dx historical median and account age %dd is below required %dd",
				medianMultiple, txn.AccountAgeDays, minAgeDays))
		}
		res := policy.Allow("large order from established account")
		res.Conditions = map[string]interface{}{"large_order": true}
		return res
	})
}

// NewConnectionPriorityRule never denies. It raises review-priority metadata
// for region/connection combinations that deserve a closer look, such as web
// sessions originating away from the identity's home region.
func NewConnectionPriorityRule() policy.Rule {
	return policy.RuleFunc(func(id *identity.Identity, txn transaction.Context, _ time.Time) policy.RuleResult {
		priority := "standard"
		if txn.ConnectionType == transaction.ConnectionWeb && !strings.EqualFold(txn.Region, id.Region) {
			priority = "elevated"
		}
		res := policy.Allow("connection profile recorded")
		res.Conditions = map[string]interface{}{
			"review_priority": priority,
			"connection_type": txn.ConnectionType,
		}
		return res
	})
}

// DefaultRuleSet returns the built-in rules keyed for registration.
func DefaultRuleSet(countryPrefix string, maxTravelKMH float64, minOrderAgeDays int, medianMultiple int64) map[string]policy.Rule {
	return map[string]policy.Rule{
		RuleVerifiedAccount:    NewVerifiedAccountRule(countryPrefix),
		RuleLocationVelocity:   NewLocationVelocityRule(maxTravelKMH),
		RuleLargeOrderTenure:   NewLargeOrderTenureRule(minOrderAgeDays, medianMultiple),
		RuleConnectionPriority: NewConnectionPriorityRule(),
	}
}

// DefaultPolicies returns the standing policy chain, highest priority first
// when sorted by the evaluator.
func DefaultPolicies() []policy.Policy {
	return []policy.Policy{
		{
			ID:          "pol-account-verification",
			Name:        "Account Verification",
			Description: "Caller must hold a verified identity on a correctly formatted account number.",
			Priority:    100,
			RuleKey:     RuleVerifiedAccount,
			Active:      true,
		},
		{
			ID:          "pol-location-consistency",
			Name:        "Location Consistency",
			Description: "Region changes must be physically plausible at ground travel speeds.",
			Priority:    90,
			RuleKey:     RuleLocationVelocity,
			Active:      true,
		},
		{
			ID:          "pol-large-order-tenure",
			Name:        "Large Order Tenure",
			Description: "Orders far above the historical median require established account tenure.",
			Priority:    80,
			RuleKey:     RuleLargeOrderTenure,
			Active:      true,
		},
		{
			ID:          "pol-connection-priority",
			Name:        "Connection Priority",
			Description: "Tags risky region/connection combinations for review; never denies.",
			Priority:    10,
			RuleKey:     RuleConnectionPriority,
			Active:      true,
		},
	}
}
