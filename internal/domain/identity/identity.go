// Package identity defines the short-lived, tiered credential issued for a
// mobile-money account, and the upstream verification fact it derives from.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is the ordered access tier of an identity.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierVerified   Tier = "verified"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// tierOrder fixes the comparison scale basic < verified < premium < enterprise.
var tierOrder = map[Tier]int{
	TierBasic:      0,
	TierVerified:   1,
	TierPremium:    2,
	TierEnterprise: 3,
}

// Index returns the tier's position on the ordered scale. Unknown tiers rank
// below basic so a corrupted value can never satisfy a tier requirement.
func (t Tier) Index() int {
	if i, ok := tierOrder[t]; ok {
		return i
	}
	return -1
}

// Meets reports whether the tier satisfies the given minimum tier.
func (t Tier) Meets(min Tier) bool {
	return t.Index() >= min.Index()
}

// IsValid reports whether the tier is one of the four known values.
func (t Tier) IsValid() bool {
	_, ok := tierOrder[t]
	return ok
}

// VerificationFact is the opaque upstream signal from the phone-money
// verification provider. The core never mutates it.
type VerificationFact struct {
	AccountNumber   string          `json:"account_number"`
	AccountAgeDays  int             `json:"account_age_days"`
	LastTransaction time.Time       `json:"last_transaction"`
	FraudRiskScore  float64         `json:"fraud_risk_score"` // 0-100
	Region          string          `json:"region"`
	Network         string          `json:"network"`
	MedianOrder     decimal.Decimal `json:"median_order"` // historical median order amount
}

// Identity is one authenticated session for one account number.
type Identity struct {
	ID            string    `json:"id"`
	AccountNumber string    `json:"account_number"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Verified      bool      `json:"verified"`
	Region        string    `json:"region"`
	Tier          Tier      `json:"tier"`
}

// DefaultTTL is the fixed identity validity window.
const DefaultTTL = 24 * time.Hour

// Tier thresholds over account age and upstream risk score.
const (
	verifiedMinAgeDays   = 30
	premiumMinAgeDays    = 365
	enterpriseMinAgeDays = 730

	verifiedMaxRisk   = 20.0
	premiumMaxRisk    = 10.0
	enterpriseMaxRisk = 5.0
)

// Verification thresholds.
const (
	verifyMinAgeDays         = 30
	verifyMaxRisk            = 80.0
	foreignNetworkMinAgeDays = 90
)

// TierFor derives the tier from account age and risk score. Each tier has an
// explicit guard; a fact that misses every higher bucket lands on basic, so
// an ambiguous account is never silently promoted.
func TierFor(fact VerificationFact) Tier {
	switch {
	case fact.AccountAgeDays >= enterpriseMinAgeDays && fact.FraudRiskScore < enterpriseMaxRisk:
		return TierEnterprise
	case fact.AccountAgeDays >= premiumMinAgeDays && fact.FraudRiskScore < premiumMaxRisk:
		return TierPremium
	case fact.AccountAgeDays >= verifiedMinAgeDays && fact.FraudRiskScore < verifiedMaxRisk:
		return TierVerified
	default:
		return TierBasic
	}
}

// Verify decides the identity's verified flag from the raw fact. The primary
// network is the mobile operator the platform trusts by default; accounts on
// other networks need longer tenure.
func Verify(fact VerificationFact, primaryNetwork string) bool {
	if fact.AccountAgeDays < verifyMinAgeDays {
		return false
	}
	if fact.FraudRiskScore > verifyMaxRisk {
		return false
	}
	if !strings.EqualFold(fact.Network, primaryNetwork) && fact.AccountAgeDays < foreignNetworkMinAgeDays {
		return false
	}
	return true
}

// New constructs an identity for the fact, valid for exactly ttl from now.
// The identifier is namespaced by trust domain and account path.
func New(trustDomain string, fact VerificationFact, primaryNetwork string, now time.Time, ttl time.Duration) *Identity {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Identity{
		ID:            fmt.Sprintf("sentinel://%s/account/%s/%s", trustDomain, fact.AccountNumber, uuid.NewString()),
		AccountNumber: fact.AccountNumber,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
		Verified:      Verify(fact, primaryNetwork),
		Region:        strings.ToLower(fact.Region),
		Tier:          TierFor(fact),
	}
}

// Expired reports whether the identity's validity window has passed.
func (i *Identity) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
