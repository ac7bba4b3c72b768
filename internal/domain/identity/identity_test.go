package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primaryNetwork = "safaricom"

func fact(ageDays int, risk float64) VerificationFact {
	return VerificationFact{
		AccountNumber:   "254712345678",
		AccountAgeDays:  ageDays,
		LastTransaction: time.Now().Add(-2 * time.Hour),
		FraudRiskScore:  risk,
		Region:          "nairobi",
		Network:         primaryNetwork,
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		name    string
		ageDays int
		risk    float64
		want    Tier
	}{
		{"new account is basic", 10, 0, TierBasic},
		{"young low risk is verified", 45, 5, TierVerified},
		{"young high risk stays basic", 45, 25, TierBasic},
		{"year old low risk is premium", 400, 5, TierPremium},
		{"year old moderate risk falls to basic", 400, 30, TierBasic},
		{"long tenure minimal risk is enterprise", 800, 2, TierEnterprise},
		{"long tenure moderate risk is not enterprise", 800, 8, TierPremium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFor(fact(tt.ageDays, tt.risk)))
		})
	}
}

func TestTierMeets(t *testing.T) {
	ordered := []Tier{TierBasic, TierVerified, TierPremium, TierEnterprise}

	for i, held := range ordered {
		for j, required := range ordered {
			assert.Equal(t, i >= j, held.Meets(required),
				"held=%s required=%s", held, required)
		}
	}

	// A corrupted tier value never satisfies any requirement.
	assert.False(t, Tier("gold").Meets(TierBasic))
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name string
		fact VerificationFact
		want bool
	}{
		{"young account fails", fact(29, 0), false},
		{"thirty days passes", fact(30, 0), true},
		{"high risk fails", fact(200, 81), false},
		{"risk at threshold passes", fact(200, 80), true},
		{
			"foreign network under ninety days fails",
			VerificationFact{AccountNumber: "254700000001", AccountAgeDays: 60, FraudRiskScore: 5, Network: "airtel"},
			false,
		},
		{
			"foreign network with tenure passes",
			VerificationFact{AccountNumber: "254700000001", AccountAgeDays: 120, FraudRiskScore: 5, Network: "airtel"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.fact, primaryNetwork))
		})
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := New("pesasentinel.local", fact(400, 5), primaryNetwork, now, DefaultTTL)

	require.NotNil(t, id)
	assert.Contains(t, id.ID, "sentinel://pesasentinel.local/account/254712345678/")
	assert.Equal(t, now, id.IssuedAt)
	assert.Equal(t, now.Add(24*time.Hour), id.ExpiresAt, "expiry is exactly issue + 24h")
	assert.True(t, id.Verified)
	assert.Equal(t, TierPremium, id.Tier)
	assert.Equal(t, "nairobi", id.Region)

	assert.False(t, id.Expired(now.Add(23*time.Hour)))
	assert.True(t, id.Expired(now.Add(24*time.Hour+time.Second)))
}

func TestNew_UnverifiedFactStillYieldsIdentity(t *testing.T) {
	now := time.Now()
	id := New("pesasentinel.local", fact(5, 95), primaryNetwork, now, 0)

	require.NotNil(t, id)
	assert.False(t, id.Verified)
	assert.Equal(t, TierBasic, id.Tier)
	assert.Equal(t, now.Add(DefaultTTL), id.ExpiresAt)
}

func TestNew_IdentifiersAreUnique(t *testing.T) {
	now := time.Now()
	a := New("pesasentinel.local", fact(40, 1), primaryNetwork, now, DefaultTTL)
	b := New("pesasentinel.local", fact(40, 1), primaryNetwork, now, DefaultTTL)
	assert.NotEqual(t, a.ID, b.ID)
}
