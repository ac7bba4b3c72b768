package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want float64
	}{
		{"known pair", "nairobi", "mombasa", 490},
		{"reversed pair", "mombasa", "nairobi", 490},
		{"case insensitive", "Nairobi", "MOMBASA", 490},
		{"same region", "nairobi", "nairobi", 0},
		{"unknown pair defaults conservatively", "nairobi", "atlantis", UnknownPairKM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DistanceKM(tt.from, tt.to))
		})
	}
}

func TestVelocityKMH(t *testing.T) {
	// Scenario from the mombasa corridor: 490 km in one hour.
	assert.InDelta(t, 490, VelocityKMH("nairobi", "mombasa", time.Hour), 0.01)

	// Same region never implies movement.
	assert.Zero(t, VelocityKMH("nairobi", "nairobi", time.Minute))

	// Zero elapsed must not divide by zero; it implies an extreme velocity.
	v := VelocityKMH("nairobi", "mombasa", 0)
	assert.Greater(t, v, 10_000.0)
}

func TestRegions(t *testing.T) {
	regions := Regions()
	assert.Contains(t, regions, "nairobi")
	assert.Contains(t, regions, "western")
	assert.Equal(t, len(regions), RegionCount())
	assert.GreaterOrEqual(t, RegionCount(), 7)
}
