// Package geo provides the coarse region-distance table used by the
// travel-velocity checks. Precision is deliberately low: regions are buckets,
// not coordinates, and unknown pairs fall back to a conservative distance so
// velocity checks fail safe (toward deny) rather than fail open.
package geo

import (
	"sort"
	"strings"
	"time"
)

// UnknownPairKM is the fallback distance for region pairs missing from the
// table. Non-zero so an unknown pair still produces a finite, suspicious
// velocity instead of silently passing.
const UnknownPairKM = 500.0

// pairKey builds an order-independent key for two regions.
func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// distanceKM holds approximate road distances between monitored regions.
var distanceKM = map[string]float64{
	pairKey("nairobi", "mombasa"):  490,
	pairKey("nairobi", "kisumu"):   345,
	pairKey("nairobi", "nakuru"):   160,
	pairKey("nairobi", "eldoret"):  310,
	pairKey("nairobi", "western"):  390,
	pairKey("nairobi", "coast"):    470,
	pairKey("mombasa", "kisumu"):   830,
	pairKey("mombasa", "nakuru"):   650,
	pairKey("mombasa", "eldoret"):  800,
	pairKey("mombasa", "western"):  880,
	pairKey("mombasa", "coast"):    40,
	pairKey("kisumu", "nakuru"):    185,
	pairKey("kisumu", "eldoret"):   120,
	pairKey("kisumu", "western"):   60,
	pairKey("kisumu", "coast"):     810,
	pairKey("nakuru", "eldoret"):   155,
	pairKey("nakuru", "western"):   240,
	pairKey("nakuru", "coast"):     630,
	pairKey("eldoret", "western"):  75,
	pairKey("eldoret", "coast"):    780,
	pairKey("western", "coast"):    860,
}

// DistanceKM returns the approximate distance between two regions. The same
// region is distance zero; unknown pairs return UnknownPairKM.
func DistanceKM(from, to string) float64 {
	if strings.EqualFold(from, to) {
		return 0
	}
	if d, ok := distanceKM[pairKey(from, to)]; ok {
		return d
	}
	return UnknownPairKM
}

// VelocityKMH returns the implied travel speed for moving between two regions
// in the given elapsed time. A non-positive elapsed duration is treated as
// one second so a same-instant region change yields a very high velocity
// rather than a division by zero.
func VelocityKMH(from, to string, elapsed time.Duration) float64 {
	d := DistanceKM(from, to)
	if d == 0 {
		return 0
	}
	if elapsed <= 0 {
		elapsed = time.Second
	}
	return d / elapsed.Hours()
}

// Regions returns the sorted list of regions present in the distance table.
func Regions() []string {
	set := make(map[string]struct{})
	for key := range distanceKM {
		parts := strings.SplitN(key, "|", 2)
		set[parts[0]] = struct{}{}
		set[parts[1]] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// RegionCount returns the number of regions the table monitors.
func RegionCount() int {
	return len(Regions())
}
