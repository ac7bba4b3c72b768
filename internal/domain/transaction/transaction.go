// Package transaction carries the per-request context shared by the policy
// evaluator and the fraud engine.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Connection types seen on the mobile-money front ends.
const (
	ConnectionUSSD = "ussd"
	ConnectionApp  = "app"
	ConnectionWeb  = "web"
)

// Context describes the transaction being decided. It is input-only: rules
// read it, nothing mutates it.
type Context struct {
	Amount         decimal.Decimal `json:"amount"`
	MedianAmount   decimal.Decimal `json:"median_amount"` // caller's historical median order
	Region         string          `json:"region"`        // where the request originates now
	LastRegion     string          `json:"last_region"`   // region of the previous activity
	LastSeen       time.Time       `json:"last_seen"`     // time of the previous activity
	AccountAgeDays int             `json:"account_age_days"`
	ConnectionType string          `json:"connection_type"`
}

// ExceedsMedianMultiple reports whether the amount is strictly greater than
// n times the historical median. A missing median (zero) never trips the
// check; a first order has no baseline to be anomalous against.
func (c Context) ExceedsMedianMultiple(n int64) bool {
	if c.MedianAmount.Sign() <= 0 {
		return false
	}
	return c.Amount.GreaterThan(c.MedianAmount.Mul(decimal.NewFromInt(n)))
}

// Elapsed returns the time between the previous activity and now.
func (c Context) Elapsed(now time.Time) time.Duration {
	if c.LastSeen.IsZero() {
		return 0
	}
	return now.Sub(c.LastSeen)
}

// HasMovement reports whether the request implies a region change with a
// known prior position.
func (c Context) HasMovement() bool {
	return c.LastRegion != "" && c.Region != "" && !c.LastSeen.IsZero()
}
