// Package sizing computes order volume from account risk settings and a
// tiered margin model. The broker's margin requirement per unit of notional
// grows with position size, so the sizer searches numerically for the largest
// lot whose incremental margin fits the risk budget.
package sizing

import "math"

// marginTier is one tranche of the broker's tiered margin schedule: notional
// up to limit is margined at the tier's leverage.
type marginTier struct {
	limit    float64
	leverage float64
}

// marginTiers is the broker's tiered margin schedule. Each tranche of
// notional is divided by its tier leverage; leverage decreases as the
// aggregate position grows.
var marginTiers = []marginTier{
	{50_000, 200},
	{500_000, 100},
	{1_000_000, 50},
	{5_000_000, 20},
	{10_000_000, 10},
	{math.Inf(1), 1},
}

// TotalMargin returns the margin required to hold the given aggregate
// notional, summing each tranche divided by its tier leverage.
func TotalMargin(notional float64) float64 {
	if notional <= 0 {
		return 0
	}

	margin := 0.0
	prevLimit := 0.0
	for _, tier := range marginTiers {
		if notional <= prevLimit {
			break
		}
		tranche := math.Min(notional, tier.limit) - prevLimit
		margin += tranche / tier.leverage
		prevLimit = tier.limit
	}
	return margin
}

// IncrementalMargin returns the extra margin consumed by adding notional on
// top of an existing aggregate position.
func IncrementalMargin(aggregateBefore, added float64) float64 {
	if added <= 0 {
		return 0
	}
	if aggregateBefore < 0 {
		aggregateBefore = 0
	}
	return TotalMargin(aggregateBefore+added) - TotalMargin(aggregateBefore)
}
