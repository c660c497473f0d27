package roundup

import "math"

// Calculate returns the round-up for a purchase amount: the difference between
// the absolute amount and the next whole currency unit, at 2-decimal
// precision. An amount already at a whole unit yields 0, which callers treat
// as ineligible. This is the single source of truth for rounding semantics;
// ingestion and backfill both go through it.
func Calculate(amount float64) float64 {
	cents := int64(math.Round(math.Abs(amount) * 100))
	remainder := (100 - cents%100) % 100
	return float64(remainder) / 100
}

// RoundCents rounds a monetary amount to 2-decimal precision. Fee and
// accumulation math routes every intermediate result through it so that
// counters never drift below cent precision.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
