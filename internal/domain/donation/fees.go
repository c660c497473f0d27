package donation

import "roundup/internal/domain/roundup"

// Processing fee schedule: a percentage of the base plus a fixed per-charge
// amount. No tax is applied on the fee.
const (
	FeePercent = 0.029
	FeeFixed   = 0.30
)

// Breakdown is the money split for one donation charge.
type Breakdown struct {
	BaseAmount   float64 // accumulated round-ups being settled
	FeeAmount    float64
	TotalCharged float64 // what the payment method is charged
	NetAmount    float64 // what the organization receives
}

// ComputeBreakdown splits a base amount under the fee schedule. With
// coverFees the donor absorbs the fee on top of the base and the
// organization receives the full base; without it the fee comes out of the
// base. Every figure is rounded to cents independently so the parts always
// reconcile: TotalCharged = NetAmount + FeeAmount in both modes.
func ComputeBreakdown(base float64, coverFees bool) Breakdown {
	base = roundup.RoundCents(base)
	fee := roundup.RoundCents(base*FeePercent + FeeFixed)

	if coverFees {
		return Breakdown{
			BaseAmount:   base,
			FeeAmount:    fee,
			TotalCharged: roundup.RoundCents(base + fee),
			NetAmount:    base,
		}
	}
	return Breakdown{
		BaseAmount:   base,
		FeeAmount:    fee,
		TotalCharged: base,
		NetAmount:    roundup.RoundCents(base - fee),
	}
}
