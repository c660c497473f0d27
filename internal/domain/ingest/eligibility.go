package ingest

import "roundup/internal/domain/roundup"

// Categories that never produce a round-up. These are money movements rather
// than purchases: rounding them up would double-charge transfers, fees and
// repayments.
var excludedCategories = map[string]bool{
	"transfer":            true,
	"atm":                 true,
	"cash":                true,
	"cash advance":        true,
	"bank fees":           true,
	"fee":                 true,
	"loan payment":        true,
	"credit card payment": true,
	"refund":              true,
	"deposit":             true,
	"interest":            true,
	"dividend":            true,
}

// Transaction types that represent purchases. Anything else (transfers, ACH,
// wires) is money movement and never rounds up, whatever its category says.
var eligibleTypes = map[string]bool{
	"DEBIT":    true,
	"PURCHASE": true,
	"POS":      true,
}

// Rejection reasons, recorded in logs and ingest stats.
const (
	reasonPending          = "pending"
	reasonCredit           = "credit"
	reasonExcludedCategory = "excluded category"
	reasonIneligibleType   = "ineligible type"
	reasonWholeAmount      = "whole amount"
)

// Eligible applies the rejection rules in order and returns the round-up
// amount for an accepted transaction. Rules are ordered so the reported
// reason is deterministic: settlement state first, then direction, then
// category, then type, then the amount itself.
func Eligible(tx *NormalizedTransaction) (float64, string) {
	if tx.Pending {
		return 0, reasonPending
	}
	if tx.Credit {
		return 0, reasonCredit
	}
	if tx.Category != nil && excludedCategories[*tx.Category] {
		return 0, reasonExcludedCategory
	}
	if !eligibleTypes[tx.Type] {
		return 0, reasonIneligibleType
	}

	amount := roundup.Calculate(tx.Amount)
	if amount <= 0 {
		return 0, reasonWholeAmount
	}
	return amount, ""
}
