package ingest

import (
	"fmt"
	"strings"
	"time"

	"roundup/internal/infrastructure/bankdata"
)

// NormalizedTransaction is a provider transaction flattened into the shape
// the eligibility rules and the ledger consume. Amounts are positive for
// debits and negative for credits, matching the provider convention.
type NormalizedTransaction struct {
	ID          string
	Amount      float64
	Currency    string
	Date        time.Time
	Description string
	Category    *string
	Type        string // uppercased provider type, e.g. "DEBIT"
	Credit      bool
	Pending     bool
}

// Normalize converts a raw provider transaction. Provider payloads carry
// amounts and dates as strings; a parse failure rejects the single
// transaction rather than the whole batch.
func Normalize(tx bankdata.Transaction) (*NormalizedTransaction, error) {
	amount, err := tx.GetAmount()
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}

	date, err := tx.GetDate()
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if date == nil {
		return nil, fmt.Errorf("transaction %s has no date", tx.ID)
	}

	description := tx.MerchantName
	if description == "" {
		description = tx.Description
	}

	var category *string
	if len(tx.Categories) > 0 {
		c := strings.ToLower(tx.Categories[0])
		category = &c
	}

	return &NormalizedTransaction{
		ID:          tx.ID,
		Amount:      amount,
		Currency:    tx.CurrencyCode,
		Date:        *date,
		Description: description,
		Category:    category,
		Type:        strings.ToUpper(tx.Type),
		Credit:      strings.EqualFold(tx.Type, "CREDIT") || amount < 0,
		Pending:     strings.EqualFold(tx.Status, "PENDING"),
	}, nil
}
