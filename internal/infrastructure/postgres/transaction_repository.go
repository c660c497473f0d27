package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"roundup/internal/domain/roundup"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, connection_id, config_id, amount, roundup_amount,
       transaction_date, description, category, status, donation_id, failure_reason, created_at, updated_at`

// Insert records a round-up transaction. The provider transaction id is the
// primary key; ON CONFLICT DO NOTHING makes webhook re-delivery a no-op and
// the returned bool tells the caller whether the counters should move.
func (r *TransactionRepository) Insert(ctx context.Context, params roundup.CreateTransactionParams) (bool, error) {
	query := `
		INSERT INTO roundup_transactions (id, user_id, connection_id, config_id, amount, roundup_amount,
		                                  transaction_date, description, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'processed')
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(
		ctx, query,
		params.ID, params.UserID, params.ConnectionID, params.ConfigID, params.Amount,
		params.RoundUpAmount, params.TransactionDate, params.Description, params.Category,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert result: %w", err)
	}
	return n > 0, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*roundup.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM roundup_transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) ListUnsettledByConfigID(ctx context.Context, configID string) ([]*roundup.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM roundup_transactions
		WHERE config_id = $1 AND status = 'processed' AND donation_id IS NULL
		ORDER BY transaction_date, created_at
	`
	return r.list(ctx, query, configID)
}

func (r *TransactionRepository) ListByDonationID(ctx context.Context, donationID string) ([]*roundup.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM roundup_transactions
		WHERE donation_id = $1
		ORDER BY transaction_date, created_at
	`
	return r.list(ctx, query, donationID)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*roundup.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*roundup.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func scanTransaction(s scanner) (*roundup.Transaction, error) {
	var tx roundup.Transaction
	var category, donationID, failureReason sql.NullString

	err := s.Scan(
		&tx.ID, &tx.UserID, &tx.ConnectionID, &tx.ConfigID, &tx.Amount, &tx.RoundUpAmount,
		&tx.TransactionDate, &tx.Description, &category, &tx.Status, &donationID, &failureReason,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if category.Valid {
		tx.Category = &category.String
	}
	if donationID.Valid {
		tx.DonationID = &donationID.String
	}
	if failureReason.Valid {
		tx.FailureReason = &failureReason.String
	}
	return &tx, nil
}
