package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"roundup/internal/domain/donation"
)

type DonationRepository struct {
	db *DB
}

func NewDonationRepository(db *DB) *DonationRepository {
	return &DonationRepository{db: db}
}

const donationColumns = `id, config_id, user_id, organization_id, cause_id, payment_method_id, period,
       base_amount, fee_amount, total_charged, net_amount, cover_fees, transaction_count,
       status, charge_id, failure_reason, created_at, updated_at`

func (r *DonationRepository) GetByID(ctx context.Context, id string) (*donation.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`

	d, err := scanDonation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return d, nil
}

func (r *DonationRepository) GetByChargeID(ctx context.Context, chargeID string) (*donation.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE charge_id = $1`

	d, err := scanDonation(r.db.QueryRowContext(ctx, query, chargeID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation by charge: %w", err)
	}
	return d, nil
}

func (r *DonationRepository) GetOpenByConfigAndPeriod(ctx context.Context, configID, period string) (*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE config_id = $1 AND period = $2 AND status IN ('pending', 'processing')
	`

	d, err := scanDonation(r.db.QueryRowContext(ctx, query, configID, period))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open donation: %w", err)
	}
	return d, nil
}

// CreateSettlement atomically inserts the pending donation and claims its
// round-up transactions. A partial unique index on (config_id, period) over
// open donations turns a concurrent double-trigger into a clean loss here
// instead of a double charge downstream.
func (r *DonationRepository) CreateSettlement(ctx context.Context, d *donation.Donation, transactionIDs []string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO donations (id, config_id, user_id, organization_id, cause_id, payment_method_id,
		                       period, base_amount, fee_amount, total_charged, net_amount, cover_fees,
		                       transaction_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending')
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(
		ctx, insert,
		d.ID, d.ConfigID, d.UserID, d.OrganizationID, d.CauseID, d.PaymentMethodID,
		d.Period, d.BaseAmount, d.FeeAmount, d.TotalCharged, d.NetAmount, d.CoverFees,
		d.TransactionCount,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil // Slot already taken
		}
		return false, fmt.Errorf("failed to insert donation: %w", err)
	}

	claim := `
		UPDATE roundup_transactions
		SET status = 'processing', donation_id = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ANY($2) AND status = 'processed' AND donation_id IS NULL
	`
	result, err := tx.ExecContext(ctx, claim, d.ID, pq.Array(transactionIDs))
	if err != nil {
		return false, fmt.Errorf("failed to claim transactions: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count claimed transactions: %w", err)
	}
	if int(claimed) != len(transactionIDs) {
		return false, fmt.Errorf("claimed %d of %d transactions for donation %s", claimed, len(transactionIDs), d.ID)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	d.Status = donation.StatusPending
	return true, nil
}

// MarkChargeRequested moves the donation to processing and, in the same
// transaction, deducts the base from the config's month total (floored at
// zero) and stamps last_donation_at.
func (r *DonationRepository) MarkChargeRequested(ctx context.Context, donationID, chargeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE donations
		SET status = 'processing', charge_id = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'pending'
		RETURNING config_id, base_amount
	`
	var configID string
	var base float64
	if err := tx.QueryRowContext(ctx, update, chargeID, donationID).Scan(&configID, &base); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("donation %s is not pending", donationID)
		}
		return fmt.Errorf("failed to mark charge requested: %w", err)
	}

	deduct := `
		UPDATE roundup_configs
		SET current_month_total = GREATEST(ROUND((current_month_total - $1)::numeric, 2), 0),
		    status = 'processing',
		    last_donation_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, deduct, base, configID); err != nil {
		return fmt.Errorf("failed to deduct month total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge request: %w", err)
	}
	return nil
}

// MarkChargeRequestFailed unwinds a settlement whose charge was never
// accepted: the donation fails and its transactions return to the unsettled
// pool. Nothing was deducted, so the config counters stay put. Idempotent:
// a donation no longer pending is left alone.
func (r *DonationRepository) MarkChargeRequestFailed(ctx context.Context, donationID, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE donations
		SET status = 'failed', failure_reason = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'pending'
		RETURNING config_id
	`
	var configID string
	if err := tx.QueryRowContext(ctx, update, reason, donationID).Scan(&configID); err != nil {
		if err == sql.ErrNoRows {
			return nil // Already resolved
		}
		return fmt.Errorf("failed to fail donation: %w", err)
	}

	if err := releaseTransactions(ctx, tx, donationID); err != nil {
		return err
	}

	configUpdate := `
		UPDATE roundup_configs
		SET status = 'failed', status_reason = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, configUpdate, reason, configID); err != nil {
		return fmt.Errorf("failed to update config status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit charge failure: %w", err)
	}
	return nil
}

// MarkCompleted finishes a donation: transactions become donated and the
// config returns to a completed resting state. Idempotent for webhook
// replays.
func (r *DonationRepository) MarkCompleted(ctx context.Context, donationID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE donations
		SET status = 'completed', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING config_id
	`
	var configID string
	if err := tx.QueryRowContext(ctx, update, donationID).Scan(&configID); err != nil {
		if err == sql.ErrNoRows {
			return nil // Already resolved
		}
		return fmt.Errorf("failed to complete donation: %w", err)
	}

	txUpdate := `
		UPDATE roundup_transactions
		SET status = 'donated', updated_at = CURRENT_TIMESTAMP
		WHERE donation_id = $1
	`
	if _, err := tx.ExecContext(ctx, txUpdate, donationID); err != nil {
		return fmt.Errorf("failed to mark transactions donated: %w", err)
	}

	configUpdate := `
		UPDATE roundup_configs
		SET status = 'completed', status_reason = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, configUpdate, configID); err != nil {
		return fmt.Errorf("failed to update config status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}

// MarkConfirmationFailed unwinds a donation whose charge was rejected after
// being requested: transactions return to the pool and the deducted base is
// restored to the config's month total.
func (r *DonationRepository) MarkConfirmationFailed(ctx context.Context, donationID, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE donations
		SET status = 'failed', failure_reason = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'processing'
		RETURNING config_id, base_amount
	`
	var configID string
	var base float64
	if err := tx.QueryRowContext(ctx, update, reason, donationID).Scan(&configID, &base); err != nil {
		if err == sql.ErrNoRows {
			return nil // Already resolved
		}
		return fmt.Errorf("failed to fail donation: %w", err)
	}

	if err := releaseTransactions(ctx, tx, donationID); err != nil {
		return err
	}

	restore := `
		UPDATE roundup_configs
		SET current_month_total = ROUND((current_month_total + $1)::numeric, 2),
		    status = 'failed',
		    status_reason = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, restore, base, reason, configID); err != nil {
		return fmt.Errorf("failed to restore month total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation failure: %w", err)
	}
	return nil
}

func (r *DonationRepository) ListOrphanedPending(ctx context.Context, olderThan time.Time) ([]*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`
	return r.list(ctx, query, olderThan)
}

func (r *DonationRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*donation.Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

func (r *DonationRepository) list(ctx context.Context, query string, args ...any) ([]*donation.Donation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	var donations []*donation.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		donations = append(donations, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donations: %w", err)
	}
	return donations, nil
}

func releaseTransactions(ctx context.Context, tx *sql.Tx, donationID string) error {
	release := `
		UPDATE roundup_transactions
		SET status = 'processed', donation_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE donation_id = $1 AND status = 'processing'
	`
	if _, err := tx.ExecContext(ctx, release, donationID); err != nil {
		return fmt.Errorf("failed to release transactions: %w", err)
	}
	return nil
}

func scanDonation(s scanner) (*donation.Donation, error) {
	var d donation.Donation
	var chargeID, failureReason sql.NullString

	err := s.Scan(
		&d.ID, &d.ConfigID, &d.UserID, &d.OrganizationID, &d.CauseID, &d.PaymentMethodID, &d.Period,
		&d.BaseAmount, &d.FeeAmount, &d.TotalCharged, &d.NetAmount, &d.CoverFees, &d.TransactionCount,
		&d.Status, &chargeID, &failureReason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if chargeID.Valid {
		d.ChargeID = &chargeID.String
	}
	if failureReason.Valid {
		d.FailureReason = &failureReason.String
	}
	return &d, nil
}
