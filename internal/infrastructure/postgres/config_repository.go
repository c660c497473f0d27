package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"roundup/internal/domain/roundup"
)

type ConfigRepository struct {
	db *DB
}

func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

const configColumns = `id, user_id, connection_id, organization_id, cause_id, payment_method_id,
       monthly_threshold, cover_fees, current_month_total, total_accumulated, enabled,
       status, status_reason, last_charity_switch, last_donation_at, created_at, updated_at`

func (r *ConfigRepository) Create(ctx context.Context, params roundup.CreateConfigParams) (*roundup.Config, error) {
	query := `
		INSERT INTO roundup_configs (id, user_id, connection_id, organization_id, cause_id,
		                             payment_method_id, monthly_threshold, cover_fees, enabled, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, TRUE, 'pending')
		RETURNING ` + configColumns

	row := r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.ConnectionID, params.OrganizationID, params.CauseID,
		params.PaymentMethodID, params.MonthlyThreshold, params.CoverFees,
	)

	cfg, err := scanConfig(row)
	if err != nil {
		// Partial unique index on (connection_id) WHERE enabled guards the
		// one-active-config-per-connection invariant.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, roundup.ErrConfigExists
		}
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) GetByID(ctx context.Context, id string) (*roundup.Config, error) {
	query := `SELECT ` + configColumns + ` FROM roundup_configs WHERE id = $1`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) GetActiveByConnectionID(ctx context.Context, connectionID string) (*roundup.Config, error) {
	query := `SELECT ` + configColumns + ` FROM roundup_configs WHERE connection_id = $1 AND enabled = TRUE`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, connectionID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) ListEnabled(ctx context.Context) ([]*roundup.Config, error) {
	query := `SELECT ` + configColumns + ` FROM roundup_configs WHERE enabled = TRUE ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled configs: %w", err)
	}
	defer rows.Close()

	var configs []*roundup.Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating configs: %w", err)
	}
	return configs, nil
}

// Accumulate adds the round-up to both counters in one statement. The
// enabled guard means a config cancelled between the caller's read and this
// write loses the race cleanly instead of accumulating into a dead config.
func (r *ConfigRepository) Accumulate(ctx context.Context, id string, amount float64) (*roundup.Config, error) {
	query := `
		UPDATE roundup_configs
		SET current_month_total = ROUND((current_month_total + $1)::numeric, 2),
		    total_accumulated = ROUND((total_accumulated + $1)::numeric, 2),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND enabled = TRUE
		RETURNING ` + configColumns

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, amount, id))
	if err == sql.ErrNoRows {
		return nil, roundup.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accumulate round-up: %w", err)
	}
	return cfg, nil
}

func (r *ConfigRepository) RestoreMonthTotal(ctx context.Context, id string, amount float64) error {
	query := `
		UPDATE roundup_configs
		SET current_month_total = ROUND((current_month_total + $1)::numeric, 2),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, amount, id); err != nil {
		return fmt.Errorf("failed to restore month total: %w", err)
	}
	return nil
}

func (r *ConfigRepository) SetStatus(ctx context.Context, id string, status roundup.ConfigStatus, reason *string) error {
	query := `
		UPDATE roundup_configs
		SET status = $1, status_reason = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("failed to set config status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return roundup.ErrConfigNotFound
	}
	return nil
}

func (r *ConfigRepository) SetDestination(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
	query := `
		UPDATE roundup_configs
		SET organization_id = $1, cause_id = $2, last_charity_switch = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, organizationID, causeID, switchedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set destination: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return roundup.ErrConfigNotFound
	}
	return nil
}

func (r *ConfigRepository) CancelByConnectionID(ctx context.Context, connectionID, reason string) (int, error) {
	query := `
		UPDATE roundup_configs
		SET enabled = FALSE, status = 'cancelled', status_reason = $1, updated_at = CURRENT_TIMESTAMP
		WHERE connection_id = $2 AND enabled = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, reason, connectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel configs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled configs: %w", err)
	}
	return int(n), nil
}

func (r *ConfigRepository) ResetMonthTotals(ctx context.Context) (int, error) {
	query := `
		UPDATE roundup_configs
		SET current_month_total = 0, updated_at = CURRENT_TIMESTAMP
		WHERE enabled = TRUE AND current_month_total <> 0
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset month totals: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset configs: %w", err)
	}
	return int(n), nil
}

func scanConfig(s scanner) (*roundup.Config, error) {
	var cfg roundup.Config
	var monthlyThreshold sql.NullFloat64
	var statusReason sql.NullString
	var lastCharitySwitch, lastDonationAt sql.NullTime

	err := s.Scan(
		&cfg.ID, &cfg.UserID, &cfg.ConnectionID, &cfg.OrganizationID, &cfg.CauseID, &cfg.PaymentMethodID,
		&monthlyThreshold, &cfg.CoverFees, &cfg.CurrentMonthTotal, &cfg.TotalAccumulated, &cfg.Enabled,
		&cfg.Status, &statusReason, &lastCharitySwitch, &lastDonationAt, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if monthlyThreshold.Valid {
		cfg.MonthlyThreshold = &monthlyThreshold.Float64
	}
	if statusReason.Valid {
		cfg.StatusReason = &statusReason.String
	}
	if lastCharitySwitch.Valid {
		cfg.LastCharitySwitch = &lastCharitySwitch.Time
	}
	if lastDonationAt.Valid {
		cfg.LastDonationAt = &lastDonationAt.Time
	}
	return &cfg, nil
}
