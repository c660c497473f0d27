package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roundup/internal/domain/connection"
)

type ConnectionRepository struct {
	db *DB
}

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, provider, provider_item_id, provider_account_id, account_name,
       account_mask, access_token, sync_cursor, status, status_reason, last_synced_at, created_at, updated_at`

func (r *ConnectionRepository) Upsert(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	query := `
		INSERT INTO bank_connections (id, user_id, provider, provider_item_id, provider_account_id,
		                              account_name, account_mask, access_token, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, 'active')
		ON CONFLICT (user_id, provider_account_id) DO UPDATE SET
			provider_item_id = EXCLUDED.provider_item_id,
			account_name = EXCLUDED.account_name,
			account_mask = EXCLUDED.account_mask,
			access_token = EXCLUDED.access_token,
			status = 'active',
			status_reason = NULL,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + connectionColumns

	row := r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.Provider, params.ProviderItemID, params.ProviderAccountID,
		params.AccountName, params.AccountMask, params.AccessToken,
	)

	conn, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) GetByProviderItemID(ctx context.Context, provider, itemID string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE provider = $1 AND provider_item_id = $2`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, provider, itemID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection by item: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*connection.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return connections, nil
}

func (r *ConnectionRepository) SetStatus(ctx context.Context, id string, status connection.Status, reason *string) error {
	query := `
		UPDATE bank_connections
		SET status = $1, status_reason = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("failed to set connection status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return connection.ErrNotFound
	}
	return nil
}

func (r *ConnectionRepository) UpdateSyncState(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	query := `
		UPDATE bank_connections
		SET sync_cursor = $1, last_synced_at = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, cursor, syncedAt, id); err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(s scanner) (*connection.Connection, error) {
	var conn connection.Connection
	var syncCursor, statusReason, accountMask sql.NullString
	var lastSyncedAt sql.NullTime

	err := s.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &conn.ProviderItemID, &conn.ProviderAccountID,
		&conn.AccountName, &accountMask, &conn.AccessToken, &syncCursor,
		&conn.Status, &statusReason, &lastSyncedAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.AccountMask = accountMask.String
	if syncCursor.Valid {
		conn.SyncCursor = &syncCursor.String
	}
	if statusReason.Valid {
		conn.StatusReason = &statusReason.String
	}
	if lastSyncedAt.Valid {
		conn.LastSyncedAt = &lastSyncedAt.Time
	}
	return &conn, nil
}
