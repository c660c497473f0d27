package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"roundup/internal/domain/notification"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// UpsertDeviceToken registers a token, reassigning it if another user had it.
func (r *NotificationRepository) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (id, user_id, token, device_type, is_active, last_used)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE, CURRENT_TIMESTAMP)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_type = EXCLUDED.device_type,
			is_active = TRUE,
			last_used = CURRENT_TIMESTAMP
		RETURNING id, user_id, token, device_type, is_active, created_at, last_used
	`

	var token notification.DeviceToken
	err := r.db.QueryRowContext(ctx, query, params.UserID, params.Token, params.DeviceType).Scan(
		&token.ID, &token.UserID, &token.Token, &token.DeviceType,
		&token.IsActive, &token.CreatedAt, &token.LastUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device token: %w", err)
	}
	return &token, nil
}

func (r *NotificationRepository) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, device_type, is_active, created_at, last_used
		FROM device_tokens
		WHERE user_id = $1 AND is_active = TRUE
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*notification.DeviceToken
	for rows.Next() {
		var token notification.DeviceToken
		if err := rows.Scan(
			&token.ID, &token.UserID, &token.Token, &token.DeviceType,
			&token.IsActive, &token.CreatedAt, &token.LastUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, &token)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}
	return tokens, nil
}

func (r *NotificationRepository) DeactivateToken(ctx context.Context, token string) error {
	query := `UPDATE device_tokens SET is_active = FALSE WHERE token = $1`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to deactivate device token: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetPreferences(ctx context.Context, userID int64) (*notification.NotificationPreference, error) {
	query := `
		SELECT id, user_id, connections_enabled, donations_enabled, general_enabled, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`

	var prefs notification.NotificationPreference
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.ID, &prefs.UserID, &prefs.ConnectionsEnabled, &prefs.DonationsEnabled,
		&prefs.GeneralEnabled, &prefs.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, notification.ErrPreferencesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

func (r *NotificationRepository) UpsertPreferences(ctx context.Context, userID int64, params notification.UpdatePreferenceParams) (*notification.NotificationPreference, error) {
	query := `
		INSERT INTO notification_preferences (id, user_id, connections_enabled, donations_enabled, general_enabled)
		VALUES (gen_random_uuid(), $1, COALESCE($2, TRUE), COALESCE($3, TRUE), COALESCE($4, TRUE))
		ON CONFLICT (user_id) DO UPDATE SET
			connections_enabled = COALESCE($2, notification_preferences.connections_enabled),
			donations_enabled = COALESCE($3, notification_preferences.donations_enabled),
			general_enabled = COALESCE($4, notification_preferences.general_enabled),
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, user_id, connections_enabled, donations_enabled, general_enabled, updated_at
	`

	var prefs notification.NotificationPreference
	err := r.db.QueryRowContext(
		ctx, query,
		userID, params.ConnectionsEnabled, params.DonationsEnabled, params.GeneralEnabled,
	).Scan(
		&prefs.ID, &prefs.UserID, &prefs.ConnectionsEnabled, &prefs.DonationsEnabled,
		&prefs.GeneralEnabled, &prefs.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return &prefs, nil
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (id, user_id, title, message, category, data)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, user_id, title, message, category, data, opened_at, created_at
	`

	row := r.db.QueryRowContext(ctx, query, params.UserID, params.Title, params.Message, params.Category, data)
	n, err := scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM notifications WHERE user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT id, user_id, title, message, category, data, opened_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, total, nil
}

func (r *NotificationRepository) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	query := `
		UPDATE notifications
		SET opened_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2 AND opened_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification opened: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return notification.ErrNotificationNotFound
	}
	return nil
}

func scanNotification(s scanner) (*notification.Notification, error) {
	var n notification.Notification
	var data []byte
	var openedAt sql.NullTime

	err := s.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &data, &openedAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	if openedAt.Valid {
		n.OpenedAt = &openedAt.Time
	}
	return &n, nil
}
