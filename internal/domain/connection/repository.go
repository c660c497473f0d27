package connection

import (
	"context"
	"time"
)

// Repository persists bank connections. Upsert keys on
// (user_id, provider_account_id) so re-linking the same account refreshes the
// existing row instead of creating a duplicate.
type Repository interface {
	Upsert(ctx context.Context, params CreateParams) (*Connection, error)
	GetByID(ctx context.Context, id string) (*Connection, error)
	GetByProviderItemID(ctx context.Context, provider, itemID string) (*Connection, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)
	SetStatus(ctx context.Context, id string, status Status, reason *string) error
	UpdateSyncState(ctx context.Context, id string, cursor string, syncedAt time.Time) error
}
