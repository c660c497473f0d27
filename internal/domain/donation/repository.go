package donation

import (
	"context"
	"time"
)

// Repository persists donations. Each mutating method is one database
// transaction spanning the donation, its round-up transactions and the
// owning config, so a crash between steps can never leave half a settlement
// visible.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Donation, error)
	GetByChargeID(ctx context.Context, chargeID string) (*Donation, error)

	// GetOpenByConfigAndPeriod returns the pending or processing donation
	// occupying the config's settlement slot for a period, if any.
	GetOpenByConfigAndPeriod(ctx context.Context, configID, period string) (*Donation, error)

	// CreateSettlement inserts a pending donation and moves the listed
	// round-up transactions to processing under it. Returns false when
	// another settlement already holds the (config, period) slot.
	CreateSettlement(ctx context.Context, d *Donation, transactionIDs []string) (bool, error)

	// MarkChargeRequested records the processor charge id, moves the donation
	// to processing, deducts the base from the config's month total (floored
	// at zero) and stamps the config's last donation time.
	MarkChargeRequested(ctx context.Context, donationID, chargeID string) error

	// MarkChargeRequestFailed fails the donation and releases its round-up
	// transactions back to the unsettled pool. The config's counters are
	// untouched because nothing was deducted yet.
	MarkChargeRequestFailed(ctx context.Context, donationID, reason string) error

	// MarkCompleted finishes the donation and moves its transactions to
	// donated.
	MarkCompleted(ctx context.Context, donationID string) error

	// MarkConfirmationFailed fails a processing donation after the processor
	// rejected the charge: transactions return to the unsettled pool and the
	// deducted base is restored to the config's month total.
	MarkConfirmationFailed(ctx context.Context, donationID, reason string) error

	// ListOrphanedPending returns pending donations older than the cutoff,
	// left behind by a crash between settlement creation and the charge
	// request.
	ListOrphanedPending(ctx context.Context, olderThan time.Time) ([]*Donation, error)

	ListByUserID(ctx context.Context, userID int64, limit int) ([]*Donation, error)
}
