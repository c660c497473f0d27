package roundup

import (
	"context"
	"time"
)

// ConfigRepository persists round-up configs. Implementations must serialize
// counter mutations per config (Accumulate, RestoreMonthTotal and the
// settlement-side deductions are transactional read-modify-writes) and must
// enforce the single-active-config-per-connection invariant at the storage
// layer.
type ConfigRepository interface {
	Create(ctx context.Context, params CreateConfigParams) (*Config, error)
	GetByID(ctx context.Context, id string) (*Config, error)
	GetActiveByConnectionID(ctx context.Context, connectionID string) (*Config, error)
	ListEnabled(ctx context.Context) ([]*Config, error)

	// Accumulate atomically adds amount to both counters and returns the
	// updated config. It fails with ErrInvalidState if the config is disabled.
	Accumulate(ctx context.Context, id string, amount float64) (*Config, error)

	// RestoreMonthTotal atomically adds amount back to currentMonthTotal,
	// used when an asynchronous charge confirmation fails.
	RestoreMonthTotal(ctx context.Context, id string, amount float64) error

	SetStatus(ctx context.Context, id string, status ConfigStatus, reason *string) error
	SetDestination(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error

	// CancelByConnectionID disables and cancels every active config for a
	// connection, preserving accumulated totals. Returns the number affected.
	CancelByConnectionID(ctx context.Context, connectionID, reason string) (int, error)

	// ResetMonthTotals zeroes currentMonthTotal on every enabled config.
	// The reset is a reporting boundary: unsettled transactions stay eligible.
	ResetMonthTotals(ctx context.Context) (int, error)
}

// TransactionRepository persists round-up transactions. The provider
// transaction id is the primary key; Insert must be a no-op on conflict so
// concurrent re-deliveries of the same event cannot create duplicates.
type TransactionRepository interface {
	// Insert records a transaction, returning false if the provider
	// transaction id already exists.
	Insert(ctx context.Context, params CreateTransactionParams) (bool, error)
	GetByID(ctx context.Context, id string) (*Transaction, error)

	// ListUnsettledByConfigID returns transactions with status processed and
	// no assigned donation, oldest first.
	ListUnsettledByConfigID(ctx context.Context, configID string) ([]*Transaction, error)
	ListByDonationID(ctx context.Context, donationID string) ([]*Transaction, error)
}
