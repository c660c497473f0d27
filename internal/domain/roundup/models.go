package roundup

import (
	"errors"
	"time"
)

var (
	ErrConfigNotFound     = errors.New("round-up config not found")
	ErrTransactionMissing = errors.New("round-up transaction not found")
	ErrInvalidState       = errors.New("round-up config is not in a permissible state")
	ErrConnectionInactive = errors.New("bank connection is not active")
	ErrThresholdTooLow    = errors.New("monthly threshold below minimum")
	ErrConfigExists       = errors.New("an active round-up config already exists for this connection")
)

// ConfigStatus tracks the settlement lifecycle of a config.
type ConfigStatus string

const (
	ConfigStatusPending    ConfigStatus = "pending"
	ConfigStatusProcessing ConfigStatus = "processing"
	ConfigStatusCompleted  ConfigStatus = "completed"
	ConfigStatusFailed     ConfigStatus = "failed"
	ConfigStatusCancelled  ConfigStatus = "cancelled"
)

// TransactionStatus tracks a round-up transaction through settlement.
type TransactionStatus string

const (
	TransactionStatusProcessed  TransactionStatus = "processed"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusDonated    TransactionStatus = "donated"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Config is the per-connection round-up aggregate. It exclusively owns the
// accumulation counters; all mutations go through one transactional
// read-modify-write path in the repository.
type Config struct {
	ID                string       `json:"id"`
	UserID            int64        `json:"userId"`
	ConnectionID      string       `json:"connectionId"`
	OrganizationID    string       `json:"organizationId"`
	CauseID           string       `json:"causeId"`
	PaymentMethodID   string       `json:"paymentMethodId"`
	MonthlyThreshold  *float64     `json:"monthlyThreshold,omitempty"` // nil = no limit
	CoverFees         bool         `json:"coverFees"`
	CurrentMonthTotal float64      `json:"currentMonthTotal"`
	TotalAccumulated  float64      `json:"totalAccumulated"`
	Enabled           bool         `json:"enabled"`
	Status            ConfigStatus `json:"status"`
	StatusReason      *string      `json:"statusReason,omitempty"`
	LastCharitySwitch *time.Time   `json:"lastCharitySwitch,omitempty"`
	LastDonationAt    *time.Time   `json:"lastDonationAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// ThresholdReached reports whether the accumulated month total has crossed a
// numeric threshold. A nil threshold never triggers.
func (c *Config) ThresholdReached() bool {
	return c.MonthlyThreshold != nil && c.CurrentMonthTotal >= *c.MonthlyThreshold
}

// Transaction is one externally-reported purchase accepted into the pipeline.
// Its primary key is the provider transaction id, which makes re-delivery of
// the same provider event a storage-level no-op.
type Transaction struct {
	ID              string            `json:"id"` // provider transaction id
	UserID          int64             `json:"userId"`
	ConnectionID    string            `json:"connectionId"`
	ConfigID        string            `json:"configId"`
	Amount          float64           `json:"amount"`
	RoundUpAmount   float64           `json:"roundUpAmount"`
	TransactionDate time.Time         `json:"transactionDate"`
	Description     string            `json:"description"`
	Category        *string           `json:"category,omitempty"`
	Status          TransactionStatus `json:"status"`
	DonationID      *string           `json:"donationId,omitempty"`
	FailureReason   *string           `json:"failureReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// CreateConfigParams contains the parameters for creating a round-up config.
type CreateConfigParams struct {
	UserID           int64
	ConnectionID     string
	OrganizationID   string
	CauseID          string
	PaymentMethodID  string
	MonthlyThreshold *float64 // nil = no limit
	CoverFees        bool
}

// CreateTransactionParams contains the parameters for recording an accepted
// round-up transaction.
type CreateTransactionParams struct {
	ID              string // provider transaction id
	UserID          int64
	ConnectionID    string
	ConfigID        string
	Amount          float64
	RoundUpAmount   float64
	TransactionDate time.Time
	Description     string
	Category        *string
}

// ApplyResult reports the outcome of applying one transaction to the ledger.
type ApplyResult struct {
	Created          bool    // false when the provider transaction id was already recorded
	ThresholdReached bool    // settlement should be triggered
	MonthTotal       float64 // currentMonthTotal after the apply
}
