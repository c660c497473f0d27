package donation

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("donation not found")
	ErrNothingToSettle = errors.New("no unsettled round-ups to donate")
	ErrConfigDisabled  = errors.New("round-up config is disabled")
)

// Status is the settlement state of a donation.
type Status string

const (
	// StatusPending: donation row exists, charge not yet requested.
	StatusPending Status = "pending"
	// StatusProcessing: charge requested, confirmation outstanding.
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Open reports whether the donation still occupies its (config, period)
// settlement slot.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusProcessing
}

// Donation is one settlement of accumulated round-ups against a payment
// method. At most one open donation exists per config and period; the
// storage layer enforces this with a partial unique index.
type Donation struct {
	ID               string    `json:"id"`
	ConfigID         string    `json:"configId"`
	UserID           int64     `json:"userId"`
	OrganizationID   string    `json:"organizationId"`
	CauseID          string    `json:"causeId"`
	PaymentMethodID  string    `json:"paymentMethodId"`
	Period           string    `json:"period"` // UTC month, "2006-01"
	BaseAmount       float64   `json:"baseAmount"`
	FeeAmount        float64   `json:"feeAmount"`
	TotalCharged     float64   `json:"totalCharged"`
	NetAmount        float64   `json:"netAmount"`
	CoverFees        bool      `json:"coverFees"`
	TransactionCount int       `json:"transactionCount"`
	Status           Status    `json:"status"`
	ChargeID         *string   `json:"chargeId,omitempty"`
	FailureReason    *string   `json:"failureReason,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PeriodOf returns the settlement period for a point in time. Periods are
// calendar months in UTC so the boundary does not move with server or user
// timezones.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
