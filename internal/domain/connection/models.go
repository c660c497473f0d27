package connection

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("bank connection not found")
	ErrInactive          = errors.New("bank connection is not active")
	ErrInvalidTransition = errors.New("invalid connection status transition")
)

// Status is the consent state of a bank connection.
type Status string

const (
	StatusActive  Status = "active"
	StatusError   Status = "error"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Terminal reports whether a status can never transition again. Revoked and
// expired connections require a fresh consent flow, which creates a new
// connection row.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Connection is one user's consented link to a bank account at a data
// provider. AccessToken is stored encrypted and never leaves the service.
type Connection struct {
	ID                string     `json:"id"`
	UserID            int64      `json:"userId"`
	Provider          string     `json:"provider"`
	ProviderItemID    string     `json:"providerItemId"`
	ProviderAccountID string     `json:"providerAccountId"`
	AccountName       string     `json:"accountName"`
	AccountMask       string     `json:"accountMask,omitempty"`
	AccessToken       string     `json:"-"`
	SyncCursor        *string    `json:"-"`
	Status            Status     `json:"status"`
	StatusReason      *string    `json:"statusReason,omitempty"`
	LastSyncedAt      *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Active reports whether the connection may feed transactions into the
// pipeline.
func (c *Connection) Active() bool {
	return c.Status == StatusActive
}

// EventType classifies provider webhook events.
type EventType string

const (
	EventTransactionsUpdated   EventType = "transactions.updated"
	EventConnectionInvalidated EventType = "connection.invalidated"
	EventConsentRevoked        EventType = "consent.revoked"
	EventConsentExpired        EventType = "consent.expired"
	EventAccountUpdated        EventType = "account.updated"
	EventUserDeleted           EventType = "user.deleted"
	EventConnectionError       EventType = "connection.error"
)

// Event is a normalized provider webhook event. Provider-specific payload
// shapes are flattened into this before any business logic runs.
type Event struct {
	Type          EventType `json:"type"`
	Provider      string    `json:"provider"`
	ItemID        string    `json:"itemId"`
	AccountID     string    `json:"accountId,omitempty"`
	AccountStatus string    `json:"accountStatus,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
}

// CreateParams contains the parameters for linking a bank connection.
type CreateParams struct {
	UserID            int64
	Provider          string
	ProviderItemID    string
	ProviderAccountID string
	AccountName       string
	AccountMask       string
	AccessToken       string // already encrypted by the service
}
