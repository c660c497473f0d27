package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	"roundup/internal/infrastructure/bankdata"
	"roundup/internal/infrastructure/crypto"
)

// ConfigCanceller tears down round-up configs when a connection dies.
// Satisfied by the round-up service.
type ConfigCanceller interface {
	CancelByConnection(ctx context.Context, connectionID, reason string) error
}

// Notifier delivers connection lifecycle notifications to the user.
type Notifier interface {
	NotifyConnectionRevoked(ctx context.Context, userID int64, accountName string)
	NotifyConnectionExpired(ctx context.Context, userID int64, accountName string)
	NotifyConnectionError(ctx context.Context, userID int64, accountName string)
}

// Service owns the bank connection lifecycle: linking, consent state
// transitions driven by provider webhooks, and the teardown of dependent
// round-up configs.
type Service struct {
	repo      Repository
	provider  bankdata.API
	encryptor *crypto.Encryptor
	configs   ConfigCanceller
	notifier  Notifier
}

// NewService creates a connection service.
func NewService(repo Repository, provider bankdata.API, encryptor *crypto.Encryptor, configs ConfigCanceller, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		encryptor: encryptor,
		configs:   configs,
		notifier:  notifier,
	}
}

// Link exchanges a short-lived public token for a long-lived access token,
// fetches the linked account metadata and stores the connection with the
// token encrypted at rest. Re-linking an already linked account updates the
// existing connection and resets it to active.
func (s *Service) Link(ctx context.Context, userID int64, provider, publicToken string) (*Connection, error) {
	accessToken, itemID, err := s.provider.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	accounts, err := s.provider.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("provider returned no accounts for item %s", itemID)
	}
	account := accounts[0]

	encrypted, err := s.encryptor.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	conn, err := s.repo.Upsert(ctx, CreateParams{
		UserID:            userID,
		Provider:          provider,
		ProviderItemID:    itemID,
		ProviderAccountID: account.ID,
		AccountName:       account.Name,
		AccountMask:       account.Mask,
		AccessToken:       encrypted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store connection: %w", err)
	}

	log.Printf("Linked bank connection %s for user %d (%s ...%s)", conn.ID, userID, account.Name, account.Mask)
	return conn, nil
}

// Get returns a connection by id.
func (s *Service) Get(ctx context.Context, id string) (*Connection, error) {
	conn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNotFound
	}
	return conn, nil
}

// GetByProviderItemID returns the connection for a provider item, or nil if
// the item was never linked.
func (s *Service) GetByProviderItemID(ctx context.Context, provider, itemID string) (*Connection, error) {
	return s.repo.GetByProviderItemID(ctx, provider, itemID)
}

// List returns all connections for a user.
func (s *Service) List(ctx context.Context, userID int64) ([]*Connection, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// IsActive reports whether a connection exists and is in the active state.
func (s *Service) IsActive(ctx context.Context, connectionID string) (bool, error) {
	conn, err := s.repo.GetByID(ctx, connectionID)
	if err != nil {
		return false, err
	}
	if conn == nil {
		return false, ErrNotFound
	}
	return conn.Active(), nil
}

// AccessToken decrypts and returns the provider access token for a
// connection. Callers are the sync paths only; the token never appears in
// API responses or logs.
func (s *Service) AccessToken(conn *Connection) (string, error) {
	token, err := s.encryptor.Decrypt(conn.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token for connection %s: %w", conn.ID, err)
	}
	return token, nil
}

// RecordSync advances the connection's transaction sync cursor after a page
// of provider transactions has been ingested.
func (s *Service) RecordSync(ctx context.Context, id, cursor string) error {
	if err := s.repo.UpdateSyncState(ctx, id, cursor, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update sync state for connection %s: %w", id, err)
	}
	return nil
}

// HandleEvent applies one normalized provider event to the connection it
// addresses. Unknown event types are logged and ignored so new provider
// events never fail webhook delivery. Events for connections already in a
// terminal state are ignored.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	conn, err := s.repo.GetByProviderItemID(ctx, event.Provider, event.ItemID)
	if err != nil {
		return fmt.Errorf("failed to look up connection for item %s: %w", event.ItemID, err)
	}
	if conn == nil {
		log.Printf("Webhook event %s for unknown item %s ignored", event.Type, event.ItemID)
		return nil
	}
	if conn.Status.Terminal() {
		log.Printf("Webhook event %s for %s connection %s ignored", event.Type, conn.Status, conn.ID)
		return nil
	}

	switch event.Type {
	case EventConsentRevoked, EventUserDeleted:
		return s.terminate(ctx, conn, StatusRevoked, "consent revoked", func() {
			s.notifier.NotifyConnectionRevoked(ctx, conn.UserID, conn.AccountName)
		})
	case EventConsentExpired:
		return s.terminate(ctx, conn, StatusExpired, "consent expired", func() {
			s.notifier.NotifyConnectionExpired(ctx, conn.UserID, conn.AccountName)
		})
	case EventConnectionInvalidated:
		// The provider access is permanently gone. Unlike an error, there is
		// no repair path: the user must complete a fresh consent flow.
		reason := "connection invalidated"
		if event.ErrorCode != "" {
			reason = fmt.Sprintf("connection invalidated (%s)", event.ErrorCode)
		}
		return s.terminate(ctx, conn, StatusRevoked, reason, func() {
			s.notifier.NotifyConnectionRevoked(ctx, conn.UserID, conn.AccountName)
		})
	case EventConnectionError:
		reason := event.ErrorCode
		if reason == "" {
			reason = "provider reported a connection error"
		}
		if err := s.repo.SetStatus(ctx, conn.ID, StatusError, &reason); err != nil {
			return fmt.Errorf("failed to mark connection %s errored: %w", conn.ID, err)
		}
		log.Printf("Connection %s entered error state: %s", conn.ID, reason)
		s.notifier.NotifyConnectionError(ctx, conn.UserID, conn.AccountName)
		return nil
	case EventAccountUpdated:
		if event.AccountStatus == "closed" {
			return s.terminate(ctx, conn, StatusRevoked, "account closed", func() {
				s.notifier.NotifyConnectionRevoked(ctx, conn.UserID, conn.AccountName)
			})
		}
		return nil
	case EventTransactionsUpdated:
		// Handled by the ingestion path; nothing to do on the connection.
		return nil
	default:
		log.Printf("Unknown webhook event type %q for item %s ignored", event.Type, event.ItemID)
		return nil
	}
}

// Repair moves an errored connection back to active after the user completes
// the provider's update flow. Terminal states cannot be repaired.
func (s *Service) Repair(ctx context.Context, id string) (*Connection, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot repair %s connection", ErrInvalidTransition, conn.Status)
	}
	if err := s.repo.SetStatus(ctx, conn.ID, StatusActive, nil); err != nil {
		return nil, fmt.Errorf("failed to reactivate connection %s: %w", conn.ID, err)
	}
	conn.Status = StatusActive
	conn.StatusReason = nil
	log.Printf("Connection %s repaired", conn.ID)
	return conn, nil
}

func (s *Service) terminate(ctx context.Context, conn *Connection, status Status, reason string, notify func()) error {
	if err := s.repo.SetStatus(ctx, conn.ID, status, &reason); err != nil {
		return fmt.Errorf("failed to mark connection %s %s: %w", conn.ID, status, err)
	}
	if err := s.configs.CancelByConnection(ctx, conn.ID, reason); err != nil {
		// The connection transition already happened; config teardown is
		// retried by the recovery sweep.
		log.Printf("Failed to cancel configs for connection %s: %v", conn.ID, err)
	}
	log.Printf("Connection %s is now %s (%s)", conn.ID, status, reason)
	notify()
	return nil
}
