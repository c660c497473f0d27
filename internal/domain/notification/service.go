package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roundup/internal/shared/messages"
)

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
	texts     *messages.Messages
}

// NewService creates a new notification service. messenger may be nil, in
// which case notifications are stored but not pushed.
func NewService(repo Repository, messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	return &Service{repo: repo, messenger: messenger, texts: texts}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
// Creates default notification preferences if none exist.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	token, err := s.repo.UpsertDeviceToken(ctx, params)
	if err != nil {
		return nil, err
	}

	// Ensure notification preferences exist for this user
	_, err = s.repo.GetPreferences(ctx, params.UserID)
	if err != nil {
		_, err = s.repo.UpsertPreferences(ctx, params.UserID, UpdatePreferenceParams{})
		if err != nil {
			log.Printf("Warning: failed to create default notification preferences for user %d: %v", params.UserID, err)
		}
	}

	return token, nil
}

// DeactivateToken marks a device token inactive. Used by the FCM client
// when the provider reports the token as unregistered.
func (s *Service) DeactivateToken(ctx context.Context, token string) error {
	return s.repo.DeactivateToken(ctx, token)
}

// GetPreferences returns the notification preferences for a user.
// Returns default (all-enabled) preferences if none have been created yet.
func (s *Service) GetPreferences(ctx context.Context, userID int64) (*NotificationPreference, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}

	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return &NotificationPreference{
			UserID:             userID,
			ConnectionsEnabled: true,
			DonationsEnabled:   true,
			GeneralEnabled:     true,
		}, nil
	}

	return prefs, nil
}

// UpdatePreferences updates notification preferences for a user
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, params UpdatePreferenceParams) (*NotificationPreference, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}

	return s.repo.UpsertPreferences(ctx, userID, params)
}

// ListNotifications returns paginated notifications for a user
func (s *Service) ListNotifications(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if userID <= 0 {
		return nil, 0, errors.New("valid user ID is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	return s.repo.ListByUserID(ctx, userID, page, perPage)
}

// MarkNotificationOpened marks a notification as opened by the authenticated user
func (s *Service) MarkNotificationOpened(ctx context.Context, notificationID string, userID int64) error {
	if notificationID == "" {
		return errors.New("notification ID is required")
	}
	if userID <= 0 {
		return errors.New("valid user ID is required")
	}

	return s.repo.MarkOpened(ctx, notificationID, userID)
}

// SendToUser sends a push notification to a specific user.
// Respects notification preferences and creates a notification record.
func (s *Service) SendToUser(ctx context.Context, userID int64, title, body, category string, data map[string]string) error {
	if !IsValidCategory(category) {
		return ErrInvalidCategory
	}

	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}

	if !prefs.IsCategoryEnabled(category) {
		log.Printf("Notification skipped for user %d: category %q disabled", userID, category)
		return nil
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if data == nil {
		data = make(map[string]string)
	}
	if _, ok := data["route"]; !ok {
		data["route"] = category
	}

	if s.messenger != nil && len(tokens) > 0 {
		tokenStrings := make([]string, len(tokens))
		for i, t := range tokens {
			tokenStrings[i] = t.Token
		}

		if err := s.messenger.SendMulticast(ctx, tokenStrings, title, body, data); err != nil {
			log.Printf("Error sending notification to user %d: %v", userID, err)
		}
	}

	// Store notification record even without a push target so the in-app
	// inbox stays complete.
	_, err = s.repo.CreateNotification(ctx, CreateNotificationParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     data,
	})
	if err != nil {
		log.Printf("Error storing notification for user %d: %v", userID, err)
	}

	return nil
}

// The Notify* helpers below are the outbound surface consumed by the
// connection and donation services. They are fire-and-forget: a failed
// notification is logged and never fails the operation that produced it.

func (s *Service) NotifyConnectionRevoked(ctx context.Context, userID int64, accountName string) {
	s.sendEvent(ctx, userID, s.texts.ConnectionRevoked, CategoryConnections, map[string]string{"account": accountName})
}

func (s *Service) NotifyConnectionExpired(ctx context.Context, userID int64, accountName string) {
	s.sendEvent(ctx, userID, s.texts.ConnectionExpired, CategoryConnections, map[string]string{"account": accountName})
}

func (s *Service) NotifyConnectionError(ctx context.Context, userID int64, accountName string) {
	s.sendEvent(ctx, userID, s.texts.ConnectionError, CategoryConnections, map[string]string{"account": accountName})
}

func (s *Service) NotifyDonationCompleted(ctx context.Context, userID int64, amount float64) {
	s.sendEvent(ctx, userID, s.texts.DonationCompleted, CategoryDonations, map[string]string{"amount": fmt.Sprintf("%.2f", amount)})
}

func (s *Service) NotifyDonationFailed(ctx context.Context, userID int64) {
	s.sendEvent(ctx, userID, s.texts.DonationFailed, CategoryDonations, nil)
}

func (s *Service) sendEvent(ctx context.Context, userID int64, text messages.MessageText, category string, data map[string]string) {
	if err := s.SendToUser(ctx, userID, text.Title, text.Body, category, data); err != nil {
		log.Printf("Error sending %s notification to user %d: %v", category, userID, err)
	}
}
