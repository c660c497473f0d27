package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundup/internal/shared/messages"
)

type mockRepo struct {
	upsertDeviceTokenFunc func(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error)
	getActiveTokensFunc   func(ctx context.Context, userID int64) ([]*DeviceToken, error)
	deactivateTokenFunc   func(ctx context.Context, token string) error
	getPreferencesFunc    func(ctx context.Context, userID int64) (*NotificationPreference, error)
	upsertPreferencesFunc func(ctx context.Context, userID int64, params UpdatePreferenceParams) (*NotificationPreference, error)
	createFunc            func(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	listByUserIDFunc      func(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error)
	markOpenedFunc        func(ctx context.Context, notificationID string, userID int64) error
}

func (m *mockRepo) UpsertDeviceToken(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	return m.upsertDeviceTokenFunc(ctx, params)
}
func (m *mockRepo) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*DeviceToken, error) {
	return m.getActiveTokensFunc(ctx, userID)
}
func (m *mockRepo) DeactivateToken(ctx context.Context, token string) error {
	return m.deactivateTokenFunc(ctx, token)
}
func (m *mockRepo) GetPreferences(ctx context.Context, userID int64) (*NotificationPreference, error) {
	return m.getPreferencesFunc(ctx, userID)
}
func (m *mockRepo) UpsertPreferences(ctx context.Context, userID int64, params UpdatePreferenceParams) (*NotificationPreference, error) {
	return m.upsertPreferencesFunc(ctx, userID, params)
}
func (m *mockRepo) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	return m.createFunc(ctx, params)
}
func (m *mockRepo) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	return m.listByUserIDFunc(ctx, userID, page, perPage)
}
func (m *mockRepo) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	return m.markOpenedFunc(ctx, notificationID, userID)
}

type mockMessenger struct {
	sent       [][]string
	lastTitle  string
	lastBody   string
	lastData   map[string]string
	multiError error
}

func (m *mockMessenger) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	m.sent = append(m.sent, []string{token})
	m.lastTitle, m.lastBody, m.lastData = title, body, data
	return nil
}
func (m *mockMessenger) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	m.sent = append(m.sent, tokens)
	m.lastTitle, m.lastBody, m.lastData = title, body, data
	return m.multiError
}

func repoWithTokens(tokens ...string) *mockRepo {
	deviceTokens := make([]*DeviceToken, len(tokens))
	for i, t := range tokens {
		deviceTokens[i] = &DeviceToken{Token: t, IsActive: true}
	}
	return &mockRepo{
		getPreferencesFunc: func(ctx context.Context, userID int64) (*NotificationPreference, error) {
			return &NotificationPreference{UserID: userID, ConnectionsEnabled: true, DonationsEnabled: true, GeneralEnabled: true}, nil
		},
		getActiveTokensFunc: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return deviceTokens, nil
		},
		createFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			return &Notification{ID: "n-1", Title: params.Title}, nil
		},
	}
}

func TestSendToUser(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes to all active tokens and stores record", func(t *testing.T) {
		repo := repoWithTokens("tok-1", "tok-2")
		var stored CreateNotificationParams
		repo.createFunc = func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			stored = params
			return &Notification{ID: "n-1"}, nil
		}
		messenger := &mockMessenger{}
		svc := NewService(repo, messenger, nil)

		err := svc.SendToUser(ctx, 42, "Donation sent", "Thanks!", CategoryDonations, nil)
		require.NoError(t, err)
		require.Len(t, messenger.sent, 1)
		assert.Equal(t, []string{"tok-1", "tok-2"}, messenger.sent[0])
		assert.Equal(t, CategoryDonations, stored.Category)
		assert.Equal(t, CategoryDonations, messenger.lastData["route"])
	})

	t.Run("disabled category is skipped entirely", func(t *testing.T) {
		repo := repoWithTokens("tok-1")
		repo.getPreferencesFunc = func(ctx context.Context, userID int64) (*NotificationPreference, error) {
			return &NotificationPreference{UserID: userID, DonationsEnabled: false, ConnectionsEnabled: true}, nil
		}
		storeCalled := false
		repo.createFunc = func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			storeCalled = true
			return nil, nil
		}
		messenger := &mockMessenger{}
		svc := NewService(repo, messenger, nil)

		err := svc.SendToUser(ctx, 42, "Donation sent", "Thanks!", CategoryDonations, nil)
		require.NoError(t, err)
		assert.Empty(t, messenger.sent)
		assert.False(t, storeCalled)
	})

	t.Run("stores record even without tokens", func(t *testing.T) {
		repo := repoWithTokens()
		storeCalled := false
		repo.createFunc = func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			storeCalled = true
			return &Notification{ID: "n-1"}, nil
		}
		messenger := &mockMessenger{}
		svc := NewService(repo, messenger, nil)

		err := svc.SendToUser(ctx, 42, "Hello", "World", CategoryGeneral, nil)
		require.NoError(t, err)
		assert.Empty(t, messenger.sent)
		assert.True(t, storeCalled)
	})

	t.Run("push failure does not fail the call", func(t *testing.T) {
		repo := repoWithTokens("tok-1")
		messenger := &mockMessenger{multiError: errors.New("fcm unavailable")}
		svc := NewService(repo, messenger, nil)

		assert.NoError(t, svc.SendToUser(ctx, 42, "Hello", "World", CategoryGeneral, nil))
	})

	t.Run("invalid category rejected", func(t *testing.T) {
		svc := NewService(&mockRepo{}, &mockMessenger{}, nil)
		assert.ErrorIs(t, svc.SendToUser(ctx, 42, "t", "b", "budgets", nil), ErrInvalidCategory)
	})
}

func TestNotifyHelpers(t *testing.T) {
	ctx := context.Background()

	t.Run("donation completed carries the amount", func(t *testing.T) {
		repo := repoWithTokens("tok-1")
		messenger := &mockMessenger{}
		svc := NewService(repo, messenger, messages.Default())

		svc.NotifyDonationCompleted(ctx, 42, 9.41)
		require.Len(t, messenger.sent, 1)
		assert.Equal(t, "9.41", messenger.lastData["amount"])
		assert.Equal(t, CategoryDonations, messenger.lastData["route"])
	})

	t.Run("connection revoked carries the account name", func(t *testing.T) {
		repo := repoWithTokens("tok-1")
		messenger := &mockMessenger{}
		svc := NewService(repo, messenger, messages.Default())

		svc.NotifyConnectionRevoked(ctx, 42, "Everyday Checking")
		require.Len(t, messenger.sent, 1)
		assert.Equal(t, "Everyday Checking", messenger.lastData["account"])
	})
}

func TestRegisterDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("registers token and creates default preferences", func(t *testing.T) {
		prefsCreated := false
		repo := &mockRepo{
			upsertDeviceTokenFunc: func(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
				return &DeviceToken{ID: "dt-1", Token: params.Token}, nil
			},
			getPreferencesFunc: func(ctx context.Context, userID int64) (*NotificationPreference, error) {
				return nil, ErrPreferencesNotFound
			},
			upsertPreferencesFunc: func(ctx context.Context, userID int64, params UpdatePreferenceParams) (*NotificationPreference, error) {
				prefsCreated = true
				return &NotificationPreference{UserID: userID}, nil
			},
		}
		svc := NewService(repo, nil, nil)

		token, err := svc.RegisterDevice(ctx, CreateDeviceTokenParams{UserID: 42, Token: "tok-1", DeviceType: "ios"})
		require.NoError(t, err)
		assert.Equal(t, "dt-1", token.ID)
		assert.True(t, prefsCreated)
	})

	t.Run("rejects invalid device type", func(t *testing.T) {
		svc := NewService(&mockRepo{}, nil, nil)
		_, err := svc.RegisterDevice(ctx, CreateDeviceTokenParams{UserID: 42, Token: "tok-1", DeviceType: "web"})
		assert.ErrorIs(t, err, ErrInvalidDeviceType)
	})
}

