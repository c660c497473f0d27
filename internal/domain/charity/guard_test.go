package charity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	getCauseFunc     func(ctx context.Context, causeID string) (*Cause, error)
	payoutStatusFunc func(ctx context.Context, organizationID string) (bool, error)
}

func (m *mockDirectory) GetCause(ctx context.Context, causeID string) (*Cause, error) {
	return m.getCauseFunc(ctx, causeID)
}
func (m *mockDirectory) GetOrganizationPayoutStatus(ctx context.Context, organizationID string) (bool, error) {
	return m.payoutStatusFunc(ctx, organizationID)
}

type mockConfigStore struct {
	setDestinationFunc func(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error
}

func (m *mockConfigStore) SetDestination(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
	return m.setDestinationFunc(ctx, id, organizationID, causeID, switchedAt)
}

func healthyDirectory() *mockDirectory {
	return &mockDirectory{
		getCauseFunc: func(ctx context.Context, causeID string) (*Cause, error) {
			return &Cause{ID: causeID, OrganizationID: "org-1", Name: "Clean Water", Active: true}, nil
		},
		payoutStatusFunc: func(ctx context.Context, organizationID string) (bool, error) {
			return true, nil
		},
	}
}

func TestValidateDestination(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts active cause with payouts enabled", func(t *testing.T) {
		guard := NewGuard(healthyDirectory(), &mockConfigStore{})
		assert.NoError(t, guard.ValidateDestination(ctx, "org-1", "cause-1"))
	})

	t.Run("rejects unknown cause", func(t *testing.T) {
		dir := healthyDirectory()
		dir.getCauseFunc = func(ctx context.Context, causeID string) (*Cause, error) { return nil, nil }
		guard := NewGuard(dir, &mockConfigStore{})

		assert.ErrorIs(t, guard.ValidateDestination(ctx, "org-1", "cause-404"), ErrCauseNotFound)
	})

	t.Run("rejects inactive cause", func(t *testing.T) {
		dir := healthyDirectory()
		dir.getCauseFunc = func(ctx context.Context, causeID string) (*Cause, error) {
			return &Cause{ID: causeID, OrganizationID: "org-1", Active: false}, nil
		}
		guard := NewGuard(dir, &mockConfigStore{})

		assert.ErrorIs(t, guard.ValidateDestination(ctx, "org-1", "cause-1"), ErrCauseUnavailable)
	})

	t.Run("rejects cause owned by a different organization", func(t *testing.T) {
		guard := NewGuard(healthyDirectory(), &mockConfigStore{})
		assert.ErrorIs(t, guard.ValidateDestination(ctx, "org-2", "cause-1"), ErrCauseUnavailable)
	})

	t.Run("rejects organization with payouts disabled", func(t *testing.T) {
		dir := healthyDirectory()
		dir.payoutStatusFunc = func(ctx context.Context, organizationID string) (bool, error) { return false, nil }
		guard := NewGuard(dir, &mockConfigStore{})

		assert.ErrorIs(t, guard.ValidateDestination(ctx, "org-1", "cause-1"), ErrPayoutsDisabled)
	})
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	newGuard := func(store *mockConfigStore) *Guard {
		guard := NewGuard(healthyDirectory(), store)
		guard.now = func() time.Time { return now }
		return guard
	}

	t.Run("first switch has no cooldown", func(t *testing.T) {
		recorded := false
		store := &mockConfigStore{setDestinationFunc: func(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
			recorded = true
			assert.Equal(t, now, switchedAt)
			return nil
		}}
		guard := newGuard(store)

		require.NoError(t, guard.Switch(ctx, "cfg-1", nil, "org-1", "cause-1"))
		assert.True(t, recorded)
	})

	t.Run("switch after cooldown succeeds", func(t *testing.T) {
		last := now.Add(-31 * 24 * time.Hour)
		store := &mockConfigStore{setDestinationFunc: func(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
			return nil
		}}
		guard := newGuard(store)

		assert.NoError(t, guard.Switch(ctx, "cfg-1", &last, "org-1", "cause-1"))
	})

	t.Run("switch inside cooldown reports days remaining", func(t *testing.T) {
		last := now.Add(-10 * 24 * time.Hour)
		guard := newGuard(&mockConfigStore{})

		err := guard.Switch(ctx, "cfg-1", &last, "org-1", "cause-1")
		var cooldown *CooldownError
		require.ErrorAs(t, err, &cooldown)
		assert.Equal(t, 20, cooldown.DaysRemaining)
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		last := now.Add(-29*24*time.Hour - 12*time.Hour)
		guard := newGuard(&mockConfigStore{})

		err := guard.Switch(ctx, "cfg-1", &last, "org-1", "cause-1")
		var cooldown *CooldownError
		require.ErrorAs(t, err, &cooldown)
		assert.Equal(t, 1, cooldown.DaysRemaining)
	})

	t.Run("exactly at cooldown boundary succeeds", func(t *testing.T) {
		last := now.Add(-SwitchCooldown)
		store := &mockConfigStore{setDestinationFunc: func(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
			return nil
		}}
		guard := newGuard(store)

		assert.NoError(t, guard.Switch(ctx, "cfg-1", &last, "org-1", "cause-1"))
	})

	t.Run("cooldown checked before destination validation", func(t *testing.T) {
		dir := healthyDirectory()
		dirCalled := false
		dir.getCauseFunc = func(ctx context.Context, causeID string) (*Cause, error) {
			dirCalled = true
			return nil, nil
		}
		guard := NewGuard(dir, &mockConfigStore{})
		guard.now = func() time.Time { return now }

		last := now.Add(-time.Hour)
		err := guard.Switch(ctx, "cfg-1", &last, "org-1", "cause-1")
		var cooldown *CooldownError
		require.ErrorAs(t, err, &cooldown)
		assert.False(t, dirCalled)
	})
}
