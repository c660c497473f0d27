package roundup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfigRepo struct {
	createFunc               func(ctx context.Context, params CreateConfigParams) (*Config, error)
	getByIDFunc              func(ctx context.Context, id string) (*Config, error)
	getActiveByConnFunc      func(ctx context.Context, connectionID string) (*Config, error)
	listEnabledFunc          func(ctx context.Context) ([]*Config, error)
	accumulateFunc           func(ctx context.Context, id string, amount float64) (*Config, error)
	restoreMonthTotalFunc    func(ctx context.Context, id string, amount float64) error
	setStatusFunc            func(ctx context.Context, id string, status ConfigStatus, reason *string) error
	setDestinationFunc       func(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error
	cancelByConnectionIDFunc func(ctx context.Context, connectionID, reason string) (int, error)
	resetMonthTotalsFunc     func(ctx context.Context) (int, error)
}

func (m *mockConfigRepo) Create(ctx context.Context, params CreateConfigParams) (*Config, error) {
	return m.createFunc(ctx, params)
}
func (m *mockConfigRepo) GetByID(ctx context.Context, id string) (*Config, error) {
	return m.getByIDFunc(ctx, id)
}
func (m *mockConfigRepo) GetActiveByConnectionID(ctx context.Context, connectionID string) (*Config, error) {
	return m.getActiveByConnFunc(ctx, connectionID)
}
func (m *mockConfigRepo) ListEnabled(ctx context.Context) ([]*Config, error) {
	return m.listEnabledFunc(ctx)
}
func (m *mockConfigRepo) Accumulate(ctx context.Context, id string, amount float64) (*Config, error) {
	return m.accumulateFunc(ctx, id, amount)
}
func (m *mockConfigRepo) RestoreMonthTotal(ctx context.Context, id string, amount float64) error {
	return m.restoreMonthTotalFunc(ctx, id, amount)
}
func (m *mockConfigRepo) SetStatus(ctx context.Context, id string, status ConfigStatus, reason *string) error {
	return m.setStatusFunc(ctx, id, status, reason)
}
func (m *mockConfigRepo) SetDestination(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error {
	return m.setDestinationFunc(ctx, id, organizationID, causeID, switchedAt)
}
func (m *mockConfigRepo) CancelByConnectionID(ctx context.Context, connectionID, reason string) (int, error) {
	return m.cancelByConnectionIDFunc(ctx, connectionID, reason)
}
func (m *mockConfigRepo) ResetMonthTotals(ctx context.Context) (int, error) {
	return m.resetMonthTotalsFunc(ctx)
}

type mockTxRepo struct {
	insertFunc                  func(ctx context.Context, params CreateTransactionParams) (bool, error)
	getByIDFunc                 func(ctx context.Context, id string) (*Transaction, error)
	listUnsettledByConfigIDFunc func(ctx context.Context, configID string) ([]*Transaction, error)
	listByDonationIDFunc        func(ctx context.Context, donationID string) ([]*Transaction, error)
}

func (m *mockTxRepo) Insert(ctx context.Context, params CreateTransactionParams) (bool, error) {
	return m.insertFunc(ctx, params)
}
func (m *mockTxRepo) GetByID(ctx context.Context, id string) (*Transaction, error) {
	return m.getByIDFunc(ctx, id)
}
func (m *mockTxRepo) ListUnsettledByConfigID(ctx context.Context, configID string) ([]*Transaction, error) {
	return m.listUnsettledByConfigIDFunc(ctx, configID)
}
func (m *mockTxRepo) ListByDonationID(ctx context.Context, donationID string) ([]*Transaction, error) {
	return m.listByDonationIDFunc(ctx, donationID)
}

type mockConnChecker struct {
	isActiveFunc func(ctx context.Context, connectionID string) (bool, error)
}

func (m *mockConnChecker) IsActive(ctx context.Context, connectionID string) (bool, error) {
	return m.isActiveFunc(ctx, connectionID)
}

type mockValidator struct {
	validateFunc func(ctx context.Context, organizationID, causeID string) error
}

func (m *mockValidator) ValidateDestination(ctx context.Context, organizationID, causeID string) error {
	return m.validateFunc(ctx, organizationID, causeID)
}

func threshold(v float64) *float64 { return &v }

func TestCreateConfig(t *testing.T) {
	ctx := context.Background()

	activeConn := &mockConnChecker{isActiveFunc: func(ctx context.Context, connectionID string) (bool, error) {
		return true, nil
	}}
	okValidator := &mockValidator{validateFunc: func(ctx context.Context, organizationID, causeID string) error {
		return nil
	}}

	t.Run("creates config when everything checks out", func(t *testing.T) {
		configs := &mockConfigRepo{createFunc: func(ctx context.Context, params CreateConfigParams) (*Config, error) {
			return &Config{ID: "cfg-1", UserID: params.UserID, ConnectionID: params.ConnectionID, Enabled: true, Status: ConfigStatusPending}, nil
		}}
		svc := NewService(configs, &mockTxRepo{}, activeConn, okValidator, 5.00)

		cfg, err := svc.CreateConfig(ctx, CreateConfigParams{
			UserID:           42,
			ConnectionID:     "conn-1",
			OrganizationID:   "org-1",
			CauseID:          "cause-1",
			MonthlyThreshold: threshold(25.00),
		})
		require.NoError(t, err)
		assert.Equal(t, "cfg-1", cfg.ID)
		assert.True(t, cfg.Enabled)
	})

	t.Run("rejects threshold below minimum", func(t *testing.T) {
		svc := NewService(&mockConfigRepo{}, &mockTxRepo{}, activeConn, okValidator, 5.00)

		_, err := svc.CreateConfig(ctx, CreateConfigParams{
			ConnectionID:     "conn-1",
			MonthlyThreshold: threshold(1.00),
		})
		assert.ErrorIs(t, err, ErrThresholdTooLow)
	})

	t.Run("allows nil threshold", func(t *testing.T) {
		configs := &mockConfigRepo{createFunc: func(ctx context.Context, params CreateConfigParams) (*Config, error) {
			assert.Nil(t, params.MonthlyThreshold)
			return &Config{ID: "cfg-2", Enabled: true}, nil
		}}
		svc := NewService(configs, &mockTxRepo{}, activeConn, okValidator, 5.00)

		_, err := svc.CreateConfig(ctx, CreateConfigParams{ConnectionID: "conn-1"})
		require.NoError(t, err)
	})

	t.Run("rejects inactive connection", func(t *testing.T) {
		inactive := &mockConnChecker{isActiveFunc: func(ctx context.Context, connectionID string) (bool, error) {
			return false, nil
		}}
		svc := NewService(&mockConfigRepo{}, &mockTxRepo{}, inactive, okValidator, 5.00)

		_, err := svc.CreateConfig(ctx, CreateConfigParams{ConnectionID: "conn-1"})
		assert.ErrorIs(t, err, ErrConnectionInactive)
	})

	t.Run("propagates destination validation failure", func(t *testing.T) {
		badDest := errors.New("organization cannot receive payouts")
		failing := &mockValidator{validateFunc: func(ctx context.Context, organizationID, causeID string) error {
			return badDest
		}}
		svc := NewService(&mockConfigRepo{}, &mockTxRepo{}, activeConn, failing, 5.00)

		_, err := svc.CreateConfig(ctx, CreateConfigParams{ConnectionID: "conn-1"})
		assert.ErrorIs(t, err, badDest)
	})

	t.Run("surfaces conflicting active config", func(t *testing.T) {
		configs := &mockConfigRepo{createFunc: func(ctx context.Context, params CreateConfigParams) (*Config, error) {
			return nil, ErrConfigExists
		}}
		svc := NewService(configs, &mockTxRepo{}, activeConn, okValidator, 5.00)

		_, err := svc.CreateConfig(ctx, CreateConfigParams{ConnectionID: "conn-1"})
		assert.ErrorIs(t, err, ErrConfigExists)
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	baseConfig := func() *Config {
		return &Config{
			ID:                "cfg-1",
			UserID:            42,
			ConnectionID:      "conn-1",
			MonthlyThreshold:  threshold(10.00),
			CurrentMonthTotal: 9.50,
			Enabled:           true,
			Status:            ConfigStatusPending,
		}
	}

	params := CreateTransactionParams{
		ID:            "tx-abc",
		UserID:        42,
		ConnectionID:  "conn-1",
		ConfigID:      "cfg-1",
		Amount:        4.60,
		RoundUpAmount: 0.40,
	}

	t.Run("records transaction and accumulates", func(t *testing.T) {
		var accumulated float64
		configs := &mockConfigRepo{accumulateFunc: func(ctx context.Context, id string, amount float64) (*Config, error) {
			accumulated = amount
			cfg := baseConfig()
			cfg.CurrentMonthTotal = 9.90
			return cfg, nil
		}}
		txs := &mockTxRepo{insertFunc: func(ctx context.Context, p CreateTransactionParams) (bool, error) {
			return true, nil
		}}
		svc := NewService(configs, txs, &mockConnChecker{}, &mockValidator{}, 5.00)

		res, err := svc.Apply(ctx, baseConfig(), params)
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.False(t, res.ThresholdReached)
		assert.InDelta(t, 0.40, accumulated, 1e-9)
		assert.InDelta(t, 9.90, res.MonthTotal, 1e-9)
	})

	t.Run("reports threshold crossing", func(t *testing.T) {
		configs := &mockConfigRepo{accumulateFunc: func(ctx context.Context, id string, amount float64) (*Config, error) {
			cfg := baseConfig()
			cfg.CurrentMonthTotal = 10.25
			return cfg, nil
		}}
		txs := &mockTxRepo{insertFunc: func(ctx context.Context, p CreateTransactionParams) (bool, error) {
			return true, nil
		}}
		svc := NewService(configs, txs, &mockConnChecker{}, &mockValidator{}, 5.00)

		res, err := svc.Apply(ctx, baseConfig(), params)
		require.NoError(t, err)
		assert.True(t, res.ThresholdReached)
		assert.InDelta(t, 10.25, res.MonthTotal, 1e-9)
	})

	t.Run("duplicate transaction is a no-op", func(t *testing.T) {
		accumulateCalled := false
		configs := &mockConfigRepo{accumulateFunc: func(ctx context.Context, id string, amount float64) (*Config, error) {
			accumulateCalled = true
			return baseConfig(), nil
		}}
		txs := &mockTxRepo{insertFunc: func(ctx context.Context, p CreateTransactionParams) (bool, error) {
			return false, nil
		}}
		svc := NewService(configs, txs, &mockConnChecker{}, &mockValidator{}, 5.00)

		res, err := svc.Apply(ctx, baseConfig(), params)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.False(t, res.ThresholdReached)
		assert.False(t, accumulateCalled)
	})

	t.Run("rejects disabled config", func(t *testing.T) {
		svc := NewService(&mockConfigRepo{}, &mockTxRepo{}, &mockConnChecker{}, &mockValidator{}, 5.00)

		cfg := baseConfig()
		cfg.Enabled = false
		_, err := svc.Apply(ctx, cfg, params)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("rejects non-positive round-up", func(t *testing.T) {
		svc := NewService(&mockConfigRepo{}, &mockTxRepo{}, &mockConnChecker{}, &mockValidator{}, 5.00)

		bad := params
		bad.RoundUpAmount = 0
		_, err := svc.Apply(ctx, baseConfig(), bad)
		assert.Error(t, err)
	})
}

func TestCancelByConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels active configs", func(t *testing.T) {
		var gotReason string
		configs := &mockConfigRepo{cancelByConnectionIDFunc: func(ctx context.Context, connectionID, reason string) (int, error) {
			gotReason = reason
			return 1, nil
		}}
		svc := NewService(configs, &mockTxRepo{}, &mockConnChecker{}, &mockValidator{}, 5.00)

		err := svc.CancelByConnection(ctx, "conn-1", "consent revoked")
		require.NoError(t, err)
		assert.Equal(t, "consent revoked", gotReason)
	})

	t.Run("wraps repository failure", func(t *testing.T) {
		configs := &mockConfigRepo{cancelByConnectionIDFunc: func(ctx context.Context, connectionID, reason string) (int, error) {
			return 0, errors.New("db down")
		}}
		svc := NewService(configs, &mockTxRepo{}, &mockConnChecker{}, &mockValidator{}, 5.00)

		err := svc.CancelByConnection(ctx, "conn-1", "consent revoked")
		assert.Error(t, err)
	})
}

func TestThresholdReached(t *testing.T) {
	cfg := &Config{CurrentMonthTotal: 10.00, MonthlyThreshold: threshold(10.00)}
	assert.True(t, cfg.ThresholdReached())

	cfg.CurrentMonthTotal = 9.99
	assert.False(t, cfg.ThresholdReached())

	cfg.MonthlyThreshold = nil
	cfg.CurrentMonthTotal = 1000
	assert.False(t, cfg.ThresholdReached())
}
