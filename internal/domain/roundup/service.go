package roundup

import (
	"context"
	"fmt"
	"log"
)

// ConnectionChecker reports whether a bank connection may feed the ledger.
// Satisfied by the connection service; kept as a local interface so the
// ledger does not depend on the connection package.
type ConnectionChecker interface {
	IsActive(ctx context.Context, connectionID string) (bool, error)
}

// DestinationValidator checks that an organization/cause pair can receive
// donations. Satisfied by the charity guard.
type DestinationValidator interface {
	ValidateDestination(ctx context.Context, organizationID, causeID string) error
}

// Service owns config lifecycle and ledger accumulation.
type Service struct {
	configs     ConfigRepository
	txs         TransactionRepository
	connections ConnectionChecker
	validator   DestinationValidator

	minimumThreshold float64
}

// NewService creates a round-up service.
func NewService(configs ConfigRepository, txs TransactionRepository, connections ConnectionChecker, validator DestinationValidator, minimumThreshold float64) *Service {
	return &Service{
		configs:          configs,
		txs:              txs,
		connections:      connections,
		validator:        validator,
		minimumThreshold: minimumThreshold,
	}
}

// CreateConfig creates the active round-up config for a bank connection.
// The storage layer enforces that only one active config per connection can
// exist; a conflicting create surfaces as ErrConfigExists.
func (s *Service) CreateConfig(ctx context.Context, params CreateConfigParams) (*Config, error) {
	if params.MonthlyThreshold != nil && *params.MonthlyThreshold < s.minimumThreshold {
		return nil, fmt.Errorf("%w: minimum is %.2f", ErrThresholdTooLow, s.minimumThreshold)
	}

	active, err := s.connections.IsActive(ctx, params.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check connection state: %w", err)
	}
	if !active {
		return nil, ErrConnectionInactive
	}

	if err := s.validator.ValidateDestination(ctx, params.OrganizationID, params.CauseID); err != nil {
		return nil, err
	}

	cfg, err := s.configs.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	log.Printf("Created round-up config %s for user %d (connection %s)", cfg.ID, cfg.UserID, cfg.ConnectionID)
	return cfg, nil
}

// GetConfig returns a config by id.
func (s *Service) GetConfig(ctx context.Context, id string) (*Config, error) {
	cfg, err := s.configs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

// Apply records one accepted round-up transaction against a config and
// accumulates its round-up amount. Re-delivery of an already recorded
// provider transaction id is an idempotent no-op. The returned result says
// whether the monthly threshold was crossed, in which case the caller
// triggers settlement rather than dropping the overflow.
func (s *Service) Apply(ctx context.Context, cfg *Config, params CreateTransactionParams) (*ApplyResult, error) {
	if !cfg.Enabled || cfg.Status == ConfigStatusCancelled {
		return nil, ErrInvalidState
	}
	if params.RoundUpAmount <= 0 {
		return nil, fmt.Errorf("round-up amount must be positive, got %.2f", params.RoundUpAmount)
	}

	created, err := s.txs.Insert(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	if !created {
		// Duplicate delivery: counters were already updated the first time.
		log.Printf("Duplicate provider transaction %s ignored", params.ID)
		return &ApplyResult{Created: false, MonthTotal: cfg.CurrentMonthTotal}, nil
	}

	updated, err := s.configs.Accumulate(ctx, cfg.ID, params.RoundUpAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to accumulate round-up: %w", err)
	}

	return &ApplyResult{
		Created:          true,
		ThresholdReached: updated.ThresholdReached(),
		MonthTotal:       updated.CurrentMonthTotal,
	}, nil
}

// CancelByConnection disables all active configs for a connection, preserving
// accumulated totals. Used when consent is revoked or the account goes away.
func (s *Service) CancelByConnection(ctx context.Context, connectionID, reason string) error {
	n, err := s.configs.CancelByConnectionID(ctx, connectionID, reason)
	if err != nil {
		return fmt.Errorf("failed to cancel configs for connection %s: %w", connectionID, err)
	}
	if n > 0 {
		log.Printf("Cancelled %d round-up config(s) for connection %s: %s", n, connectionID, reason)
	}
	return nil
}

// ResetMonthTotals starts a new accumulation month. Unsettled prior-month
// transactions keep their processed status and remain eligible for a later
// settlement attempt.
func (s *Service) ResetMonthTotals(ctx context.Context) (int, error) {
	n, err := s.configs.ResetMonthTotals(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset month totals: %w", err)
	}
	log.Printf("Monthly reset: cleared currentMonthTotal on %d config(s)", n)
	return n, nil
}
