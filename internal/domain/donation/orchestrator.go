package donation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"roundup/internal/domain/roundup"
	"roundup/internal/infrastructure/payments"
)

// ConfigSource is the slice of the round-up config repository settlement
// needs.
type ConfigSource interface {
	GetByID(ctx context.Context, id string) (*roundup.Config, error)
}

// TransactionSource lists the round-up transactions eligible for settlement.
type TransactionSource interface {
	ListUnsettledByConfigID(ctx context.Context, configID string) ([]*roundup.Transaction, error)
}

// DestinationValidator re-checks a donation destination right before money
// moves. Satisfied by the charity guard.
type DestinationValidator interface {
	ValidateDestination(ctx context.Context, organizationID, causeID string) error
}

// Notifier delivers donation outcome notifications to the user.
type Notifier interface {
	NotifyDonationCompleted(ctx context.Context, userID int64, amount float64)
	NotifyDonationFailed(ctx context.Context, userID int64)
}

// Orchestrator runs donation settlement: it gathers a config's unsettled
// round-ups into a donation, charges the payment method and confirms or
// unwinds the result. Every step is idempotent so settlement can be safely
// retriggered at any point.
type Orchestrator struct {
	repo         Repository
	configs      ConfigSource
	txs          TransactionSource
	destinations DestinationValidator
	charges      payments.API
	notifier     Notifier
	currency     string
	now          func() time.Time
}

// NewOrchestrator creates a settlement orchestrator.
func NewOrchestrator(repo Repository, configs ConfigSource, txs TransactionSource, destinations DestinationValidator, charges payments.API, notifier Notifier, currency string) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		configs:      configs,
		txs:          txs,
		destinations: destinations,
		charges:      charges,
		notifier:     notifier,
		currency:     currency,
		now:          time.Now,
	}
}

// TriggerSettlement runs Settle and logs the outcome. It is the fire-and-
// forget entry point used by ingestion on threshold crossings; errors are
// retried by the scheduled sweep.
func (o *Orchestrator) TriggerSettlement(ctx context.Context, configID string) {
	if _, err := o.Settle(ctx, configID); err != nil {
		if errors.Is(err, ErrNothingToSettle) {
			return
		}
		log.Printf("Settlement for config %s failed: %v", configID, err)
	}
}

// Settle settles the current period's round-ups for a config.
//
// The (config, period) slot admits one open donation: a second trigger while
// one is in flight returns the in-flight donation unchanged, whether it lost
// the race at the database or arrived later. A charge request that fails
// cleanly unwinds the settlement; one that times out leaves the donation
// pending for the recovery sweep, because the processor may have accepted
// the charge.
func (o *Orchestrator) Settle(ctx context.Context, configID string) (*Donation, error) {
	cfg, err := o.configs.GetByID(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configID, err)
	}
	if cfg == nil {
		return nil, roundup.ErrConfigNotFound
	}
	if !cfg.Enabled {
		return nil, ErrConfigDisabled
	}

	period := PeriodOf(o.now())
	if open, err := o.repo.GetOpenByConfigAndPeriod(ctx, configID, period); err != nil {
		return nil, fmt.Errorf("failed to check open donations: %w", err)
	} else if open != nil {
		log.Printf("Settlement for config %s already in flight (donation %s)", configID, open.ID)
		return open, nil
	}

	transactions, err := o.txs.ListUnsettledByConfigID(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled transactions: %w", err)
	}
	if len(transactions) == 0 {
		return nil, ErrNothingToSettle
	}

	base := 0.0
	ids := make([]string, 0, len(transactions))
	for _, tx := range transactions {
		base = roundup.RoundCents(base + tx.RoundUpAmount)
		ids = append(ids, tx.ID)
	}
	if base <= 0 {
		return nil, ErrNothingToSettle
	}

	// The destination may have gone stale since the config was created; the
	// cause or its organization must still be receivable before any money
	// moves.
	if err := o.destinations.ValidateDestination(ctx, cfg.OrganizationID, cfg.CauseID); err != nil {
		return nil, fmt.Errorf("destination for config %s is not receivable: %w", configID, err)
	}

	breakdown := ComputeBreakdown(base, cfg.CoverFees)
	d := &Donation{
		ID:               uuid.New().String(),
		ConfigID:         cfg.ID,
		UserID:           cfg.UserID,
		OrganizationID:   cfg.OrganizationID,
		CauseID:          cfg.CauseID,
		PaymentMethodID:  cfg.PaymentMethodID,
		Period:           period,
		BaseAmount:       breakdown.BaseAmount,
		FeeAmount:        breakdown.FeeAmount,
		TotalCharged:     breakdown.TotalCharged,
		NetAmount:        breakdown.NetAmount,
		CoverFees:        cfg.CoverFees,
		TransactionCount: len(ids),
		Status:           StatusPending,
	}

	created, err := o.repo.CreateSettlement(ctx, d, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	if !created {
		// Lost the slot race to a concurrent trigger.
		open, err := o.repo.GetOpenByConfigAndPeriod(ctx, configID, period)
		if err != nil {
			return nil, fmt.Errorf("failed to reload in-flight donation: %w", err)
		}
		if open == nil {
			return nil, fmt.Errorf("settlement slot for config %s period %s taken but no open donation found", configID, period)
		}
		return open, nil
	}

	log.Printf("Created donation %s for config %s: %.2f base, %.2f charged (%d transaction(s))",
		d.ID, cfg.ID, d.BaseAmount, d.TotalCharged, d.TransactionCount)

	charge, err := o.charges.CreateCharge(ctx, o.chargeParams(d))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			// Indeterminate: the processor may have accepted the charge.
			// Leave the donation pending; the recovery sweep resolves it
			// through the idempotency key.
			log.Printf("Charge request for donation %s did not complete: %v", d.ID, err)
			return d, fmt.Errorf("charge request for donation %s did not complete: %w", d.ID, err)
		}

		reason := err.Error()
		if markErr := o.repo.MarkChargeRequestFailed(ctx, d.ID, reason); markErr != nil {
			return d, fmt.Errorf("failed to unwind donation %s after charge error: %w", d.ID, markErr)
		}
		o.notifier.NotifyDonationFailed(ctx, d.UserID)
		return nil, fmt.Errorf("charge for donation %s rejected: %w", d.ID, err)
	}

	if err := o.repo.MarkChargeRequested(ctx, d.ID, charge.ID); err != nil {
		return d, fmt.Errorf("failed to record charge %s on donation %s: %w", charge.ID, d.ID, err)
	}
	d.Status = StatusProcessing
	d.ChargeID = &charge.ID

	// Synchronous outcome; otherwise the processor webhook completes it.
	switch charge.Status {
	case payments.ChargeSucceeded:
		return d, o.complete(ctx, d)
	case payments.ChargeFailed:
		reason := charge.FailureReason
		if reason == "" {
			reason = "charge declined"
		}
		return d, o.failConfirmation(ctx, d, reason)
	default:
		return d, nil
	}
}

// ResolveOrphan resolves a pending donation whose charge request never got a
// definitive answer. The charge is replayed under the donation's idempotency
// key, so the processor either reports the outcome of the original request or
// creates the charge now; either way exactly one charge exists for the
// donation. Failing the donation without asking the processor could strand a
// live charge and bill the same round-ups again on the next settlement.
func (o *Orchestrator) ResolveOrphan(ctx context.Context, d *Donation) error {
	charge, err := o.charges.CreateCharge(ctx, o.chargeParams(d))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			// Still indeterminate; the next sweep tries again.
			return fmt.Errorf("charge replay for donation %s did not complete: %w", d.ID, err)
		}
		reason := err.Error()
		if markErr := o.repo.MarkChargeRequestFailed(ctx, d.ID, reason); markErr != nil {
			return fmt.Errorf("failed to unwind donation %s after charge error: %w", d.ID, markErr)
		}
		d.Status = StatusFailed
		log.Printf("Donation %s failed on charge replay: %s", d.ID, reason)
		o.notifier.NotifyDonationFailed(ctx, d.UserID)
		return nil
	}

	if err := o.repo.MarkChargeRequested(ctx, d.ID, charge.ID); err != nil {
		return fmt.Errorf("failed to record charge %s on donation %s: %w", charge.ID, d.ID, err)
	}
	d.Status = StatusProcessing
	d.ChargeID = &charge.ID

	switch charge.Status {
	case payments.ChargeSucceeded:
		return o.complete(ctx, d)
	case payments.ChargeFailed:
		reason := charge.FailureReason
		if reason == "" {
			reason = "charge declined"
		}
		return o.failConfirmation(ctx, d, reason)
	default:
		return nil
	}
}

// HandleChargeResult applies an asynchronous charge outcome reported by the
// processor webhook. Results for unknown or already-settled charges are
// ignored so webhook replays stay harmless.
func (o *Orchestrator) HandleChargeResult(ctx context.Context, chargeID string, succeeded bool, reason string) error {
	d, err := o.repo.GetByChargeID(ctx, chargeID)
	if err != nil {
		return fmt.Errorf("failed to look up donation for charge %s: %w", chargeID, err)
	}
	if d == nil {
		log.Printf("Charge result for unknown charge %s ignored", chargeID)
		return nil
	}
	if d.Status != StatusProcessing {
		log.Printf("Charge result for %s donation %s ignored", d.Status, d.ID)
		return nil
	}

	if succeeded {
		return o.complete(ctx, d)
	}
	if reason == "" {
		reason = "charge declined"
	}
	return o.failConfirmation(ctx, d, reason)
}

// Get returns a donation by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Donation, error) {
	d, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// History returns a user's most recent donations.
func (o *Orchestrator) History(ctx context.Context, userID int64, limit int) ([]*Donation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return o.repo.ListByUserID(ctx, userID, limit)
}

// chargeParams builds the processor request for a donation. The idempotency
// key is the donation id, so every charge attempt for one donation is the
// same charge to the processor.
func (o *Orchestrator) chargeParams(d *Donation) payments.ChargeParams {
	return payments.ChargeParams{
		Amount:          d.TotalCharged,
		Currency:        o.currency,
		PaymentMethodID: d.PaymentMethodID,
		Description:     fmt.Sprintf("Round-up donation for %s", d.Period),
		IdempotencyKey:  d.ID,
		Metadata:        map[string]string{"donationId": d.ID, "configId": d.ConfigID},
	}
}

func (o *Orchestrator) complete(ctx context.Context, d *Donation) error {
	if err := o.repo.MarkCompleted(ctx, d.ID); err != nil {
		return fmt.Errorf("failed to complete donation %s: %w", d.ID, err)
	}
	d.Status = StatusCompleted
	log.Printf("Donation %s completed: %.2f to organization %s", d.ID, d.NetAmount, d.OrganizationID)
	o.notifier.NotifyDonationCompleted(ctx, d.UserID, d.NetAmount)
	return nil
}

func (o *Orchestrator) failConfirmation(ctx context.Context, d *Donation, reason string) error {
	if err := o.repo.MarkConfirmationFailed(ctx, d.ID, reason); err != nil {
		return fmt.Errorf("failed to unwind donation %s: %w", d.ID, err)
	}
	d.Status = StatusFailed
	log.Printf("Donation %s failed: %s", d.ID, reason)
	o.notifier.NotifyDonationFailed(ctx, d.UserID)
	return nil
}
