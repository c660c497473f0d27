package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"roundup/internal/domain/donation"
	"roundup/internal/domain/ingest"
	"roundup/internal/domain/roundup"
)

// Settler triggers a settlement attempt for a round-up config.
type Settler interface {
	Settle(ctx context.Context, configID string) (*donation.Donation, error)
}

// Backfiller pulls pending transactions for a bank connection.
type Backfiller interface {
	Backfill(ctx context.Context, connectionID string) (*ingest.Result, error)
}

// ItemBackfiller pulls pending transactions for a provider item, resolving
// the connection first. Used by webhook-driven backfills.
type ItemBackfiller interface {
	BackfillByItem(ctx context.Context, provider, itemID string) (*ingest.Result, error)
}

// MonthResetter clears accumulated month totals.
type MonthResetter interface {
	ResetMonthTotals(ctx context.Context) (int, error)
}

// OrphanRecoverer fails donations stuck before their charge went out.
type OrphanRecoverer interface {
	RecoverOrphans(ctx context.Context) (int, error)
}

// SettlementJob attempts to settle one config's accumulated round-ups.
type SettlementJob struct {
	configID string
	settler  Settler
}

func NewSettlementJob(configID string, settler Settler) *SettlementJob {
	return &SettlementJob{configID: configID, settler: settler}
}

func (j *SettlementJob) Execute(ctx context.Context) error {
	_, err := j.settler.Settle(ctx, j.configID)
	if errors.Is(err, donation.ErrNothingToSettle) {
		return nil
	}
	return err
}

func (j *SettlementJob) Key() string { return j.configID }

func (j *SettlementJob) Description() string {
	return fmt.Sprintf("settlement for config %s", j.configID)
}

// BackfillJob syncs outstanding transactions for one bank connection.
type BackfillJob struct {
	connectionID string
	backfiller   Backfiller
}

func NewBackfillJob(connectionID string, backfiller Backfiller) *BackfillJob {
	return &BackfillJob{connectionID: connectionID, backfiller: backfiller}
}

func (j *BackfillJob) Execute(ctx context.Context) error {
	result, err := j.backfiller.Backfill(ctx, j.connectionID)
	if err != nil {
		return err
	}
	log.Printf("Backfill for connection %s: %d accepted, %d duplicates", j.connectionID, result.Accepted, result.Duplicates)
	return nil
}

func (j *BackfillJob) Key() string { return j.connectionID }

func (j *BackfillJob) Description() string {
	return fmt.Sprintf("backfill for connection %s", j.connectionID)
}

// ItemBackfillJob syncs transactions for a provider item after a
// transactions.updated webhook.
type ItemBackfillJob struct {
	provider   string
	itemID     string
	backfiller ItemBackfiller
}

func NewItemBackfillJob(provider, itemID string, backfiller ItemBackfiller) *ItemBackfillJob {
	return &ItemBackfillJob{provider: provider, itemID: itemID, backfiller: backfiller}
}

func (j *ItemBackfillJob) Execute(ctx context.Context) error {
	result, err := j.backfiller.BackfillByItem(ctx, j.provider, j.itemID)
	if err != nil {
		return err
	}
	log.Printf("Backfill for item %s/%s: %d accepted, %d duplicates", j.provider, j.itemID, result.Accepted, result.Duplicates)
	return nil
}

func (j *ItemBackfillJob) Key() string { return j.provider + "/" + j.itemID }

func (j *ItemBackfillJob) Description() string {
	return fmt.Sprintf("backfill for item %s/%s", j.provider, j.itemID)
}

// MonthlyResetJob zeroes month totals at the start of a new month.
type MonthlyResetJob struct {
	resetter MonthResetter
}

func NewMonthlyResetJob(resetter MonthResetter) *MonthlyResetJob {
	return &MonthlyResetJob{resetter: resetter}
}

func (j *MonthlyResetJob) Execute(ctx context.Context) error {
	count, err := j.resetter.ResetMonthTotals(ctx)
	if err != nil {
		return err
	}
	log.Printf("Monthly reset cleared %d configs", count)
	return nil
}

func (j *MonthlyResetJob) Key() string { return "monthly-reset" }

func (j *MonthlyResetJob) Description() string { return "monthly round-up total reset" }

// RecoverySweepJob fails donations abandoned before their charge was sent.
type RecoverySweepJob struct {
	recoverer OrphanRecoverer
}

func NewRecoverySweepJob(recoverer OrphanRecoverer) *RecoverySweepJob {
	return &RecoverySweepJob{recoverer: recoverer}
}

func (j *RecoverySweepJob) Execute(ctx context.Context) error {
	count, err := j.recoverer.RecoverOrphans(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Printf("Recovery sweep failed %d orphaned donations", count)
	}
	return nil
}

func (j *RecoverySweepJob) Key() string { return "recovery-sweep" }

func (j *RecoverySweepJob) Description() string { return "orphaned donation recovery sweep" }

// DailyJobProvider builds the daily batch: a settlement attempt per enabled
// config, the recovery sweep, and the month reset on the first of the month.
func DailyJobProvider(configs roundup.ConfigRepository, settler Settler, resetter MonthResetter, recoverer OrphanRecoverer) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		enabled, err := configs.ListEnabled(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list enabled configs: %w", err)
		}

		jobs := make([]Job, 0, len(enabled)+2)
		if time.Now().UTC().Day() == 1 {
			jobs = append(jobs, NewMonthlyResetJob(resetter))
		}
		for _, cfg := range enabled {
			jobs = append(jobs, NewSettlementJob(cfg.ID, settler))
		}
		jobs = append(jobs, NewRecoverySweepJob(recoverer))
		return jobs, nil
	}
}
