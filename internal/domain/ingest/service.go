package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roundup/internal/domain/connection"
	"roundup/internal/domain/roundup"
	"roundup/internal/infrastructure/bankdata"
)

// Ledger applies accepted transactions to a round-up config. Satisfied by
// the round-up service.
type Ledger interface {
	Apply(ctx context.Context, cfg *roundup.Config, params roundup.CreateTransactionParams) (*roundup.ApplyResult, error)
}

// ConfigSource finds the active config for a connection.
type ConfigSource interface {
	GetActiveByConnectionID(ctx context.Context, connectionID string) (*roundup.Config, error)
}

// ConnectionSource provides connection lookup, token decryption and sync
// cursor bookkeeping. Satisfied by the connection service.
type ConnectionSource interface {
	Get(ctx context.Context, id string) (*connection.Connection, error)
	GetByProviderItemID(ctx context.Context, provider, itemID string) (*connection.Connection, error)
	AccessToken(conn *connection.Connection) (string, error)
	RecordSync(ctx context.Context, id, cursor string) error
}

// Trigger kicks off settlement when a config crosses its threshold.
// Satisfied by the donation orchestrator.
type Trigger interface {
	TriggerSettlement(ctx context.Context, configID string)
}

// Result summarizes one ingestion batch.
type Result struct {
	Accepted            int
	Duplicates          int
	Rejected            map[string]int
	RoundUpTotal        float64
	SettlementTriggered bool
}

// Service runs the transaction ingestion pipeline: normalize, filter, apply
// to the ledger, and trigger settlement on threshold crossings.
type Service struct {
	connections ConnectionSource
	configs     ConfigSource
	ledger      Ledger
	provider    bankdata.API
	settlement  Trigger
}

// NewService creates an ingestion service.
func NewService(connections ConnectionSource, configs ConfigSource, ledger Ledger, provider bankdata.API, settlement Trigger) *Service {
	return &Service{
		connections: connections,
		configs:     configs,
		ledger:      ledger,
		provider:    provider,
		settlement:  settlement,
	}
}

// Ingest processes one batch of provider transactions for a connection.
// Transactions that fail a rule are skipped, not errored: one bad
// transaction never poisons the batch. Settlement is triggered at most once
// per batch even if several transactions cross the threshold.
func (s *Service) Ingest(ctx context.Context, conn *connection.Connection, transactions []bankdata.Transaction) (*Result, error) {
	if !conn.Active() {
		return nil, connection.ErrInactive
	}

	cfg, err := s.configs.GetActiveByConnectionID(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for connection %s: %w", conn.ID, err)
	}
	if cfg == nil {
		// Connected but round-ups not configured; nothing to do.
		return &Result{Rejected: map[string]int{}}, nil
	}

	result := &Result{Rejected: map[string]int{}}
	for _, raw := range transactions {
		normalized, err := Normalize(raw)
		if err != nil {
			log.Printf("Skipping malformed transaction: %v", err)
			result.Rejected["malformed"]++
			continue
		}

		amount, reason := Eligible(normalized)
		if reason != "" {
			result.Rejected[reason]++
			continue
		}

		applied, err := s.ledger.Apply(ctx, cfg, roundup.CreateTransactionParams{
			ID:              normalized.ID,
			UserID:          cfg.UserID,
			ConnectionID:    conn.ID,
			ConfigID:        cfg.ID,
			Amount:          normalized.Amount,
			RoundUpAmount:   amount,
			TransactionDate: normalized.Date,
			Description:     normalized.Description,
			Category:        normalized.Category,
		})
		if err != nil {
			if errors.Is(err, roundup.ErrInvalidState) {
				// Config was cancelled mid-batch; stop applying.
				log.Printf("Config %s became inactive mid-batch, stopping ingest", cfg.ID)
				break
			}
			return nil, fmt.Errorf("failed to apply transaction %s: %w", normalized.ID, err)
		}

		if !applied.Created {
			result.Duplicates++
			continue
		}

		result.Accepted++
		result.RoundUpTotal = roundup.RoundCents(result.RoundUpTotal + amount)
		if applied.ThresholdReached && !result.SettlementTriggered {
			result.SettlementTriggered = true
			s.settlement.TriggerSettlement(ctx, cfg.ID)
		}
	}

	if result.Accepted > 0 {
		log.Printf("Ingested %d transaction(s) for connection %s (%.2f in round-ups, %d duplicate(s))",
			result.Accepted, conn.ID, result.RoundUpTotal, result.Duplicates)
	}
	return result, nil
}

// Backfill pulls all provider transactions newer than the connection's sync
// cursor and runs them through ingestion. Driven by transactions.updated
// webhooks and by the scheduled sweep. The cursor only advances after a page
// has been fully ingested, so a crash mid-backfill re-reads the page; the
// ledger's duplicate handling makes the replay harmless.
func (s *Service) Backfill(ctx context.Context, connectionID string) (*Result, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Active() {
		return nil, connection.ErrInactive
	}

	token, err := s.connections.AccessToken(conn)
	if err != nil {
		return nil, err
	}

	cursor := ""
	if conn.SyncCursor != nil {
		cursor = *conn.SyncCursor
	}

	total := &Result{Rejected: map[string]int{}}
	for {
		page, err := s.provider.SyncTransactions(ctx, token, cursor)
		if err != nil {
			return total, fmt.Errorf("failed to sync transactions for connection %s: %w", conn.ID, err)
		}

		res, err := s.Ingest(ctx, conn, page.Data)
		if err != nil {
			return total, err
		}
		merge(total, res)

		cursor = page.NextCursor
		if err := s.connections.RecordSync(ctx, conn.ID, cursor); err != nil {
			return total, err
		}
		if !page.HasMore {
			break
		}
	}
	return total, nil
}

// BackfillByItem resolves a provider item id to a connection and backfills
// it. This is the transactions.updated webhook path.
func (s *Service) BackfillByItem(ctx context.Context, provider, itemID string) (*Result, error) {
	conn, err := s.connections.GetByProviderItemID(ctx, provider, itemID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		log.Printf("Transactions update for unknown item %s ignored", itemID)
		return &Result{Rejected: map[string]int{}}, nil
	}
	return s.Backfill(ctx, conn.ID)
}

func merge(total, page *Result) {
	total.Accepted += page.Accepted
	total.Duplicates += page.Duplicates
	total.RoundUpTotal = roundup.RoundCents(total.RoundUpTotal + page.RoundUpTotal)
	total.SettlementTriggered = total.SettlementTriggered || page.SettlementTriggered
	for reason, n := range page.Rejected {
		total.Rejected[reason] += n
	}
}
