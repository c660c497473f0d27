package charity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	ErrCauseNotFound    = errors.New("cause not found")
	ErrCauseUnavailable = errors.New("cause does not belong to the organization or is inactive")
	ErrPayoutsDisabled  = errors.New("organization cannot receive payouts")
)

// SwitchCooldown is the minimum interval between charity switches on one
// config. It keeps donation statements legible and prevents gaming monthly
// totals across causes.
const SwitchCooldown = 30 * 24 * time.Hour

// Cause is a donation destination within an organization.
type Cause struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
}

// Directory looks up causes and organization payout eligibility in the
// charity directory service.
type Directory interface {
	GetCause(ctx context.Context, causeID string) (*Cause, error)
	GetOrganizationPayoutStatus(ctx context.Context, organizationID string) (bool, error)
}

// CooldownError reports a charity switch attempted before the cooldown
// elapsed.
type CooldownError struct {
	DaysRemaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("charity can be switched again in %d day(s)", e.DaysRemaining)
}

// ConfigStore is the slice of the round-up config repository the guard
// needs to record a switch.
type ConfigStore interface {
	SetDestination(ctx context.Context, id, organizationID, causeID string, switchedAt time.Time) error
}

// Guard validates donation destinations and enforces the switch cooldown.
type Guard struct {
	directory Directory
	configs   ConfigStore
	now       func() time.Time
}

// NewGuard creates a charity guard.
func NewGuard(directory Directory, configs ConfigStore) *Guard {
	return &Guard{directory: directory, configs: configs, now: time.Now}
}

// ValidateDestination checks that the cause exists, is active, belongs to
// the organization, and that the organization can receive payouts.
func (g *Guard) ValidateDestination(ctx context.Context, organizationID, causeID string) error {
	cause, err := g.directory.GetCause(ctx, causeID)
	if err != nil {
		return fmt.Errorf("failed to look up cause %s: %w", causeID, err)
	}
	if cause == nil {
		return ErrCauseNotFound
	}
	if !cause.Active || cause.OrganizationID != organizationID {
		return ErrCauseUnavailable
	}

	payoutsEnabled, err := g.directory.GetOrganizationPayoutStatus(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to check payout status for organization %s: %w", organizationID, err)
	}
	if !payoutsEnabled {
		return ErrPayoutsDisabled
	}
	return nil
}

// Switch changes a config's donation destination. A switch within the
// cooldown window fails with a CooldownError carrying the days left.
// Accumulated totals are untouched: they follow the config, not the cause.
func (g *Guard) Switch(ctx context.Context, configID string, lastSwitch *time.Time, organizationID, causeID string) error {
	if lastSwitch != nil {
		elapsed := g.now().Sub(*lastSwitch)
		if elapsed < SwitchCooldown {
			remaining := SwitchCooldown - elapsed
			days := int(remaining / (24 * time.Hour))
			if remaining%(24*time.Hour) > 0 {
				days++
			}
			return &CooldownError{DaysRemaining: days}
		}
	}

	if err := g.ValidateDestination(ctx, organizationID, causeID); err != nil {
		return err
	}

	switchedAt := g.now().UTC()
	if err := g.configs.SetDestination(ctx, configID, organizationID, causeID, switchedAt); err != nil {
		return fmt.Errorf("failed to switch destination for config %s: %w", configID, err)
	}

	log.Printf("Config %s switched to organization %s / cause %s", configID, organizationID, causeID)
	return nil
}
