package donation

import (
	"context"
	"fmt"
	"log"
	"time"
)

// OrphanResolver determines the true outcome of a stranded charge request.
// Satisfied by the settlement orchestrator.
type OrphanResolver interface {
	ResolveOrphan(ctx context.Context, d *Donation) error
}

// Reconciler cleans up donations stranded by crashes or processor outages.
type Reconciler struct {
	repo     Repository
	resolver OrphanResolver
	timeout  time.Duration
	now      func() time.Time
}

// NewReconciler creates a reconciler. timeout is how long a donation may sit
// pending before it is considered orphaned.
func NewReconciler(repo Repository, resolver OrphanResolver, timeout time.Duration) *Reconciler {
	return &Reconciler{repo: repo, resolver: resolver, timeout: timeout, now: time.Now}
}

// RecoverOrphans resolves pending donations older than the timeout. A
// donation can be stranded pending by a crash before its charge was requested
// or by a charge request that timed out without an answer, so each orphan is
// resolved against the processor rather than failed blindly: the processor
// may already hold a live charge under the donation's idempotency key.
func (r *Reconciler) RecoverOrphans(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.timeout)
	orphans, err := r.repo.ListOrphanedPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned donations: %w", err)
	}

	recovered := 0
	for _, d := range orphans {
		if err := r.resolver.ResolveOrphan(ctx, d); err != nil {
			log.Printf("Failed to resolve orphaned donation %s: %v", d.ID, err)
			continue
		}
		log.Printf("Resolved orphaned donation %s (config %s, now %s)", d.ID, d.ConfigID, d.Status)
		recovered++
	}
	return recovered, nil
}
