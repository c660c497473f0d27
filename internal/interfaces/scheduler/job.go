package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
// Different job types cover settlement sweeps, transaction backfills and
// periodic maintenance.
type Job interface {
	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context) error

	// Key returns the entity this job operates on (config id, connection id).
	// Used for logging and tracking.
	Key() string

	// Description returns a human-readable description of the job.
	// Used for logging purposes.
	Description() string
}
