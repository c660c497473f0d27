package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JobProvider builds the batch of jobs for a scheduled run.
type JobProvider func(ctx context.Context) ([]Job, error)

// Config holds the scheduler configuration.
type Config struct {
	// ScheduleTime is the daily run time in "HH:MM" 24h format (UTC).
	ScheduleTime string
	// RunOnStartup triggers a run immediately when the scheduler starts.
	RunOnStartup bool
}

// Scheduler fires a batch of jobs into the worker pool once a day.
type Scheduler struct {
	pool     *WorkerPool
	provider JobProvider
	hour     int
	minute   int
	runOnce  bool

	mu      sync.Mutex
	lastRun string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler that submits the provider's jobs to the
// pool at the configured time each day.
func NewScheduler(pool *WorkerPool, provider JobProvider, cfg Config) (*Scheduler, error) {
	hour, minute, err := parseScheduleTime(cfg.ScheduleTime)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pool:     pool,
		provider: provider,
		hour:     hour,
		minute:   minute,
		runOnce:  cfg.RunOnStartup,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

func parseScheduleTime(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule time %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule minute in %q", s)
	}
	return hour, minute, nil
}

// Start begins the scheduling loop in a background goroutine.
func (s *Scheduler) Start() {
	log.Printf("Scheduler started, daily run at %02d:%02d UTC", s.hour, s.minute)

	go func() {
		defer close(s.done)

		if s.runOnce {
			log.Println("Scheduler: running batch on startup")
			s.runBatch()
		}

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				log.Println("Scheduler: stopping")
				return
			case now := <-ticker.C:
				if s.shouldRun(now.UTC()) {
					s.runBatch()
				}
			}
		}
	}()
}

// shouldRun reports whether the scheduled minute has arrived and the batch
// has not yet run today.
func (s *Scheduler) shouldRun(now time.Time) bool {
	if now.Hour() != s.hour || now.Minute() != s.minute {
		return false
	}

	key := now.Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == key {
		return false
	}
	s.lastRun = key
	return true
}

// runBatch asks the provider for the day's jobs and submits them.
func (s *Scheduler) runBatch() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	jobs, err := s.provider(ctx)
	if err != nil {
		log.Printf("Scheduler: failed to build job batch: %v", err)
		return
	}
	if len(jobs) == 0 {
		log.Println("Scheduler: no jobs to run")
		return
	}

	log.Printf("Scheduler: submitting %d jobs", len(jobs))
	s.pool.SubmitBatch(jobs)
}

// TriggerNow submits the batch immediately, outside the daily schedule.
func (s *Scheduler) TriggerNow() {
	log.Println("Scheduler: manual trigger")
	s.runBatch()
}

// NextScheduledTime returns the next time the daily batch will fire.
func (s *Scheduler) NextScheduledTime() time.Time {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Stop halts the scheduling loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
	log.Println("Scheduler: stopped")
}
