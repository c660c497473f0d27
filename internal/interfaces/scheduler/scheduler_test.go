package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundup/internal/domain/donation"
)

func TestParseScheduleTime(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		hour, minute, err := parseScheduleTime("03:30")
		require.NoError(t, err)
		assert.Equal(t, 3, hour)
		assert.Equal(t, 30, minute)
	})

	t.Run("invalid formats", func(t *testing.T) {
		for _, input := range []string{"", "330", "25:00", "10:60", "aa:bb"} {
			_, _, err := parseScheduleTime(input)
			assert.Error(t, err, input)
		}
	})
}

func TestShouldRun(t *testing.T) {
	pool := NewWorkerPool(1, 0, 1)
	s, err := NewScheduler(pool, func(ctx context.Context) ([]Job, error) { return nil, nil }, Config{ScheduleTime: "02:00"})
	require.NoError(t, err)

	at := time.Date(2026, 8, 30, 2, 0, 10, 0, time.UTC)

	assert.True(t, s.shouldRun(at), "first hit of the scheduled minute runs")
	assert.False(t, s.shouldRun(at.Add(20*time.Second)), "same day does not run twice")
	assert.False(t, s.shouldRun(at.Add(time.Hour)), "off-schedule time does not run")
	assert.True(t, s.shouldRun(at.Add(24*time.Hour)), "next day runs again")
}

type stubSettler struct {
	calls []string
	err   error
}

func (s *stubSettler) Settle(ctx context.Context, configID string) (*donation.Donation, error) {
	s.calls = append(s.calls, configID)
	return nil, s.err
}

func TestSettlementJob(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing to settle is not an error", func(t *testing.T) {
		settler := &stubSettler{err: donation.ErrNothingToSettle}
		job := NewSettlementJob("cfg-1", settler)

		assert.NoError(t, job.Execute(ctx))
		assert.Equal(t, []string{"cfg-1"}, settler.calls)
		assert.Equal(t, "cfg-1", job.Key())
	})

	t.Run("real failures propagate", func(t *testing.T) {
		settler := &stubSettler{err: errors.New("processor down")}
		job := NewSettlementJob("cfg-1", settler)

		assert.Error(t, job.Execute(ctx))
	})
}
