package donation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	t.Run("donor covers fees", func(t *testing.T) {
		b := ComputeBreakdown(10.00, true)
		assert.InDelta(t, 10.00, b.BaseAmount, 1e-9)
		assert.InDelta(t, 0.59, b.FeeAmount, 1e-9) // 10.00*0.029 + 0.30
		assert.InDelta(t, 10.59, b.TotalCharged, 1e-9)
		assert.InDelta(t, 10.00, b.NetAmount, 1e-9)
	})

	t.Run("fee comes out of the donation", func(t *testing.T) {
		b := ComputeBreakdown(10.00, false)
		assert.InDelta(t, 0.59, b.FeeAmount, 1e-9)
		assert.InDelta(t, 10.00, b.TotalCharged, 1e-9)
		assert.InDelta(t, 9.41, b.NetAmount, 1e-9)
	})

	t.Run("parts reconcile in both modes", func(t *testing.T) {
		for _, base := range []float64{5.00, 7.77, 12.34, 100.01} {
			for _, cover := range []bool{true, false} {
				b := ComputeBreakdown(base, cover)
				assert.InDelta(t, b.TotalCharged, b.NetAmount+b.FeeAmount, 1e-9,
					"base=%.2f cover=%v", base, cover)
			}
		}
	})

	t.Run("fee rounds to cents", func(t *testing.T) {
		// 7.77*0.029 + 0.30 = 0.525...
		b := ComputeBreakdown(7.77, true)
		assert.InDelta(t, 0.53, b.FeeAmount, 1e-9)
		assert.InDelta(t, 8.30, b.TotalCharged, 1e-9)
	})
}

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, "2026-08", PeriodOf(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))

	// A local time late on the last day of the month can already be the next
	// month in UTC.
	loc := time.FixedZone("UTC-5", -5*60*60)
	assert.Equal(t, "2026-09", PeriodOf(time.Date(2026, 8, 31, 23, 30, 0, 0, loc)))
}
