package delay

import (
	"fmt"
	"math"
	"time"

	"delaywatch/internal/types"
)

// StandardShiftHours is the shift length an open delay is assumed to consume.
const StandardShiftHours = 8.0

// Rates are the inputs to cost accrual.
type Rates struct {
	CrewSize      int
	HourlyRate    float64
	DailyOverhead float64
}

// RatesFromSite reads the current rates off a site.
func RatesFromSite(s *types.Site) Rates {
	return Rates{CrewSize: s.CrewSize, HourlyRate: s.HourlyRate, DailyOverhead: s.DailyOverhead}
}

// RatesFromDelay reads the rates snapshotted on a delay event.
func RatesFromDelay(d *types.DelayEvent) Rates {
	return Rates{CrewSize: d.CrewSize, HourlyRate: d.HourlyRate, DailyOverhead: d.DailyOverhead}
}

// EstimateOpenCost is the provisional figure for an open delay: a full
// standard shift of labor plus one day of overhead.
func EstimateOpenCost(r Rates) types.CostBreakdown {
	return breakdown(
		float64(r.CrewSize)*r.HourlyRate*StandardShiftHours,
		r.DailyOverhead,
	)
}

// FinalizeCost prorates labor and overhead to the actual duration. A
// duration that is not strictly positive indicates a clock or ordering
// defect and is rejected rather than clamped.
func FinalizeCost(r Rates, durationHours float64) (types.CostBreakdown, error) {
	if err := checkDuration(durationHours); err != nil {
		return types.CostBreakdown{}, err
	}
	return breakdown(
		float64(r.CrewSize)*r.HourlyRate*durationHours,
		durationHours/StandardShiftHours*r.DailyOverhead,
	), nil
}

// DurationHours is (end - start) in fractional hours, rejected unless positive.
func DurationHours(start, end time.Time) (float64, error) {
	h := end.Sub(start).Hours()
	if err := checkDuration(h); err != nil {
		return 0, err
	}
	return h, nil
}

func checkDuration(h float64) error {
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalInvalidDuration,
			fmt.Sprintf("delay duration must be positive, got %v hours", h), nil,
			map[string]any{"duration_hours": h})
	}
	return nil
}

func breakdown(labor, overhead float64) types.CostBreakdown {
	labor = roundCents(labor)
	overhead = roundCents(overhead)
	return types.CostBreakdown{
		Labor:    labor,
		Overhead: overhead,
		Total:    roundCents(labor + overhead),
	}
}

// roundCents rounds half away from zero to two decimals.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
