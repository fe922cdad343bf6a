package delay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delaywatch/internal/types"
)

func ptr(v float64) *float64 { return &v }

func TestEvaluate_FixedOrderAndStrictBounds(t *testing.T) {
	th := types.Thresholds{
		MinTemperatureF:    ptr(32),
		MaxTemperatureF:    ptr(95),
		MaxWindSpeedMPH:    ptr(25),
		MaxPrecipitationIn: ptr(0.5),
		MinVisibilityMi:    ptr(1),
	}
	obs := &types.Observation{
		TemperatureF:    ptr(20),
		WindSpeedMPH:    ptr(30),
		PrecipitationIn: ptr(0.8),
		VisibilityMi:    ptr(0.25),
	}

	got := Evaluate(obs, th)
	require.Len(t, got, 4)
	assert.Equal(t, types.ConditionTemperatureLow, got[0].Kind)
	assert.Equal(t, types.ConditionWindSpeed, got[1].Kind)
	assert.Equal(t, types.ConditionPrecipitation, got[2].Kind)
	assert.Equal(t, types.ConditionVisibility, got[3].Kind)
	assert.Equal(t, types.Violation{Kind: types.ConditionWindSpeed, Value: 30, Threshold: 25, Unit: types.UnitMPH}, got[1])

	// Values exactly at the limit do not breach.
	atLimit := &types.Observation{
		TemperatureF:    ptr(32),
		WindSpeedMPH:    ptr(25),
		PrecipitationIn: ptr(0.5),
		VisibilityMi:    ptr(1),
	}
	assert.Empty(t, Evaluate(atLimit, th))

	// Same inputs, same output.
	assert.Equal(t, got, Evaluate(obs, th))
}

func TestEvaluate_UnknownValuesAndEmptyThresholds(t *testing.T) {
	obs := &types.Observation{WindSpeedMPH: ptr(80), TemperatureF: nil}

	none := Evaluate(obs, types.Thresholds{})
	assert.NotNil(t, none)
	assert.Empty(t, none)

	// Unknown temperature never counts as zero against a minimum.
	got := Evaluate(obs, types.Thresholds{MinTemperatureF: ptr(32)})
	assert.Empty(t, got)

	assert.Empty(t, Evaluate(nil, types.Thresholds{MaxWindSpeedMPH: ptr(1)}))
}

func TestEstimateOpenCost(t *testing.T) {
	c := EstimateOpenCost(Rates{CrewSize: 4, HourlyRate: 50, DailyOverhead: 200})
	assert.Equal(t, types.CostBreakdown{Labor: 1600, Overhead: 200, Total: 1800}, c)
}

func TestFinalizeCost(t *testing.T) {
	c, err := FinalizeCost(Rates{CrewSize: 4, HourlyRate: 50, DailyOverhead: 200}, 4)
	require.NoError(t, err)
	assert.Equal(t, types.CostBreakdown{Labor: 800, Overhead: 100, Total: 900}, c)

	// Fractional durations round to cents.
	c, err = FinalizeCost(Rates{CrewSize: 3, HourlyRate: 33.33, DailyOverhead: 100}, 1.0/3)
	require.NoError(t, err)
	assert.Equal(t, 33.33, c.Labor)
	assert.Equal(t, 4.17, c.Overhead)
	assert.Equal(t, 37.5, c.Total)
}

func TestFinalizeCost_RejectsNonPositiveDuration(t *testing.T) {
	for _, h := range []float64{0, -1, math.NaN()} {
		_, err := FinalizeCost(Rates{CrewSize: 1, HourlyRate: 1}, h)
		assert.True(t, types.IsCode(err, types.ErrCodeInternalInvalidDuration), "hours=%v", h)
	}
}

func TestDurationHours(t *testing.T) {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	h, err := DurationHours(start, start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3.0, h)

	_, err = DurationHours(start, start)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalInvalidDuration))
	_, err = DurationHours(start, start.Add(-time.Minute))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	wind := func(value float64) types.Violation {
		return types.Violation{Kind: types.ConditionWindSpeed, Value: value, Threshold: 20, Unit: types.UnitMPH}
	}
	rain := types.Violation{Kind: types.ConditionPrecipitation, Value: 0.6, Threshold: 0.5, Unit: types.UnitInches}
	cold := types.Violation{Kind: types.ConditionTemperatureLow, Value: 30, Threshold: 32, Unit: types.UnitFahrenheit}

	tests := []struct {
		name string
		in   types.Violations
		want types.Severity
	}{
		{"none", nil, types.SeverityLow},
		{"single mild", types.Violations{wind(22)}, types.SeverityMedium},
		{"single at exactly 1.5x", types.Violations{wind(30)}, types.SeverityMedium},
		{"single above 1.5x", types.Violations{wind(31)}, types.SeverityHigh},
		{"single at exactly 2x", types.Violations{wind(40)}, types.SeverityHigh},
		{"single 2.5x", types.Violations{wind(50)}, types.SeverityCritical},
		{"two mild", types.Violations{wind(22), rain}, types.SeverityHigh},
		{"three mild", types.Violations{cold, wind(22), rain}, types.SeverityCritical},
		{"minimum bound inverted ratio", types.Violations{{Kind: types.ConditionVisibility, Value: 0.2, Threshold: 1, Unit: types.UnitMiles}}, types.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestSiteLocker_ReleasesEntries(t *testing.T) {
	l := NewSiteLocker()
	unlockA := l.Lock("a")
	unlockB := l.Lock("b")
	assert.Equal(t, 2, l.Len())

	done := make(chan struct{})
	go func() {
		u := l.Lock("a")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second holder acquired a held site lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-done
	unlockB()
	assert.Equal(t, 0, l.Len())
}
