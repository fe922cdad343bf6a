// Package delay holds the engine's decision logic: threshold evaluation,
// severity classification, cost accrual and the per-site delay lifecycle.
package delay

import (
	"delaywatch/internal/types"
)

// Evaluate returns the violated conditions in the fixed order of
// types.AllConditionKinds. Maxima are breached by a strictly greater value
// and minima by a strictly smaller one. Unknown observation values and
// unconfigured limits are skipped. The result is never nil.
func Evaluate(obs *types.Observation, th types.Thresholds) types.Violations {
	out := make(types.Violations, 0, len(types.AllConditionKinds))
	if obs == nil {
		return out
	}
	for _, kind := range types.AllConditionKinds {
		limit := th.Limit(kind)
		measured := obs.Measure(kind)
		if limit == nil || measured == nil {
			continue
		}
		if breached(kind, *measured, *limit) {
			out = append(out, types.Violation{
				Kind:      kind,
				Value:     *measured,
				Threshold: *limit,
				Unit:      kind.Unit(),
			})
		}
	}
	return out
}

func breached(kind types.ConditionKind, value, limit float64) bool {
	if kind.IsMinimum() {
		return value < limit
	}
	return value > limit
}
