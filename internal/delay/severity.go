package delay

import (
	"delaywatch/internal/types"
)

const (
	criticalRatio = 2.0
	highRatio     = 1.5
)

// Classify derives an alert severity. Rules apply in order:
//
//	3+ violations           -> critical
//	any ratio > 2.0         -> critical
//	any ratio > 1.5         -> high
//	exactly 2 violations    -> high
//	exactly 1 violation     -> medium
//	none                    -> low
func Classify(vs types.Violations) types.Severity {
	if len(vs) >= 3 {
		return types.SeverityCritical
	}
	maxRatio := 0.0
	for _, v := range vs {
		if r := v.Ratio(); r > maxRatio {
			maxRatio = r
		}
	}
	switch {
	case maxRatio > criticalRatio:
		return types.SeverityCritical
	case maxRatio > highRatio:
		return types.SeverityHigh
	case len(vs) == 2:
		return types.SeverityHigh
	case len(vs) == 1:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}
