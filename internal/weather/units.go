package weather

import (
	"fmt"
	"strings"

	"delaywatch/internal/types"
)

// quantity is the upstream {value, unitCode} pair. A null value decodes to nil.
type quantity struct {
	Value    *float64 `json:"value"`
	UnitCode string   `json:"unitCode"`
}

// converter maps a bare WMO unit code to a function producing the
// normalized unit.
type converter map[string]func(float64) float64

func identity(v float64) float64 { return v }

var (
	toFahrenheit = converter{
		"degC": func(c float64) float64 { return c*9/5 + 32 },
		"degF": identity,
		"K":    func(k float64) float64 { return (k-273.15)*9/5 + 32 },
	}
	toMPH = converter{
		"km_h-1": func(v float64) float64 { return v * 0.621371 },
		"m_s-1":  func(v float64) float64 { return v * 2.236936 },
		"mi_h-1": identity,
		"kn":     func(v float64) float64 { return v * 1.150779 },
	}
	toInches = converter{
		"mm": func(v float64) float64 { return v / 25.4 },
		"cm": func(v float64) float64 { return v / 2.54 },
		"m":  func(v float64) float64 { return v * 39.37008 },
		"in": identity,
	}
	toMiles = converter{
		"m":  func(v float64) float64 { return v / 1609.344 },
		"km": func(v float64) float64 { return v / 1.609344 },
		"mi": identity,
	}
	toInHg = converter{
		"Pa":   func(v float64) float64 { return v / 3386.389 },
		"hPa":  func(v float64) float64 { return v / 33.86389 },
		"inHg": identity,
	}
	toPercent = converter{
		"percent": identity,
	}
	toDegrees = converter{
		"degree_(angle)": identity,
	}
)

// bareUnit strips the namespace prefix the API puts on unit codes
// ("wmoUnit:degC", older "unit:degC").
func bareUnit(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		return code[i+1:]
	}
	return code
}

// normalize converts q with conv. An absent value stays nil. A present value
// with an unrecognized unit is a malformed response: guessing a unit would
// silently corrupt threshold checks.
func normalize(field string, q *quantity, conv converter) (*float64, error) {
	if q == nil || q.Value == nil {
		return nil, nil
	}
	fn, ok := conv[bareUnit(q.UnitCode)]
	if !ok {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamMalformed,
			fmt.Sprintf("unsupported unit %q for %s", q.UnitCode, field), nil,
			map[string]any{"field": field, "unit_code": q.UnitCode})
	}
	v := fn(*q.Value)
	return &v, nil
}
