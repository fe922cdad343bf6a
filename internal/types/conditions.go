package types

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
)

// ConditionKind identifies one of the environmental conditions a site can be
// limited on. The set is closed; AllConditionKinds lists every member in the
// order violations are reported.
type ConditionKind string

const (
	ConditionTemperatureLow  ConditionKind = "temperature-low"
	ConditionTemperatureHigh ConditionKind = "temperature-high"
	ConditionWindSpeed       ConditionKind = "wind-speed"
	ConditionPrecipitation   ConditionKind = "precipitation"
	ConditionVisibility      ConditionKind = "visibility"
)

// AllConditionKinds is the fixed check order. Severity classification and
// alert messages depend on it, so it must not be reordered.
var AllConditionKinds = [...]ConditionKind{
	ConditionTemperatureLow,
	ConditionTemperatureHigh,
	ConditionWindSpeed,
	ConditionPrecipitation,
	ConditionVisibility,
}

// Normalized units.
const (
	UnitFahrenheit = "°F"
	UnitMPH        = "mph"
	UnitInches     = "in"
	UnitMiles      = "mi"
)

// Valid reports whether k is a member of the closed set.
func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionTemperatureLow, ConditionTemperatureHigh, ConditionWindSpeed,
		ConditionPrecipitation, ConditionVisibility:
		return true
	}
	return false
}

// Unit returns the normalized unit values of this kind are expressed in.
func (k ConditionKind) Unit() string {
	switch k {
	case ConditionTemperatureLow, ConditionTemperatureHigh:
		return UnitFahrenheit
	case ConditionWindSpeed:
		return UnitMPH
	case ConditionPrecipitation:
		return UnitInches
	case ConditionVisibility:
		return UnitMiles
	}
	return ""
}

// IsMinimum reports whether the limit is a lower bound (a violation is a
// value strictly below it) rather than an upper bound.
func (k ConditionKind) IsMinimum() bool {
	return k == ConditionTemperatureLow || k == ConditionVisibility
}

// Label is the human-readable name used in alert messages.
func (k ConditionKind) Label() string {
	switch k {
	case ConditionTemperatureLow, ConditionTemperatureHigh:
		return "temperature"
	case ConditionWindSpeed:
		return "wind speed"
	case ConditionPrecipitation:
		return "precipitation"
	case ConditionVisibility:
		return "visibility"
	}
	return string(k)
}

// Thresholds holds a site's optional limits. A nil field means the site does
// not restrict work on that condition.
type Thresholds struct {
	MinTemperatureF    *float64 `json:"min_temperature_f,omitempty"`
	MaxTemperatureF    *float64 `json:"max_temperature_f,omitempty"`
	MaxWindSpeedMPH    *float64 `json:"max_wind_speed_mph,omitempty"`
	MaxPrecipitationIn *float64 `json:"max_precipitation_in,omitempty"`
	MinVisibilityMi    *float64 `json:"min_visibility_mi,omitempty"`
}

// Limit returns the configured limit for kind, or nil when none is set.
func (t Thresholds) Limit(kind ConditionKind) *float64 {
	switch kind {
	case ConditionTemperatureLow:
		return t.MinTemperatureF
	case ConditionTemperatureHigh:
		return t.MaxTemperatureF
	case ConditionWindSpeed:
		return t.MaxWindSpeedMPH
	case ConditionPrecipitation:
		return t.MaxPrecipitationIn
	case ConditionVisibility:
		return t.MinVisibilityMi
	}
	return nil
}

// IsEmpty reports whether no limit is configured at all.
func (t Thresholds) IsEmpty() bool {
	for _, k := range AllConditionKinds {
		if t.Limit(k) != nil {
			return false
		}
	}
	return true
}

// Validate checks the limits are internally consistent.
func (t Thresholds) Validate() error {
	for _, k := range AllConditionKinds {
		v := t.Limit(k)
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return NewAppErrorWithDetails(ErrCodeValidationInvalidCondition,
				"threshold must be a finite number", nil, map[string]any{"condition": string(k)})
		}
		if k != ConditionTemperatureLow && k != ConditionTemperatureHigh && *v < 0 {
			return NewAppErrorWithDetails(ErrCodeValidationInvalidCondition,
				"threshold must not be negative", nil, map[string]any{"condition": string(k)})
		}
	}
	if t.MinTemperatureF != nil && t.MaxTemperatureF != nil && *t.MinTemperatureF >= *t.MaxTemperatureF {
		return NewAppError(ErrCodeValidationInvalidCondition,
			fmt.Sprintf("minimum temperature %.1f must be below maximum %.1f", *t.MinTemperatureF, *t.MaxTemperatureF), nil)
	}
	return nil
}

// Violation records a single threshold breach. Value and Threshold are in
// the normalized Unit and are never re-converted downstream.
type Violation struct {
	Kind      ConditionKind `json:"condition"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Unit      string        `json:"unit"`
}

// Ratio is how far the measurement is past its limit. Maximum bounds use
// value/threshold; minimum bounds use threshold/value. A measurement at or
// below zero against a positive minimum yields +Inf, as does any positive
// measurement against a zero maximum. A non-positive limit has no meaningful
// ratio and reports 1.
func (v Violation) Ratio() float64 {
	if v.Kind.IsMinimum() {
		switch {
		case v.Threshold <= 0:
			return 1
		case v.Value <= 0:
			return math.Inf(1)
		default:
			return v.Threshold / v.Value
		}
	}
	switch {
	case v.Threshold < 0:
		return 1
	case v.Threshold == 0:
		if v.Value > 0 {
			return math.Inf(1)
		}
		return 1
	default:
		return v.Value / v.Threshold
	}
}

// Violations is the ordered result of one evaluation. Stored as JSONB.
type Violations []Violation

var (
	_ sql.Scanner   = (*Violations)(nil)
	_ driver.Valuer = Violations(nil)
	_ sql.Scanner   = (*Thresholds)(nil)
	_ driver.Valuer = Thresholds{}
)

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (vs *Violations) Scan(value interface{}) error {
	if value == nil {
		*vs = nil
		return nil
	}
	return scanJSONB(vs, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (vs Violations) Value() (driver.Value, error) {
	if vs == nil {
		return []byte("[]"), nil
	}
	return valueJSONB(vs)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (t *Thresholds) Scan(value interface{}) error {
	return scanJSONB(t, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (t Thresholds) Value() (driver.Value, error) {
	return valueJSONB(t)
}
