package types

import (
	"fmt"
	"math"
	"net/url"
)

// Coordinate bounds.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// ValidateLocation checks that coordinates are on the globe.
func ValidateLocation(loc *Location) error {
	if loc == nil {
		return NewAppError(ErrCodeValidationMissingField, "site has no coordinates", nil)
	}
	if loc.Lat < MinLat || loc.Lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat,
			fmt.Sprintf("latitude %f must be between %.0f and %.0f", loc.Lat, MinLat, MaxLat), nil)
	}
	if loc.Lon < MinLon || loc.Lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon,
			fmt.Sprintf("longitude %f must be between %.0f and %.0f", loc.Lon, MinLon, MaxLon), nil)
	}
	return nil
}

// Validate checks the parts of a site the engine depends on.
func (s *Site) Validate() error {
	if s.ID == "" {
		return NewAppError(ErrCodeValidationMissingField, "site id is required", nil)
	}
	if err := ValidateLocation(s.Location); err != nil {
		return err
	}
	if s.CrewSize < 0 {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidCrewSize, "crew size must not be negative", nil,
			map[string]any{"site_id": s.ID, "crew_size": s.CrewSize})
	}
	if err := validateRate("hourly_rate", s.HourlyRate); err != nil {
		return err
	}
	if err := validateRate("daily_overhead", s.DailyOverhead); err != nil {
		return err
	}
	return s.Thresholds.Validate()
}

func validateRate(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidRate,
			fmt.Sprintf("%s must be a non-negative finite amount", field), nil,
			map[string]any{"field": field})
	}
	return nil
}

// ValidateWebhookURL enforces an absolute https URL. Plain http is allowed
// only when allowInsecure is set (local development).
func ValidateWebhookURL(raw string, allowInsecure bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return NewAppError(ErrCodeValidationInvalidWebhook, "webhook url must be absolute", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
	}
	return NewAppError(ErrCodeValidationInvalidWebhook,
		fmt.Sprintf("webhook url scheme %q is not allowed", u.Scheme), nil)
}
