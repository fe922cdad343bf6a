package types

import (
	"time"
)

// Location is a geographic point with an optional display label.
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name,omitempty"`
}

// Site is a monitored construction project. The engine only reads sites.
type Site struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Location      *Location  `json:"location,omitempty"`
	CrewSize      int        `json:"crew_size"`
	HourlyRate    float64    `json:"hourly_rate"`
	DailyOverhead float64    `json:"daily_overhead"`
	Thresholds    Thresholds `json:"thresholds"`
	Active        bool       `json:"active"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether the site can be located for monitoring.
func (s *Site) HasCoordinates() bool {
	return s.Location != nil
}

// Monitorable reports whether the site is eligible for violation detection.
func (s *Site) Monitorable() bool {
	return s.HasCoordinates() && !s.Thresholds.IsEmpty()
}

// Station is the observing station a site's readings come from.
type Station struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceMi float64 `json:"distance_mi"`
}

// Observation is a normalized weather reading. Every numeric field is nil
// when the station did not report it; nil means unknown, never zero.
type Observation struct {
	Timestamp        time.Time `json:"timestamp"`
	TemperatureF     *float64  `json:"temperature_f"`
	WindSpeedMPH     *float64  `json:"wind_speed_mph"`
	WindGustMPH      *float64  `json:"wind_gust_mph"`
	WindDirectionDeg *float64  `json:"wind_direction_deg"`
	PrecipitationIn  *float64  `json:"precipitation_in"`
	HumidityPct      *float64  `json:"humidity_pct"`
	VisibilityMi     *float64  `json:"visibility_mi"`
	PressureInHg     *float64  `json:"pressure_inhg"`
	Description      string    `json:"description"`
	Station          Station   `json:"station"`
}

// Measure returns the observed value relevant to kind, or nil if unknown.
func (o *Observation) Measure(kind ConditionKind) *float64 {
	switch kind {
	case ConditionTemperatureLow, ConditionTemperatureHigh:
		return o.TemperatureF
	case ConditionWindSpeed:
		return o.WindSpeedMPH
	case ConditionPrecipitation:
		return o.PrecipitationIn
	case ConditionVisibility:
		return o.VisibilityMi
	}
	return nil
}

// WeatherReading is an Observation persisted against the site it was
// fetched for.
type WeatherReading struct {
	ID          string
	SiteID      string
	Observation Observation
	RecordedAt  time.Time
}

// CostBreakdown is a labor/overhead cost figure in currency units, rounded to cents.
type CostBreakdown struct {
	Labor    float64 `json:"labor_cost"`
	Overhead float64 `json:"overhead_cost"`
	Total    float64 `json:"total_cost"`
}

// DelayEvent records one continuous period during which a site breached at
// least one threshold. EndTime and DurationHours are nil while open.
// CrewSize, HourlyRate and DailyOverhead are snapshotted at creation.
type DelayEvent struct {
	ID            string     `json:"id"`
	SiteID        string     `json:"site_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	Cause         Violations `json:"cause"`
	CrewSize      int        `json:"crew_size"`
	HourlyRate    float64    `json:"hourly_rate"`
	DailyOverhead float64    `json:"daily_overhead"`
	LaborCost     float64    `json:"labor_cost"`
	OverheadCost  float64    `json:"overhead_cost"`
	TotalCost     float64    `json:"total_cost"`
	AutoGenerated bool       `json:"auto_generated"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsOpen reports whether the delay has not been closed yet.
func (d *DelayEvent) IsOpen() bool {
	return d.EndTime == nil
}

// Cost returns the cost fields as a breakdown.
func (d *DelayEvent) Cost() CostBreakdown {
	return CostBreakdown{Labor: d.LaborCost, Overhead: d.OverheadCost, Total: d.TotalCost}
}

// SetCost copies a breakdown into the cost fields.
func (d *DelayEvent) SetCost(c CostBreakdown) {
	d.LaborCost = c.Labor
	d.OverheadCost = c.Overhead
	d.TotalCost = c.Total
}

// Alert is the immutable audit record of one lifecycle transition.
type Alert struct {
	ID           string      `json:"id"`
	SiteID       string      `json:"site_id"`
	DelayEventID string      `json:"delay_event_id"`
	Type         AlertType   `json:"type"`
	Severity     Severity    `json:"severity"`
	Message      string      `json:"message"`
	Observation  Observation `json:"observation"`
	Violations   Violations  `json:"violations"`
	CreatedAt    time.Time   `json:"created_at"`
}
