// Package notifications turns delay lifecycle transitions into persisted
// alerts and outbound payloads, and fans those payloads out to delivery
// sinks.
package notifications

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"delaywatch/internal/types"
)

// Payload is the structured notification sent to every sink. Field names
// are a public contract with downstream consumers.
type Payload struct {
	AlertID    string             `json:"alert_id"`
	SiteID     string             `json:"site_id"`
	SiteName   string             `json:"site_name"`
	AlertType  types.AlertType    `json:"alert_type"`
	Severity   types.Severity     `json:"severity"`
	Message    string             `json:"message"`
	Location   *types.Location    `json:"location,omitempty"`
	Weather    *types.Observation `json:"weather,omitempty"`
	Violations types.Violations   `json:"violations"`
	Delay      *DelaySnapshot     `json:"delay,omitempty"`
	Timestamp  string             `json:"timestamp"`
}

// DelaySnapshot is the delay/cost portion of a payload.
type DelaySnapshot struct {
	ID            string     `json:"id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	LaborCost     float64    `json:"labor_cost"`
	OverheadCost  float64    `json:"overhead_cost"`
	TotalCost     float64    `json:"total_cost"`
}

// Marshal encodes the payload as JSON.
func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ParsePayload decodes a payload produced by Marshal. Values and units are
// taken exactly as written; no conversion happens on the way back in.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse notification payload: %w", err)
	}
	if p.Violations == nil {
		p.Violations = types.Violations{}
	}
	return &p, nil
}

// BuildPayload assembles the outbound payload for an alert.
func BuildPayload(site *types.Site, alert *types.Alert, d *types.DelayEvent, obs *types.Observation) *Payload {
	p := &Payload{
		AlertID:    alert.ID,
		SiteID:     site.ID,
		SiteName:   site.Name,
		AlertType:  alert.Type,
		Severity:   alert.Severity,
		Message:    alert.Message,
		Location:   site.Location,
		Weather:    obs,
		Violations: alert.Violations,
		Timestamp:  alert.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.Violations == nil {
		p.Violations = types.Violations{}
	}
	if d != nil {
		p.Delay = &DelaySnapshot{
			ID:            d.ID,
			StartTime:     d.StartTime,
			EndTime:       d.EndTime,
			DurationHours: d.DurationHours,
			LaborCost:     d.LaborCost,
			OverheadCost:  d.OverheadCost,
			TotalCost:     d.TotalCost,
		}
	}
	return p
}

// ComposeMessage renders the human-readable summary for an alert. Violations
// are listed in evaluation order.
func ComposeMessage(alertType types.AlertType, siteName string, d *types.DelayEvent, vs types.Violations, now time.Time) string {
	switch alertType {
	case types.AlertNewDelay:
		return fmt.Sprintf("Work delay started at %s: %s", siteName, describeViolations(vs))
	case types.AlertContinuing:
		elapsed := 0.0
		if d != nil {
			elapsed = now.Sub(d.StartTime).Hours()
		}
		return fmt.Sprintf("Work delay continuing at %s (%.1f h so far): %s", siteName, elapsed, describeViolations(vs))
	case types.AlertDelayEnded:
		if d != nil && d.DurationHours != nil {
			return fmt.Sprintf("Work delay ended at %s after %.1f hours, total cost $%.2f",
				siteName, *d.DurationHours, d.TotalCost)
		}
		return fmt.Sprintf("Work delay ended at %s", siteName)
	}
	return siteName
}

func describeViolations(vs types.Violations) string {
	if len(vs) == 0 {
		return "conditions outside configured limits"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		verb := "exceeds limit"
		if v.Kind.IsMinimum() {
			verb = "below minimum"
		}
		parts[i] = fmt.Sprintf("%s %.1f %s %s %.1f %s", v.Kind.Label(), v.Value, v.Unit, verb, v.Threshold, v.Unit)
	}
	return strings.Join(parts, "; ")
}
