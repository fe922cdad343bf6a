package types

// AlertType identifies which lifecycle transition an Alert describes.
type AlertType string

const (
	AlertNewDelay   AlertType = "new-delay"
	AlertContinuing AlertType = "continuing"
	AlertDelayEnded AlertType = "delay-ended"
)

// Severity is the routing level derived from a violation set.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// JobStatus is the outcome recorded in job history.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)
