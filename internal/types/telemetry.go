package types

// Telemetry metric names shared by the Prometheus and CloudWatch backends.
// All components MUST use these constants.
const (
	// Metric Names
	MetricMonitorRun        = "MonitorRun"
	MetricMonitorRunSeconds = "MonitorRunSeconds"
	MetricSiteOutcome       = "SiteOutcome"
	MetricDelayTransition   = "DelayTransition"
	MetricUpstreamLatency   = "UpstreamLatency"
	MetricUpstreamFailure   = "UpstreamFailure"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliveryFailed    = "DeliveryFailed"

	// Dimension Keys
	DimOutcome    = "Outcome"
	DimTransition = "Transition"
	DimSink       = "Sink"
	DimErrorCode  = "ErrorCode"

	// Metric Namespace
	MetricNamespace = "DelayWatch"
)
