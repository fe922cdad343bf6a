package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"delaywatch/internal/types"
)

const promNamespace = "delaywatch"

// Prometheus holds the counters and histograms scraped from /metrics.
type Prometheus struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	SiteOutcomes    *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency prometheus.Histogram
	Deliveries      *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration panics.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "monitor_runs_total",
			Help:      "Monitoring runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "monitor_run_duration_seconds",
			Help:      "Wall-clock duration of a monitoring run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		SiteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "site_outcomes_total",
			Help:      "Per-site evaluation outcomes, with the error code for failures.",
		}, []string{"outcome", "code"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "delay_transitions_total",
			Help:      "Delay lifecycle transitions.",
		}, []string{"transition"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "weather_requests_total",
			Help:      "Weather API request attempts by status class and result.",
		}, []string{"status_class", "result"}),
		UpstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "weather_request_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "alert_deliveries_total",
			Help:      "Alert deliveries by sink and result.",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		m.Runs,
		m.RunDuration,
		m.SiteOutcomes,
		m.Transitions,
		m.UpstreamCalls,
		m.UpstreamLatency,
		m.Deliveries,
	)
	return m
}

func (m *Prometheus) RecordRun(_ context.Context, status types.JobStatus, duration time.Duration) {
	m.Runs.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

func (m *Prometheus) RecordSiteOutcome(_ context.Context, outcome string, code types.ErrorCode) {
	m.SiteOutcomes.WithLabelValues(outcome, string(code)).Inc()
}

func (m *Prometheus) RecordTransition(_ context.Context, transition string) {
	m.Transitions.WithLabelValues(transition).Inc()
}

func (m *Prometheus) RecordUpstream(_ context.Context, status int, elapsed time.Duration, err error) {
	m.UpstreamCalls.WithLabelValues(statusClass(status), result(err)).Inc()
	m.UpstreamLatency.Observe(elapsed.Seconds())
}

func (m *Prometheus) RecordDelivery(_ context.Context, sink string, err error) {
	m.Deliveries.WithLabelValues(sink, result(err)).Inc()
}
