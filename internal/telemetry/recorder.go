// Package telemetry records operational metrics for monitoring runs. The
// Recorder interface has Prometheus, CloudWatch and no-op backends chosen
// at startup.
package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"delaywatch/internal/external"
	"delaywatch/internal/types"
)

// Site outcomes reported by RecordSiteOutcome.
const (
	OutcomeEvaluated = "evaluated"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Recorder is implemented by every metrics backend. Failures inside a
// backend are logged, never returned.
type Recorder interface {
	RecordRun(ctx context.Context, status types.JobStatus, duration time.Duration)
	RecordSiteOutcome(ctx context.Context, outcome string, code types.ErrorCode)
	RecordTransition(ctx context.Context, transition string)
	RecordUpstream(ctx context.Context, status int, elapsed time.Duration, err error)
	RecordDelivery(ctx context.Context, sink string, err error)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordRun(context.Context, types.JobStatus, time.Duration) {}
func (Nop) RecordSiteOutcome(context.Context, string, types.ErrorCode) {}
func (Nop) RecordTransition(context.Context, string) {}
func (Nop) RecordUpstream(context.Context, int, time.Duration, error) {}
func (Nop) RecordDelivery(context.Context, string, error) {}

// UpstreamObserver adapts r to the HTTP client's per-attempt hook.
func UpstreamObserver(r Recorder) external.CallObserver {
	return func(status int, elapsed time.Duration, err error) {
		r.RecordUpstream(context.Background(), status, elapsed, err)
	}
}

// statusClass buckets an HTTP status as "2xx", "4xx" and so on; "none"
// means no response arrived.
func statusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "failure"
	}
}
