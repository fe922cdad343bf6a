package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"delaywatch/internal/delay"
	"delaywatch/internal/types"
)

// Sink delivers a payload to one external destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, p *Payload) error
}

// AlertStore persists alert records.
type AlertStore interface {
	InsertAlert(ctx context.Context, a *types.Alert) error
}

// DeliveryRecorder counts sink outcomes.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, sink string, err error)
}

// DispatcherConfig holds the Dispatcher's dependencies.
type DispatcherConfig struct {
	Alerts  AlertStore
	Sinks   []Sink
	Metrics DeliveryRecorder
	Clock   types.Clock
	Logger  *slog.Logger
	// SinkTimeout bounds each individual Send. Zero means no extra bound.
	SinkTimeout time.Duration
	NewID       func() string
}

// Dispatcher records an Alert for every lifecycle transition and hands the
// matching payload to each sink. Sink failures are logged and counted but
// never returned: the transition they describe is already persisted.
type Dispatcher struct {
	alerts      AlertStore
	sinks       []Sink
	metrics     DeliveryRecorder
	clock       types.Clock
	logger      *slog.Logger
	sinkTimeout time.Duration
	newID       func() string
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		alerts:      cfg.Alerts,
		sinks:       cfg.Sinks,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		sinkTimeout: cfg.SinkTimeout,
		newID:       cfg.NewID,
	}
	if d.clock == nil {
		d.clock = types.RealClock{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

// Dispatch persists the alert for tr and delivers it. It returns (nil, nil)
// for TransitionNone. Only the alert insert can fail the call.
func (d *Dispatcher) Dispatch(ctx context.Context, site *types.Site, tr delay.Transition, obs *types.Observation) (*types.Alert, error) {
	alertType := tr.Kind.AlertType()
	if alertType == "" {
		return nil, nil
	}

	now := d.clock.Now()
	alert := &types.Alert{
		ID:         d.newID(),
		SiteID:     site.ID,
		Type:       alertType,
		Severity:   delay.Classify(tr.Violations),
		Message:    ComposeMessage(alertType, site.Name, tr.Delay, tr.Violations, now),
		Violations: tr.Violations,
		CreatedAt:  now,
	}
	if tr.Delay != nil {
		alert.DelayEventID = tr.Delay.ID
	}
	if obs != nil {
		alert.Observation = *obs
	}

	if err := d.alerts.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert %s alert: %w", alertType, err)
	}

	payload := BuildPayload(site, alert, tr.Delay, obs)
	for _, sink := range d.sinks {
		d.deliver(ctx, sink, payload)
	}
	return alert, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, p *Payload) {
	sendCtx := ctx
	if d.sinkTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sinkTimeout)
		defer cancel()
	}

	err := sink.Send(sendCtx, p)
	if d.metrics != nil {
		d.metrics.RecordDelivery(ctx, sink.Name(), err)
	}
	if err != nil {
		d.logger.WarnContext(ctx, "alert delivery failed",
			"sink", sink.Name(),
			"site_id", p.SiteID,
			"alert_id", p.AlertID,
			"alert_type", string(p.AlertType),
			"run_id", types.GetRunID(ctx),
			"error", err,
		)
		return
	}
	d.logger.DebugContext(ctx, "alert delivered",
		"sink", sink.Name(), "site_id", p.SiteID, "alert_id", p.AlertID)
}
