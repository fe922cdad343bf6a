// Package monitor runs the per-site pipeline for every active site: fetch
// the current observation, evaluate thresholds, advance the delay lifecycle
// and dispatch alerts. One site's failure never affects another's.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"delaywatch/internal/delay"
	"delaywatch/internal/telemetry"
	"delaywatch/internal/types"
)

// SiteSource lists the sites to monitor.
type SiteSource interface {
	ActiveSites(ctx context.Context) ([]types.Site, error)
}

// WeatherSource returns the latest normalized observation near a point.
type WeatherSource interface {
	CurrentObservation(ctx context.Context, lat, lon float64) (*types.Observation, error)
}

// ReadingStore persists the observation used for each evaluation.
type ReadingStore interface {
	InsertReading(ctx context.Context, reading *types.WeatherReading) error
}

// LifecycleTracker advances a site's delay state.
type LifecycleTracker interface {
	Apply(ctx context.Context, site *types.Site, violations types.Violations, now time.Time) (delay.Transition, error)
}

// AlertDispatcher records and delivers the alert for a transition.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, site *types.Site, tr delay.Transition, obs *types.Observation) (*types.Alert, error)
}

// SiteFailure describes why one site could not be processed.
type SiteFailure struct {
	SiteID  string          `json:"site_id"`
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// MonitorRunReport summarizes one RunOnce. SitesEvaluated, SitesSkipped and
// SitesFailed always add up to SitesTotal.
type MonitorRunReport struct {
	RunID           string        `json:"run_id"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	SitesTotal      int           `json:"sites_total"`
	SitesEvaluated  int           `json:"sites_evaluated"`
	SitesSkipped    int           `json:"sites_skipped"`
	SitesFailed     int           `json:"sites_failed"`
	DelaysOpened    int           `json:"delays_opened"`
	DelaysContinued int           `json:"delays_continued"`
	DelaysClosed    int           `json:"delays_closed"`
	AlertsEmitted   int           `json:"alerts_emitted"`
	Failures        []SiteFailure `json:"failures"`
}

// Config holds the Orchestrator's dependencies.
type Config struct {
	Sites      SiteSource
	Weather    WeatherSource
	Readings   ReadingStore
	Tracker    LifecycleTracker
	Dispatcher AlertDispatcher
	Metrics    telemetry.Recorder
	Clock      types.Clock
	Logger     *slog.Logger

	// Concurrency bounds how many sites are processed at once.
	Concurrency int
	// SiteTimeout bounds one site's whole pipeline.
	SiteTimeout time.Duration
	NewID       func() string
}

// Orchestrator holds no state between runs; everything durable lives in
// the store.
type Orchestrator struct {
	sites       SiteSource
	weather     WeatherSource
	readings    ReadingStore
	tracker     LifecycleTracker
	dispatcher  AlertDispatcher
	metrics     telemetry.Recorder
	clock       types.Clock
	logger      *slog.Logger
	concurrency int
	siteTimeout time.Duration
	newID       func() string
}

// NewOrchestrator validates cfg and builds an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Sites == nil || cfg.Weather == nil || cfg.Tracker == nil || cfg.Dispatcher == nil {
		return nil, errors.New("monitor: sites, weather, tracker and dispatcher are required")
	}
	o := &Orchestrator{
		sites:       cfg.Sites,
		weather:     cfg.Weather,
		readings:    cfg.Readings,
		tracker:     cfg.Tracker,
		dispatcher:  cfg.Dispatcher,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		siteTimeout: cfg.SiteTimeout,
		newID:       cfg.NewID,
	}
	if o.metrics == nil {
		o.metrics = telemetry.Nop{}
	}
	if o.clock == nil {
		o.clock = types.RealClock{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// RunOnce evaluates every active site under a fresh run ID.
func (o *Orchestrator) RunOnce(ctx context.Context) (MonitorRunReport, error) {
	return o.Run(ctx, o.newID())
}

// Run evaluates every active site. Only failing to load the site list is
// returned as an error; per-site failures land in the report. A cancelled
// ctx stops new sites from starting while in-flight sites finish.
func (o *Orchestrator) Run(ctx context.Context, runID string) (MonitorRunReport, error) {
	report := MonitorRunReport{RunID: runID, StartedAt: o.clock.Now(), Failures: []SiteFailure{}}
	logger := o.logger.With("run_id", runID)
	ctx = types.WithRunID(ctx, runID)

	sites, err := o.sites.ActiveSites(ctx)
	if err != nil {
		report.FinishedAt = o.clock.Now()
		o.metrics.RecordRun(ctx, types.JobStatusFailed, report.FinishedAt.Sub(report.StartedAt))
		return report, fmt.Errorf("load active sites: %w", err)
	}
	report.SitesTotal = len(sites)
	logger.InfoContext(ctx, "monitor run started", "sites", len(sites), "concurrency", o.concurrency)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i := range sites {
		site := &sites[i]
		if gCtx.Err() != nil {
			mu.Lock()
			report.add(cancelledResult(site))
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			// g.Go blocks while the limit is reached, so the run may have
			// been cancelled between scheduling and starting.
			res := cancelledResult(site)
			if gCtx.Err() == nil {
				res = o.processSite(gCtx, logger, site)
			}
			mu.Lock()
			report.add(res)
			mu.Unlock()
			return nil
		})
	}
	// Sites never return errors to the group.
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].SiteID < report.Failures[j].SiteID })
	report.FinishedAt = o.clock.Now()
	o.metrics.RecordRun(ctx, types.JobStatusSuccess, report.FinishedAt.Sub(report.StartedAt))

	logger.InfoContext(ctx, "monitor run finished",
		"sites_total", report.SitesTotal,
		"sites_evaluated", report.SitesEvaluated,
		"sites_skipped", report.SitesSkipped,
		"sites_failed", report.SitesFailed,
		"delays_opened", report.DelaysOpened,
		"delays_closed", report.DelaysClosed,
		"alerts_emitted", report.AlertsEmitted,
	)
	return report, nil
}

type siteResult struct {
	skipped    bool
	transition delay.TransitionKind
	alerted    bool
	failure    *SiteFailure
}

func (r *MonitorRunReport) add(res siteResult) {
	switch res.transition {
	case delay.TransitionOpened:
		r.DelaysOpened++
	case delay.TransitionContinued:
		r.DelaysContinued++
	case delay.TransitionClosed:
		r.DelaysClosed++
	}
	if res.alerted {
		r.AlertsEmitted++
	}
	switch {
	case res.failure != nil:
		r.SitesFailed++
		r.Failures = append(r.Failures, *res.failure)
	case res.skipped:
		r.SitesSkipped++
	default:
		r.SitesEvaluated++
	}
}

// processSite runs fetch, record, evaluate, apply and dispatch for one site.
// A weather failure leaves the site's delay state untouched.
func (o *Orchestrator) processSite(ctx context.Context, runLogger *slog.Logger, site *types.Site) siteResult {
	logger := runLogger.With("site_id", site.ID)

	if !site.Monitorable() {
		return o.settleUnmonitorable(ctx, logger, site)
	}
	if err := site.Validate(); err != nil {
		return o.fail(ctx, logger, site, "site configuration invalid", err, "")
	}

	fetchCtx := ctx
	if o.siteTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.siteTimeout)
		defer cancel()
	}

	obs, err := o.weather.CurrentObservation(fetchCtx, site.Location.Lat, site.Location.Lon)
	if err != nil {
		return o.fail(ctx, logger, site, "weather fetch failed", err, "")
	}

	writeCtx, cancel := o.writeContext(ctx)
	defer cancel()

	now := o.clock.Now()
	if o.readings != nil {
		reading := &types.WeatherReading{ID: o.newID(), SiteID: site.ID, Observation: *obs, RecordedAt: now}
		if err := o.readings.InsertReading(writeCtx, reading); err != nil {
			logger.WarnContext(ctx, "weather reading not stored", "error", err)
		}
	}

	violations := delay.Evaluate(obs, site.Thresholds)

	tr, err := o.tracker.Apply(writeCtx, site, violations, now)
	if err != nil {
		return o.fail(ctx, logger, site, "delay lifecycle update failed", err, "")
	}
	return o.emit(ctx, writeCtx, logger, site, tr, obs)
}

// settleUnmonitorable closes a delay left open on a site that has since
// lost its coordinates or thresholds: with nothing configured nothing can be
// violated. Sites without an open delay are skipped.
func (o *Orchestrator) settleUnmonitorable(ctx context.Context, logger *slog.Logger, site *types.Site) siteResult {
	writeCtx, cancel := o.writeContext(ctx)
	defer cancel()

	tr, err := o.tracker.Apply(writeCtx, site, types.Violations{}, o.clock.Now())
	if err != nil {
		return o.fail(ctx, logger, site, "delay lifecycle update failed", err, "")
	}
	if tr.Kind == delay.TransitionNone {
		logger.DebugContext(ctx, "site skipped", "has_coordinates", site.HasCoordinates())
		o.metrics.RecordSiteOutcome(ctx, telemetry.OutcomeSkipped, "")
		return siteResult{skipped: true}
	}
	logger.InfoContext(ctx, "closing delay on site that is no longer monitorable",
		"has_coordinates", site.HasCoordinates())
	return o.emit(ctx, writeCtx, logger, site, tr, nil)
}

// emit counts the transition and dispatches its alert.
func (o *Orchestrator) emit(ctx, writeCtx context.Context, logger *slog.Logger, site *types.Site, tr delay.Transition, obs *types.Observation) siteResult {
	if tr.Kind != delay.TransitionNone {
		o.metrics.RecordTransition(ctx, string(tr.Kind))
		logger.InfoContext(ctx, "delay transition",
			"transition", string(tr.Kind),
			"delay_id", tr.Delay.ID,
			"violations", len(tr.Violations),
		)
	}

	alert, err := o.dispatcher.Dispatch(writeCtx, site, tr, obs)
	if err != nil {
		return o.fail(ctx, logger, site, "alert not recorded", err, tr.Kind)
	}

	o.metrics.RecordSiteOutcome(ctx, telemetry.OutcomeEvaluated, "")
	return siteResult{transition: tr.Kind, alerted: alert != nil}
}

// writeContext detaches from run cancellation so that once a site's state
// is being written each single-statement write runs to completion. The site
// timeout still bounds it.
func (o *Orchestrator) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	writeCtx := context.WithoutCancel(ctx)
	if o.siteTimeout > 0 {
		return context.WithTimeout(writeCtx, o.siteTimeout)
	}
	return writeCtx, func() {}
}

func cancelledResult(site *types.Site) siteResult {
	return siteResult{failure: &SiteFailure{
		SiteID: site.ID, Code: types.ErrCodeInternalUnexpected, Message: "run cancelled before site was evaluated",
	}}
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, site *types.Site, msg string, err error, tk delay.TransitionKind) siteResult {
	code := types.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) && code == types.ErrCodeInternalUnexpected {
		code = types.ErrCodeUpstreamUnavailable
	}
	logger.ErrorContext(ctx, msg, "site_name", site.Name, "code", string(code), "error", err)
	o.metrics.RecordSiteOutcome(ctx, telemetry.OutcomeFailed, code)
	return siteResult{
		transition: tk,
		failure:    &SiteFailure{SiteID: site.ID, Code: code, Message: err.Error()},
	}
}
