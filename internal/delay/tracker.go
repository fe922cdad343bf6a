package delay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"delaywatch/internal/types"
)

// CostPolicy selects how an open delay's cost is maintained while the
// violation persists.
type CostPolicy string

const (
	// CostPolicyFixed writes the estimate once at creation and leaves it
	// untouched until the delay closes.
	CostPolicyFixed CostPolicy = "fixed"
	// CostPolicyRefresh re-snapshots the site's current rates and
	// re-estimates on every continuing evaluation.
	CostPolicyRefresh CostPolicy = "refresh"
)

// TransitionKind is the lifecycle outcome of one evaluation.
type TransitionKind string

const (
	TransitionNone      TransitionKind = "none"
	TransitionOpened    TransitionKind = "opened"
	TransitionContinued TransitionKind = "continued"
	TransitionClosed    TransitionKind = "closed"
)

// AlertType maps a transition to the alert it produces. TransitionNone has
// no alert and returns "".
func (k TransitionKind) AlertType() types.AlertType {
	switch k {
	case TransitionOpened:
		return types.AlertNewDelay
	case TransitionContinued:
		return types.AlertContinuing
	case TransitionClosed:
		return types.AlertDelayEnded
	}
	return ""
}

// Transition is what Apply decided and persisted for a site.
type Transition struct {
	Kind TransitionKind
	// Delay is the event as persisted after the transition. Nil for
	// TransitionNone.
	Delay *types.DelayEvent
	// Violations are the conditions evaluated this tick. Empty on close.
	Violations types.Violations
}

// DelayStore is the persistence surface the tracker needs.
//
// OpenDelay returns (nil, nil) when the site has no open delay.
// CreateDelay must fail with ErrCodeConflictOpenDelay when an open delay
// already exists for the site.
type DelayStore interface {
	OpenDelay(ctx context.Context, siteID string) (*types.DelayEvent, error)
	CreateDelay(ctx context.Context, d *types.DelayEvent) error
	UpdateDelay(ctx context.Context, d *types.DelayEvent) error
	CloseDelay(ctx context.Context, d *types.DelayEvent) error
}

// Tracker owns the per-site open/continue/close state machine.
type Tracker struct {
	store  DelayStore
	locks  *SiteLocker
	policy CostPolicy
	newID  func() string
	logger *slog.Logger
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithIDFunc overrides delay id generation.
func WithIDFunc(f func() string) TrackerOption {
	return func(t *Tracker) { t.newID = f }
}

// WithSiteLocker shares a locker between trackers, or with other writers.
func WithSiteLocker(l *SiteLocker) TrackerOption {
	return func(t *Tracker) { t.locks = l }
}

// NewTracker builds a tracker. An unknown policy falls back to fixed.
func NewTracker(store DelayStore, policy CostPolicy, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if policy != CostPolicyRefresh {
		policy = CostPolicyFixed
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:  store,
		locks:  NewSiteLocker(),
		policy: policy,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Apply moves the site's delay state forward given this tick's violations
// evaluated at now. Calls for the same site are serialized. On any store
// error nothing is reported as transitioned and the caller must not emit
// an alert.
func (t *Tracker) Apply(ctx context.Context, site *types.Site, violations types.Violations, now time.Time) (Transition, error) {
	unlock := t.locks.Lock(site.ID)
	defer unlock()

	open, err := t.store.OpenDelay(ctx, site.ID)
	if err != nil {
		return Transition{Kind: TransitionNone}, fmt.Errorf("load open delay: %w", err)
	}

	switch {
	case len(violations) > 0 && open == nil:
		return t.open(ctx, site, violations, now)
	case len(violations) > 0:
		return t.continueDelay(ctx, site, open, violations, now)
	case open != nil:
		return t.close(ctx, open, now)
	default:
		return Transition{Kind: TransitionNone, Violations: violations}, nil
	}
}

func (t *Tracker) open(ctx context.Context, site *types.Site, violations types.Violations, now time.Time) (Transition, error) {
	rates := RatesFromSite(site)
	d := &types.DelayEvent{
		ID:            t.newID(),
		SiteID:        site.ID,
		StartTime:     now,
		Cause:         violations,
		CrewSize:      rates.CrewSize,
		HourlyRate:    rates.HourlyRate,
		DailyOverhead: rates.DailyOverhead,
		AutoGenerated: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	d.SetCost(EstimateOpenCost(rates))

	err := t.store.CreateDelay(ctx, d)
	if types.IsCode(err, types.ErrCodeConflictOpenDelay) {
		// Another writer opened one first; adopt it.
		existing, rerr := t.store.OpenDelay(ctx, site.ID)
		if rerr != nil {
			return Transition{Kind: TransitionNone}, fmt.Errorf("reload open delay after conflict: %w", rerr)
		}
		if existing == nil {
			return Transition{Kind: TransitionNone}, err
		}
		t.logger.Info("open delay already existed, treating as continuing",
			"site_id", site.ID, "delay_id", existing.ID)
		return t.continueDelay(ctx, site, existing, violations, now)
	}
	if err != nil {
		return Transition{Kind: TransitionNone}, fmt.Errorf("create delay: %w", err)
	}
	return Transition{Kind: TransitionOpened, Delay: d, Violations: violations}, nil
}

func (t *Tracker) continueDelay(ctx context.Context, site *types.Site, open *types.DelayEvent, violations types.Violations, now time.Time) (Transition, error) {
	if t.policy != CostPolicyRefresh {
		return Transition{Kind: TransitionContinued, Delay: open, Violations: violations}, nil
	}

	updated := *open
	rates := RatesFromSite(site)
	updated.CrewSize = rates.CrewSize
	updated.HourlyRate = rates.HourlyRate
	updated.DailyOverhead = rates.DailyOverhead
	updated.SetCost(EstimateOpenCost(rates))
	updated.UpdatedAt = now

	if err := t.store.UpdateDelay(ctx, &updated); err != nil {
		return Transition{Kind: TransitionNone}, fmt.Errorf("refresh delay cost: %w", err)
	}
	return Transition{Kind: TransitionContinued, Delay: &updated, Violations: violations}, nil
}

func (t *Tracker) close(ctx context.Context, open *types.DelayEvent, now time.Time) (Transition, error) {
	hours, err := DurationHours(open.StartTime, now)
	if err != nil {
		t.logger.Error("refusing to close delay with non-positive duration",
			"site_id", open.SiteID, "delay_id", open.ID,
			"start_time", open.StartTime, "end_time", now)
		return Transition{Kind: TransitionNone}, err
	}
	cost, err := FinalizeCost(RatesFromDelay(open), hours)
	if err != nil {
		return Transition{Kind: TransitionNone}, err
	}

	closed := *open
	end := now
	closed.EndTime = &end
	closed.DurationHours = &hours
	closed.SetCost(cost)
	closed.UpdatedAt = now

	if err := t.store.CloseDelay(ctx, &closed); err != nil {
		return Transition{Kind: TransitionNone}, fmt.Errorf("close delay: %w", err)
	}
	return Transition{Kind: TransitionClosed, Delay: &closed, Violations: types.Violations{}}, nil
}
