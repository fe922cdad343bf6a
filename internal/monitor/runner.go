package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"delaywatch/internal/types"
)

// Job types recorded in job history.
const (
	JobScheduled = "monitor_scheduled"
	JobManual    = "monitor_manual"
)

// manualLockID serializes operator-triggered runs across processes.
const manualLockID = "monitor:manual"

// RunExecutor performs one monitoring run.
type RunExecutor interface {
	Run(ctx context.Context, runID string) (MonitorRunReport, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType, runID string) (int64, error)
	Finish(ctx context.Context, id int64, status types.JobStatus, items int, summary any, jobErr error) error
}

// RunnerConfig holds the Runner's dependencies.
type RunnerConfig struct {
	Executor RunExecutor
	Locks    JobLocker
	History  JobHistorian
	Clock    clockwork.Clock
	Logger   *slog.Logger

	WorkerID string
	Interval time.Duration
	LockTTL  time.Duration
	NewID    func() string
}

// Runner wraps runs with a distributed slot lock and job history, and
// drives them on a fixed interval for the long-running service.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner builds a Runner. History may be nil.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Runner{cfg: cfg}
}

// SlotLockID names the lock for the interval slot containing now, so every
// replica ticking in the same slot contends for the same row.
func SlotLockID(now time.Time, interval time.Duration) string {
	return fmt.Sprintf("monitor:%s", now.UTC().Truncate(interval).Format(time.RFC3339))
}

// RunScheduled runs once for the current interval slot. When another worker
// already holds the slot it returns a conflict_run_locked error without
// running. The slot lock is left to expire.
func (r *Runner) RunScheduled(ctx context.Context) (MonitorRunReport, error) {
	lockID := SlotLockID(r.cfg.Clock.Now(), r.cfg.Interval)
	return r.runLocked(ctx, JobScheduled, lockID, false)
}

// Trigger runs immediately on operator request. Only one manual run may be
// in progress at a time across all workers.
func (r *Runner) Trigger(ctx context.Context) (MonitorRunReport, error) {
	return r.runLocked(ctx, JobManual, manualLockID, true)
}

func (r *Runner) runLocked(ctx context.Context, jobType, lockID string, release bool) (MonitorRunReport, error) {
	logger := r.cfg.Logger.With("job_type", jobType, "lock_id", lockID)

	if r.cfg.Locks != nil {
		acquired, err := r.cfg.Locks.Acquire(ctx, lockID, r.cfg.WorkerID, r.cfg.LockTTL)
		if err != nil {
			return MonitorRunReport{}, fmt.Errorf("acquiring job lock %s: %w", lockID, err)
		}
		if !acquired {
			logger.InfoContext(ctx, "job lock not acquired, another worker is running")
			return MonitorRunReport{}, types.NewAppErrorWithDetails(types.ErrCodeConflictRunLocked,
				"a monitoring run is already in progress", nil, map[string]any{"lock_id": lockID})
		}
		if release {
			defer func() {
				if err := r.cfg.Locks.Release(context.WithoutCancel(ctx), lockID, r.cfg.WorkerID); err != nil {
					logger.WarnContext(ctx, "failed to release job lock", "error", err)
				}
			}()
		}
	}

	runID := r.cfg.NewID()
	var historyID int64
	if r.cfg.History != nil {
		id, err := r.cfg.History.Start(ctx, jobType, runID)
		if err != nil {
			// Non-fatal: the run proceeds without a history row.
			logger.ErrorContext(ctx, "failed to start job history", "error", err)
		} else {
			historyID = id
		}
	}

	report, runErr := r.cfg.Executor.Run(ctx, runID)

	if historyID != 0 {
		status := types.JobStatusSuccess
		if runErr != nil {
			status = types.JobStatusFailed
		}
		if err := r.cfg.History.Finish(context.WithoutCancel(ctx), historyID, status, report.SitesEvaluated, report, runErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "history_id", historyID, "error", err)
		}
	}
	return report, runErr
}

// Loop runs immediately and then on every interval tick until ctx is done.
// Lock conflicts and run errors are logged and do not stop the loop.
func (r *Runner) Loop(ctx context.Context) error {
	ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.RunScheduled(ctx)
	switch {
	case err == nil:
	case types.IsCode(err, types.ErrCodeConflictRunLocked):
		r.cfg.Logger.DebugContext(ctx, "scheduled run skipped, slot held elsewhere")
	default:
		r.cfg.Logger.ErrorContext(ctx, "scheduled run failed", "error", err)
	}
}
