package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"delaywatch/internal/types"
)

// DelayRepository provides data access for the delay_events table.
//
// At most one open row (end_time IS NULL) may exist per site. The partial
// unique index delay_events_one_open_per_site enforces it, and CreateDelay
// maps a violation of that index to ErrCodeConflictOpenDelay so callers
// can re-read and proceed as continuing.
type DelayRepository struct {
	db DBTX
}

// NewDelayRepository creates a new DelayRepository backed by the given
// database connection (pool or transaction).
func NewDelayRepository(db DBTX) *DelayRepository {
	return &DelayRepository{db: db}
}

const delayColumns = `id, site_id, start_time, end_time, duration_hours, cause,
	crew_size, hourly_rate, daily_overhead,
	labor_cost, overhead_cost, total_cost,
	auto_generated, created_at, updated_at`

func scanDelay(row pgx.Row) (*types.DelayEvent, error) {
	var d types.DelayEvent
	if err := row.Scan(
		&d.ID,
		&d.SiteID,
		&d.StartTime,
		&d.EndTime,
		&d.DurationHours,
		&d.Cause,
		&d.CrewSize,
		&d.HourlyRate,
		&d.DailyOverhead,
		&d.LaborCost,
		&d.OverheadCost,
		&d.TotalCost,
		&d.AutoGenerated,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// OpenDelay returns the site's open delay, or (nil, nil) if it has none.
func (r *DelayRepository) OpenDelay(ctx context.Context, siteID string) (*types.DelayEvent, error) {
	d, err := scanDelay(r.db.QueryRow(ctx,
		`SELECT `+delayColumns+`
		 FROM delay_events
		 WHERE site_id = $1 AND end_time IS NULL`,
		siteID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load open delay", err)
	}
	return d, nil
}

// CreateDelay inserts a new open delay event.
func (r *DelayRepository) CreateDelay(ctx context.Context, d *types.DelayEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO delay_events (`+delayColumns+`)
		 VALUES ($1, $2, $3, NULL, NULL, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID,
		d.SiteID,
		d.StartTime,
		d.Cause,
		d.CrewSize,
		d.HourlyRate,
		d.DailyOverhead,
		d.LaborCost,
		d.OverheadCost,
		d.TotalCost,
		d.AutoGenerated,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictOpenDelay,
				"site already has an open delay", err, map[string]any{"site_id": d.SiteID})
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create delay event", err)
	}
	return nil
}

// UpdateDelay rewrites the rate snapshot and cost fields of an open delay.
func (r *DelayRepository) UpdateDelay(ctx context.Context, d *types.DelayEvent) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE delay_events
		 SET crew_size = $2, hourly_rate = $3, daily_overhead = $4,
		     labor_cost = $5, overhead_cost = $6, total_cost = $7,
		     updated_at = $8
		 WHERE id = $1 AND end_time IS NULL`,
		d.ID,
		d.CrewSize,
		d.HourlyRate,
		d.DailyOverhead,
		d.LaborCost,
		d.OverheadCost,
		d.TotalCost,
		d.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update delay event", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent, "delay event is no longer open", nil)
	}
	return nil
}

// CloseDelay stamps end time, duration and final cost onto an open delay.
// A delay already closed by another writer yields ErrCodeConflictConcurrent.
func (r *DelayRepository) CloseDelay(ctx context.Context, d *types.DelayEvent) error {
	if d.EndTime == nil || d.DurationHours == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "close requires end time and duration", nil)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE delay_events
		 SET end_time = $2, duration_hours = $3,
		     labor_cost = $4, overhead_cost = $5, total_cost = $6,
		     updated_at = $7
		 WHERE id = $1 AND end_time IS NULL`,
		d.ID,
		*d.EndTime,
		*d.DurationHours,
		d.LaborCost,
		d.OverheadCost,
		d.TotalCost,
		d.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to close delay event", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent, "delay event is no longer open", nil)
	}
	return nil
}
