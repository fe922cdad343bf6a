package db

import (
	"context"

	"delaywatch/internal/types"
)

// AlertRepository appends to the alerts table. Alerts are immutable; there
// is no update path.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// InsertAlert records one lifecycle transition.
func (r *AlertRepository) InsertAlert(ctx context.Context, a *types.Alert) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, site_id, delay_event_id, alert_type, severity,
		                     message, observation, violations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID,
		a.SiteID,
		a.DelayEventID,
		string(a.Type),
		string(a.Severity),
		a.Message,
		a.Observation,
		a.Violations,
		a.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	return nil
}

// ListAlertsForDelay returns the alerts of one delay event in creation order.
func (r *AlertRepository) ListAlertsForDelay(ctx context.Context, delayID string) ([]types.Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, site_id, delay_event_id, alert_type, severity,
		        message, observation, violations, created_at
		 FROM alerts
		 WHERE delay_event_id = $1
		 ORDER BY created_at, id`,
		delayID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query alerts", err)
	}
	defer rows.Close()

	alerts := make([]types.Alert, 0)
	for rows.Next() {
		var (
			a                   types.Alert
			alertType, severity string
		)
		if err := rows.Scan(
			&a.ID,
			&a.SiteID,
			&a.DelayEventID,
			&alertType,
			&severity,
			&a.Message,
			&a.Observation,
			&a.Violations,
			&a.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
		}
		a.Type = types.AlertType(alertType)
		a.Severity = types.Severity(severity)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alerts", err)
	}
	return alerts, nil
}
