package db

import (
	"context"

	"delaywatch/internal/types"
)

// ReadingRepository appends observations to weather_readings so delays
// can be audited against the data that drove them.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a new ReadingRepository backed by the given
// database connection (pool or transaction).
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// InsertReading stores one normalized observation. The station id and
// observation time are broken out for indexing; the rest lives in JSONB.
func (r *ReadingRepository) InsertReading(ctx context.Context, reading *types.WeatherReading) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO weather_readings (id, site_id, station_id, observed_at, observation, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reading.ID,
		reading.SiteID,
		reading.Observation.Station.ID,
		reading.Observation.Timestamp,
		reading.Observation,
		reading.RecordedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert weather reading", err)
	}
	return nil
}
