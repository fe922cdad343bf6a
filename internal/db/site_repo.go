package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"delaywatch/internal/types"
)

// SiteRepository reads the sites table. Sites are owned by the project
// management side of the product; the engine never writes them.
type SiteRepository struct {
	db DBTX
}

// NewSiteRepository creates a new SiteRepository backed by the given
// database connection (pool or transaction).
func NewSiteRepository(db DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

const siteColumns = `id, name, location_lat, location_lon, location_display_name,
	crew_size, hourly_rate, daily_overhead, thresholds, active, updated_at`

func scanSite(row pgx.Row) (*types.Site, error) {
	var s types.Site
	var (
		lat, lon    *float64
		displayName *string
	)
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&lat,
		&lon,
		&displayName,
		&s.CrewSize,
		&s.HourlyRate,
		&s.DailyOverhead,
		&s.Thresholds,
		&s.Active,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	// A site missing either coordinate cannot be located.
	if lat != nil && lon != nil {
		s.Location = &types.Location{Lat: *lat, Lon: *lon}
		if displayName != nil {
			s.Location.DisplayName = *displayName
		}
	}
	return &s, nil
}

// ActiveSites returns every active site ordered by id. Sites without
// coordinates or thresholds are included; eligibility is the caller's call.
func (r *SiteRepository) ActiveSites(ctx context.Context) ([]types.Site, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+siteColumns+`
		 FROM sites
		 WHERE active = TRUE
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active sites", err)
	}
	defer rows.Close()

	sites := make([]types.Site, 0)
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan site", err)
		}
		sites = append(sites, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sites", err)
	}
	return sites, nil
}
