package weather

import (
	"math"

	"delaywatch/internal/types"
)

// EarthRadiusMiles is the mean Earth radius used for great-circle distance.
const EarthRadiusMiles = 3959.0

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(a)))
}

// NearestStation picks the candidate closest to (lat, lon). Ties keep the
// earlier candidate, so the result is deterministic for a fixed list.
// The returned station carries its distance. ok is false for an empty list.
func NearestStation(lat, lon float64, candidates []types.Station) (best types.Station, ok bool) {
	bestDist := math.Inf(1)
	for _, s := range candidates {
		d := HaversineMiles(lat, lon, s.Lat, s.Lon)
		if d < bestDist {
			best, bestDist, ok = s, d, true
		}
	}
	if ok {
		best.DistanceMi = bestDist
	}
	return best, ok
}
