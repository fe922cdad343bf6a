// Package weather fetches current conditions for a coordinate from the
// National Weather Service API (api.weather.gov). It resolves the nearest
// observing station, fetches that station's latest observation and converts
// every quantity into normalized units before it leaves the package.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"delaywatch/internal/external"
	"delaywatch/internal/types"

	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// Config holds the client settings.
type Config struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	MaxStationMiles  float64
	Retry            external.RetryPolicy
	RateLimitRPS     float64
	RateLimitBurst   int
	StationCacheSize int
	StationCacheTTL  time.Duration
}

// Client is the weather data client. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	http     *external.BaseClient
	cache    *stationCache
	timeout  time.Duration
	maxMiles float64
	logger   *slog.Logger
}

// NewClient builds a Client. httpClient may be nil, in which case one with
// cfg.Timeout is created. opts are passed to the underlying BaseClient.
func NewClient(cfg Config, httpClient *http.Client, clock types.Clock, logger *slog.Logger, opts ...external.BaseClientOption) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("weather: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxStationMiles <= 0 {
		cfg.MaxStationMiles = 100
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		opts = append([]external.BaseClientOption{
			external.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)),
		}, opts...)
	}

	return &Client{
		baseURL:  base,
		http:     external.NewBaseClient(httpClient, "weather-api", cfg.Retry, cfg.UserAgent, opts...),
		cache:    newStationCache(cfg.StationCacheSize, cfg.StationCacheTTL, clock),
		timeout:  cfg.Timeout,
		maxMiles: cfg.MaxStationMiles,
		logger:   logger,
	}, nil
}

// --- wire formats ---

type pointsResponse struct {
	Properties struct {
		ObservationStations string `json:"observationStations"`
	} `json:"properties"`
}

type stationsResponse struct {
	Features []struct {
		Geometry *struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties *struct {
		Timestamp             string    `json:"timestamp"`
		TextDescription       string    `json:"textDescription"`
		Temperature           *quantity `json:"temperature"`
		WindSpeed             *quantity `json:"windSpeed"`
		WindGust              *quantity `json:"windGust"`
		WindDirection         *quantity `json:"windDirection"`
		BarometricPressure    *quantity `json:"barometricPressure"`
		Visibility            *quantity `json:"visibility"`
		PrecipitationLastHour *quantity `json:"precipitationLastHour"`
		RelativeHumidity      *quantity `json:"relativeHumidity"`
	} `json:"properties"`
}

// errNotFound marks a 404 so callers can decide what it means.
var errNotFound = errors.New("upstream resource not found")

// ResolveStation returns the observing station nearest to (lat, lon).
func (c *Client) ResolveStation(ctx context.Context, lat, lon float64) (*types.Station, error) {
	key := stationKey(lat, lon)
	if s, ok := c.cache.get(key); ok {
		return &s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var points pointsResponse
	if err := c.getJSON(ctx, c.baseURL.JoinPath("points", key), &points); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, noStation(lat, lon, "location is outside upstream coverage")
		}
		return nil, err
	}
	if points.Properties.ObservationStations == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "points response has no observationStations link", nil)
	}
	stationsURL, err := c.baseURL.Parse(points.Properties.ObservationStations)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "invalid observationStations link", err)
	}

	var fc stationsResponse
	if err := c.getJSON(ctx, stationsURL, &fc); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, noStation(lat, lon, "no stations listed for area")
		}
		return nil, err
	}

	candidates := make([]types.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.StationIdentifier == "" || f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
			continue
		}
		candidates = append(candidates, types.Station{
			ID:   f.Properties.StationIdentifier,
			Name: f.Properties.Name,
			Lon:  f.Geometry.Coordinates[0],
			Lat:  f.Geometry.Coordinates[1],
		})
	}

	best, ok := NearestStation(lat, lon, candidates)
	if !ok {
		return nil, noStation(lat, lon, "no stations listed for area")
	}
	if best.DistanceMi > c.maxMiles {
		return nil, noStation(lat, lon, fmt.Sprintf("nearest station %s is %.1f mi away (limit %.0f)", best.ID, best.DistanceMi, c.maxMiles))
	}

	c.cache.put(key, best)
	c.logger.DebugContext(ctx, "resolved station",
		"station_id", best.ID, "distance_mi", best.DistanceMi, "candidates", len(candidates))
	return &best, nil
}

// CurrentObservation returns the latest normalized observation from the
// station nearest to (lat, lon).
func (c *Client) CurrentObservation(ctx context.Context, lat, lon float64) (*types.Observation, error) {
	station, err := c.ResolveStation(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp observationResponse
	u := c.baseURL.JoinPath("stations", station.ID, "observations", "latest")
	if err := c.getJSON(ctx, u, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundStation,
				"station has no recent observation", nil, map[string]any{"station_id": station.ID})
		}
		return nil, err
	}

	obs, err := toObservation(&resp)
	if err != nil {
		return nil, err
	}
	obs.Station = *station
	return obs, nil
}

func toObservation(resp *observationResponse) (*types.Observation, error) {
	p := resp.Properties
	if p == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "observation has no properties", nil)
	}
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamMalformed, "observation timestamp is missing or invalid", err)
	}

	obs := &types.Observation{
		Timestamp:   ts.UTC(),
		Description: p.TextDescription,
	}
	fields := []struct {
		name string
		q    *quantity
		conv converter
		dst  **float64
	}{
		{"temperature", p.Temperature, toFahrenheit, &obs.TemperatureF},
		{"windSpeed", p.WindSpeed, toMPH, &obs.WindSpeedMPH},
		{"windGust", p.WindGust, toMPH, &obs.WindGustMPH},
		{"windDirection", p.WindDirection, toDegrees, &obs.WindDirectionDeg},
		{"precipitationLastHour", p.PrecipitationLastHour, toInches, &obs.PrecipitationIn},
		{"relativeHumidity", p.RelativeHumidity, toPercent, &obs.HumidityPct},
		{"visibility", p.Visibility, toMiles, &obs.VisibilityMi},
		{"barometricPressure", p.BarometricPressure, toInHg, &obs.PressureInHg},
	}
	for _, f := range fields {
		v, err := normalize(f.name, f.q, f.conv)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return obs, nil
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("weather api returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode, "path": u.Path})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read weather response", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamMalformed,
			"weather response is not valid JSON", err, map[string]any{"path": u.Path})
	}
	return nil
}

func noStation(lat, lon float64, reason string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundStation, reason, nil,
		map[string]any{"lat": lat, "lon": lon})
}
