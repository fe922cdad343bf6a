package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"delaywatch/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 { return &v }

// fakeSites returns a fixed site list.
type fakeSites struct {
	sites []types.Site
	err   error
}

func (f *fakeSites) ActiveSites(context.Context) ([]types.Site, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Site, len(f.sites))
	copy(out, f.sites)
	return out, nil
}

// fakeWeather serves observations keyed by latitude.
type fakeWeather struct {
	mu    sync.Mutex
	obs   map[float64]*types.Observation
	errs  map[float64]error
	calls map[float64]int

	inFlight, maxInFlight int
	delay                 time.Duration
	// onCall runs at the start of every fetch, before any lock is taken.
	onCall func(lat float64)
}

func newFakeWeather() *fakeWeather {
	return &fakeWeather{
		obs:   map[float64]*types.Observation{},
		errs:  map[float64]error{},
		calls: map[float64]int{},
	}
}

func (f *fakeWeather) set(lat float64, obs *types.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs[lat] = obs
}

func (f *fakeWeather) CurrentObservation(ctx context.Context, lat, _ float64) (*types.Observation, error) {
	if f.onCall != nil {
		f.onCall(lat)
	}
	f.mu.Lock()
	f.calls[lat]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	obs, err := f.obs[lat], f.errs[lat]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundStation, "no station", nil)
	}
	c := *obs
	return &c, nil
}

func (f *fakeWeather) callsFor(lat float64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[lat]
}

// memDelays is an in-memory DelayStore enforcing one open delay per site.
type memDelays struct {
	mu      sync.Mutex
	events  map[string]*types.DelayEvent
	creates int
}

func newMemDelays() *memDelays {
	return &memDelays{events: map[string]*types.DelayEvent{}}
}

func (m *memDelays) OpenDelay(_ context.Context, siteID string) (*types.DelayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.events {
		if d.SiteID == siteID && d.IsOpen() {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memDelays) CreateDelay(_ context.Context, d *types.DelayEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.SiteID == d.SiteID && e.IsOpen() {
			return types.NewAppError(types.ErrCodeConflictOpenDelay, "open delay exists", nil)
		}
	}
	c := *d
	m.events[d.ID] = &c
	m.creates++
	return nil
}

func (m *memDelays) UpdateDelay(_ context.Context, d *types.DelayEvent) error {
	return m.replaceOpen(d)
}

func (m *memDelays) CloseDelay(_ context.Context, d *types.DelayEvent) error {
	return m.replaceOpen(d)
}

func (m *memDelays) replaceOpen(d *types.DelayEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[d.ID]
	if !ok || !e.IsOpen() {
		return types.NewAppError(types.ErrCodeConflictConcurrent, "delay not open", nil)
	}
	c := *d
	m.events[d.ID] = &c
	return nil
}

func (m *memDelays) forSite(siteID string) []types.DelayEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.DelayEvent
	for _, d := range m.events {
		if d.SiteID == siteID {
			out = append(out, *d)
		}
	}
	return out
}

func (m *memDelays) openCount(siteID string) int {
	n := 0
	for _, d := range m.forSite(siteID) {
		if d.IsOpen() {
			n++
		}
	}
	return n
}

// memAlerts records inserted alerts.
type memAlerts struct {
	mu     sync.Mutex
	alerts []types.Alert
	err    error
}

func (m *memAlerts) InsertAlert(_ context.Context, a *types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memAlerts) ofType(siteID string, t types.AlertType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.SiteID == siteID && a.Type == t {
			n++
		}
	}
	return n
}

func (m *memAlerts) forSite(siteID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.SiteID == siteID {
			n++
		}
	}
	return n
}

// memReadings records weather readings.
type memReadings struct {
	mu       sync.Mutex
	readings []types.WeatherReading
	err      error
}

func (m *memReadings) InsertReading(_ context.Context, r *types.WeatherReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.readings = append(m.readings, *r)
	return nil
}

func (m *memReadings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}

// sequentialIDs hands out id-1, id-2, ...
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

var errUpstream = types.NewAppError(types.ErrCodeUpstreamUnavailable, "weather api unavailable", errors.New("503"))
