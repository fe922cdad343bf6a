package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delaywatch/internal/monitor"
	"delaywatch/internal/types"
)

type stubTrigger struct {
	report monitor.MonitorRunReport
	err    error
	calls  int
}

func (s *stubTrigger) Trigger(context.Context) (monitor.MonitorRunReport, error) {
	s.calls++
	return s.report, s.err
}

type stubProbe struct {
	name  string
	err   error
	block bool
	panic bool
}

func (p stubProbe) Name() string { return p.name }

func (p stubProbe) Check(ctx context.Context) error {
	if p.panic {
		panic("probe exploded")
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(t *testing.T, trigger RunTrigger, probes ...HealthProbe) *Server {
	t.Helper()
	s, err := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), trigger)
	require.NoError(t, err)
	s.HealthProbes = probes
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	s.MountRoutes()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, &stubTrigger{})
	assert.Error(t, err)
	_, err = NewServer(slog.Default(), nil)
	assert.Error(t, err)
}

func TestHandleTriggerRun_ReturnsReport(t *testing.T) {
	trigger := &stubTrigger{report: monitor.MonitorRunReport{RunID: "run-1", SitesTotal: 3, SitesEvaluated: 3}}
	rec := do(t, newTestServer(t, trigger), http.MethodPost, "/v1/runs")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body struct {
		Data monitor.MonitorRunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Data.RunID)
	assert.Equal(t, 3, body.Data.SitesEvaluated)
	assert.Equal(t, 1, trigger.calls)
}

func TestHandleTriggerRun_LockedIsConflict(t *testing.T) {
	trigger := &stubTrigger{err: types.NewAppError(types.ErrCodeConflictRunLocked, "a monitoring run is already in progress", nil)}
	rec := do(t, newTestServer(t, trigger), http.MethodPost, "/v1/runs")

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict_run_locked", body.Error.Code)
}

func TestHandleTriggerRun_GenericErrorIsOpaque(t *testing.T) {
	trigger := &stubTrigger{err: errors.New("pq: password authentication failed")}
	rec := do(t, newTestServer(t, trigger), http.MethodPost, "/v1/runs")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		probes []HealthProbe
		status int
	}{
		{"no probes", nil, http.StatusOK},
		{"healthy database", []HealthProbe{PingProbe{ProbeName: "database", Target: stubPinger{}}}, http.StatusOK},
		{"failed database", []HealthProbe{PingProbe{ProbeName: "database", Target: stubPinger{err: errors.New("refused")}}}, http.StatusServiceUnavailable},
		{"panicking probe", []HealthProbe{stubProbe{name: "kafka", panic: true}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, &stubTrigger{}, tt.probes...), http.MethodGet, "/health")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleHealth_Timeout(t *testing.T) {
	start := time.Now()
	rec := do(t, newTestServer(t, &stubTrigger{}, stubProbe{name: "slow", block: true}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), healthCheckTimeout+time.Second)
	assert.Contains(t, rec.Body.String(), "slow")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "delaywatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(t, &stubTrigger{})
	s.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	rec := do(t, s, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "delaywatch_test_total 1"))
}

func TestMetricsEndpoint_NotMountedWithoutHandler(t *testing.T) {
	rec := do(t, newTestServer(t, &stubTrigger{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, &stubTrigger{})
	s.MountRoutes()
	s.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_unexpected_error")
}

func TestRequestIDMiddleware_Propagates(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}
