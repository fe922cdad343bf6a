package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"delaywatch/internal/types"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

func noopSleep(context.Context, time.Duration) error { return nil }

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func newTestClient(policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-breaker", policy, "DelayWatch-Test/1.0", opts...)
}

func get(t *testing.T, ctx context.Context, c *BaseClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return c.Do(req)
}

func TestDo_SuccessInjectsHeaders(t *testing.T) {
	var gotUA, gotTrace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotTrace = r.Header.Get("X-B3-TraceId")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "run-abc")
	resp, err := get(t, ctx, newTestClient(DefaultRetryPolicy()), server.URL)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
	if gotUA != "DelayWatch-Test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotTrace != "run-abc" {
		t.Errorf("X-B3-TraceId = %q", gotTrace)
	}
}

func TestDo_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := get(t, context.Background(), newTestClient(fastPolicy(3)), server.URL)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDo_ExhaustedRetriesReturnsUpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := get(t, context.Background(), newTestClient(fastPolicy(2)), server.URL)
	if !types.IsCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestDo_429ExhaustedReturnsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	_, err := get(t, context.Background(), newTestClient(fastPolicy(1), WithSleepFunc(sleep)), server.URL)
	if !types.IsCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if appErr.Details["rate_limited"] != true || appErr.Details["status"] != http.StatusTooManyRequests {
		t.Errorf("details = %v", appErr.Details)
	}
	// Retry-After of 1s is capped by MaxWait.
	if len(waits) != 1 || waits[0] != 10*time.Millisecond {
		t.Errorf("waits = %v", waits)
	}
}

func TestDo_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := get(t, context.Background(), newTestClient(fastPolicy(3)), server.URL)
	if err != nil {
		t.Fatalf("4xx should be returned as a response, got: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestDo_NetworkErrorMapsToUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := get(t, context.Background(), newTestClient(fastPolicy(1)), url)
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q", appErr.Code)
	}
}

func TestDo_TimeoutMapsToUpstreamUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := get(t, ctx, newTestClient(fastPolicy(3)), server.URL)
	if !types.IsCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("call did not honor the context deadline")
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "trip-fast",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	client := NewBaseClientWithBreaker(&http.Client{}, breaker, fastPolicy(0), "ua", WithSleepFunc(noopSleep))

	for i := 0; i < 2; i++ {
		_, _ = get(t, context.Background(), client, server.URL)
	}
	_, err := get(t, context.Background(), client, server.URL)
	if !types.IsCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected upstream_unavailable from open breaker, got %v", err)
	}
	if !strings.Contains(err.Error(), "circuit breaker") {
		t.Errorf("error should mention the breaker: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open breaker should short-circuit; server saw %d calls", calls.Load())
	}
}

func TestDo_RateLimiterAndObserver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var observed []int
	client := newTestClient(fastPolicy(0),
		WithRateLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithObserver(func(status int, _ time.Duration, _ error) { observed = append(observed, status) }),
	)
	for i := 0; i < 3; i++ {
		resp, err := get(t, context.Background(), client, server.URL)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		resp.Body.Close()
	}
	if len(observed) != 3 || observed[0] != http.StatusNoContent {
		t.Errorf("observed = %v", observed)
	}

	// A limiter with no tokens and a cancelled context fails fast.
	empty := rate.NewLimiter(rate.Every(time.Hour), 1)
	empty.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := get(t, ctx, newTestClient(fastPolicy(0), WithRateLimiter(empty)), server.URL)
	if !types.IsCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Errorf("expected upstream_unavailable when the limiter cannot wait, got %v", err)
	}
}

func TestDo_PostBodyPreservedAcrossRetries(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"a":1}`))
	resp, err := newTestClient(fastPolicy(2)).Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if len(bodies) != 2 || bodies[0] != `{"a":1}` || bodies[1] != `{"a":1}` {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestComputeBackoff_Bounds(t *testing.T) {
	c := newTestClient(RetryPolicy{MaxRetries: 5, MinWait: 10 * time.Millisecond, MaxWait: 80 * time.Millisecond})
	for attempt := 0; attempt < 6; attempt++ {
		d := c.computeBackoff(attempt, nil)
		if d < 10*time.Millisecond || d > 80*time.Millisecond {
			t.Errorf("attempt %d: backoff %v outside [10ms, 80ms]", attempt, d)
		}
	}
}
