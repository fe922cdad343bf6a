package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"delaywatch/internal/notifications"
	"delaywatch/internal/security"
	"delaywatch/internal/types"
)

// maxResponseBodyRead limits how much of a reply is read for diagnostics.
const maxResponseBodyRead = 4096

var _ notifications.Sink = (*Sink)(nil)

// Config configures a webhook Sink.
type Config struct {
	URL            string
	Secret         string
	PreviousSecret string
	UserAgent      string
	Timeout        time.Duration
	MaxRedirects   int
	// AllowPrivateIPs disables the SSRF guard. Local development only.
	AllowPrivateIPs bool
}

// Sink POSTs signed alert payloads to a single destination.
type Sink struct {
	url        string
	userAgent  string
	formatter  Formatter
	signer     *Signer
	httpClient *http.Client
	clock      types.Clock
	logger     types.Logger
}

// Option customizes a Sink.
type Option func(*Sink)

// WithHTTPClient replaces the default (SSRF-guarded) client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.httpClient = c }
}

// WithClock overrides the signing clock.
func WithClock(c types.Clock) Option {
	return func(s *Sink) { s.clock = c }
}

// NewSink validates cfg and builds a Sink.
func NewSink(cfg Config, logger types.Logger, opts ...Option) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sink: url is required")
	}
	if err := types.ValidateWebhookURL(cfg.URL, cfg.AllowPrivateIPs); err != nil {
		return nil, fmt.Errorf("webhook sink: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("webhook sink: signing secret is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("webhook sink: logger is nil")
	}

	s := &Sink{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		formatter: FormatterFor(DetectPlatform(cfg.URL)),
		signer:    NewSigner(cfg.Secret, cfg.PreviousSecret),
		clock:     types.RealClock{},
		logger:    logger.With("sink", "webhook"),
	}
	if cfg.AllowPrivateIPs {
		s.httpClient = &http.Client{Timeout: cfg.Timeout, CheckRedirect: limitRedirects(cfg.MaxRedirects)}
	} else {
		s.httpClient = security.NewSafeHTTPClient(cfg.Timeout, cfg.MaxRedirects)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "webhook" }

// Platform reports the detected destination platform.
func (s *Sink) Platform() Platform { return s.formatter.Platform() }

// Send formats, signs and POSTs p. Any non-success outcome is returned as
// an ErrCodeDeliveryFailed (or rate limited) AppError; nothing is retried.
func (s *Sink) Send(ctx context.Context, p *notifications.Payload) error {
	body, err := s.formatter.Format(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "failed to format webhook payload", err)
	}
	sig, err := s.signer.Sign(body, s.clock.Now())
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "failed to sign webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(SignatureHeader, sig)
	req.Header.Set("X-Delaywatch-Event", string(p.AlertType))
	req.Header.Set("X-Delaywatch-Alert-Id", p.AlertID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isSSRFError(err) {
			s.logger.Error("webhook destination blocked", "error", err.Error())
			return types.NewAppError(types.ErrCodeDeliveryFailed, "webhook destination blocked", err)
		}
		return types.NewAppError(types.ErrCodeDeliveryFailed, "webhook request failed", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited, "webhook destination rate limited", nil,
			map[string]any{"retry_after": resp.Header.Get("Retry-After")})
	case resp.StatusCode == http.StatusGone:
		s.logger.Warn("webhook endpoint gone, configuration should be removed", "status", resp.StatusCode)
	}

	if err := s.formatter.ValidateResponse(resp.StatusCode, respBody); err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeDeliveryFailed, "webhook delivery rejected", err,
			map[string]any{"status": resp.StatusCode})
	}

	s.logger.Info("webhook delivered",
		"alert_id", p.AlertID,
		"status", resp.StatusCode,
		"request_id", resp.Header.Get("X-Request-Id"),
	)
	return nil
}

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return security.ErrSSRFTooManyRedirects
		}
		return nil
	}
}

func isSSRFError(err error) bool {
	return errors.Is(err, security.ErrSSRFBlocked) ||
		errors.Is(err, security.ErrSSRFDNSTimeout) ||
		errors.Is(err, security.ErrSSRFTooManyRedirects) ||
		errors.Is(err, security.ErrSSRFDNSFailed)
}
