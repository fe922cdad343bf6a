// Package app wires configuration into the running engine. Both the
// long-running service and the Lambda entrypoint build the same graph.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"delaywatch/internal/config"
	"delaywatch/internal/db"
	"delaywatch/internal/delay"
	"delaywatch/internal/external"
	"delaywatch/internal/monitor"
	"delaywatch/internal/notifications"
	"delaywatch/internal/notifications/webhook"
	"delaywatch/internal/queue"
	"delaywatch/internal/telemetry"
	"delaywatch/internal/types"
	"delaywatch/internal/weather"
)

// App is the assembled engine.
type App struct {
	Config       *config.Config
	Pool         *pgxpool.Pool
	Orchestrator *monitor.Orchestrator
	Runner       *monitor.Runner
	Metrics      telemetry.Recorder

	// MetricsHandler serves /metrics when the Prometheus backend is active.
	MetricsHandler http.Handler

	closers []func() error
	logger  *slog.Logger
}

// New connects to the database and builds every component from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) (*App, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &App{Config: cfg, logger: logger}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS SDK config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	sinkLogger := types.NewSlogLogger(logger)

	switch cfg.Observability.MetricsBackend {
	case "prometheus":
		a.Metrics = telemetry.NewPrometheus(prometheus.DefaultRegisterer)
		a.MetricsHandler = promhttp.Handler()
	case "cloudwatch":
		c, err := loadAWS()
		if err != nil {
			a.Close()
			return nil, err
		}
		cw := cloudwatch.NewFromConfig(c, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		a.Metrics = telemetry.NewCloudWatch(cw, cfg.Observability.MetricNamespace, sinkLogger)
	default:
		a.Metrics = telemetry.Nop{}
	}

	weatherClient, err := weather.NewClient(weather.Config{
		BaseURL:          cfg.Weather.BaseURL,
		UserAgent:        cfg.Weather.UserAgent,
		Timeout:          cfg.Weather.Timeout,
		MaxStationMiles:  cfg.Weather.MaxStationMiles,
		Retry:            retryPolicy(cfg.Weather.MaxRetries),
		RateLimitRPS:     cfg.Weather.RateLimitRPS,
		RateLimitBurst:   cfg.Weather.RateLimitBurst,
		StationCacheSize: cfg.Weather.StationCacheSize,
		StationCacheTTL:  cfg.Weather.StationCacheTTL,
	}, nil, clock, logger.With("component", "weather"), external.WithObserver(telemetry.UpstreamObserver(a.Metrics)))
	if err != nil {
		a.Close()
		return nil, err
	}

	sinks, err := a.buildSinks(cfg, sinkLogger, loadAWS)
	if err != nil {
		a.Close()
		return nil, err
	}

	store := db.NewStore(pool)
	tracker := delay.NewTracker(store, delay.CostPolicy(cfg.Delay.CostPolicy), logger.With("component", "tracker"))
	dispatcher := notifications.NewDispatcher(notifications.DispatcherConfig{
		Alerts:      store,
		Sinks:       sinks,
		Metrics:     a.Metrics,
		Clock:       clock,
		Logger:      logger.With("component", "dispatcher"),
		SinkTimeout: cfg.Webhook.Timeout,
	})

	a.Orchestrator, err = monitor.NewOrchestrator(monitor.Config{
		Sites:       store,
		Weather:     weatherClient,
		Readings:    store,
		Tracker:     tracker,
		Dispatcher:  dispatcher,
		Metrics:     a.Metrics,
		Clock:       clock,
		Logger:      logger.With("component", "monitor"),
		Concurrency: cfg.Monitor.Concurrency,
		SiteTimeout: cfg.Monitor.SiteTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Runner = monitor.NewRunner(monitor.RunnerConfig{
		Executor: a.Orchestrator,
		Locks:    db.NewJobLockRepository(pool, clock),
		History:  db.NewJobHistoryRepository(pool),
		Clock:    clock,
		Logger:   logger.With("component", "runner"),
		WorkerID: cfg.Monitor.WorkerID,
		Interval: cfg.Monitor.Interval,
		LockTTL:  cfg.Monitor.LockTTL,
	})

	logger.Info("engine assembled",
		"sinks", len(sinks),
		"metrics_backend", cfg.Observability.MetricsBackend,
		"cost_policy", cfg.Delay.CostPolicy,
		"concurrency", cfg.Monitor.Concurrency,
	)
	return a, nil
}

func (a *App) buildSinks(cfg *config.Config, logger types.Logger, loadAWS func() (aws.Config, error)) ([]notifications.Sink, error) {
	var sinks []notifications.Sink

	if cfg.Webhook.URL != "" {
		s, err := webhook.NewSink(webhook.Config{
			URL:             cfg.Webhook.URL,
			Secret:          cfg.Webhook.Secret.Unmask(),
			PreviousSecret:  cfg.Webhook.PreviousSecret.Unmask(),
			UserAgent:       cfg.Webhook.UserAgent,
			Timeout:         cfg.Webhook.Timeout,
			MaxRedirects:    cfg.Webhook.MaxRedirects,
			AllowPrivateIPs: cfg.Webhook.AllowPrivateIPs,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if cfg.Queue.AlertQueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := sqs.NewFromConfig(c, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		sinks = append(sinks, queue.NewSQSSink(client, cfg.Queue.AlertQueueURL, logger))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := queue.NewKafkaSink(cfg.Kafka, logger)
		a.closers = append(a.closers, k.Close)
		sinks = append(sinks, k)
	}
	return sinks, nil
}

// Close releases sinks and the pool, in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func retryPolicy(maxRetries int) external.RetryPolicy {
	p := external.DefaultRetryPolicy()
	p.MaxRetries = maxRetries
	return p
}
