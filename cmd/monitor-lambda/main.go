// Package main is the entrypoint for the scheduled monitoring Lambda.
//
// An EventBridge rule invokes the function once per interval. Each
// invocation takes the slot lock for the current interval and runs every
// active site; a slot already claimed by another worker is reported as
// skipped rather than failed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"delaywatch/internal/app"
	"delaywatch/internal/config"
	"delaywatch/internal/monitor"
	"delaywatch/internal/types"
)

// ScheduledRunner runs the current interval's slot.
type ScheduledRunner interface {
	RunScheduled(ctx context.Context) (monitor.MonitorRunReport, error)
}

// Result is returned to the invoker.
type Result struct {
	Status string                    `json:"status"`
	Report *monitor.MonitorRunReport `json:"report,omitempty"`
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	Runner ScheduledRunner
	Logger *slog.Logger
}

// Handle runs one scheduled slot. The event body is ignored.
func (h *Handler) Handle(ctx context.Context) (Result, error) {
	report, err := h.Runner.RunScheduled(ctx)
	if types.IsCode(err, types.ErrCodeConflictRunLocked) {
		h.Logger.InfoContext(ctx, "slot already claimed, skipping", "error", err)
		return Result{Status: "skipped"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("monitoring run failed: %w", err)
	}
	return Result{Status: "completed", Report: &report}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	// Initialized once per cold start and reused across invocations.
	engine, err := app.New(context.Background(), cfg, logger, nil)
	if err != nil {
		logger.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}

	h := &Handler{Runner: engine.Runner, Logger: logger}
	lambda.Start(h.Handle)
}
