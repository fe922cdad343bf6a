package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delaywatch/internal/monitor"
	"delaywatch/internal/types"
)

type stubRunner struct {
	report monitor.MonitorRunReport
	err    error
}

func (s stubRunner) RunScheduled(context.Context) (monitor.MonitorRunReport, error) {
	return s.report, s.err
}

func newHandler(r ScheduledRunner) *Handler {
	return &Handler{Runner: r, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandle_Completed(t *testing.T) {
	h := newHandler(stubRunner{report: monitor.MonitorRunReport{RunID: "run-1", SitesTotal: 2, SitesEvaluated: 2}})

	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	require.NotNil(t, res.Report)
	assert.Equal(t, "run-1", res.Report.RunID)
}

func TestHandle_LockedSlotIsSkipped(t *testing.T) {
	h := newHandler(stubRunner{err: types.NewAppError(types.ErrCodeConflictRunLocked, "run already in progress", nil)})

	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skipped", res.Status)
	assert.Nil(t, res.Report)
}

func TestHandle_FailurePropagates(t *testing.T) {
	h := newHandler(stubRunner{err: errors.New("load sites: connection refused")})

	_, err := h.Handle(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
