package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundStation,
		Message: "no observation station near 40.0,-105.0",
	}

	expected := "not_found_station: no observation station near 40.0,-105.0"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeUpstreamUnavailable, "weather api failed", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is did not find the underlying error")
	}
	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("site s-1: %w", NewAppError(ErrCodeUpstreamMalformed, "bad json", nil))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As failed to extract AppError")
	}
	if appErr.Code != ErrCodeUpstreamMalformed {
		t.Errorf("Code = %q, want %q", appErr.Code, ErrCodeUpstreamMalformed)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{ErrCodeNotFoundStation, http.StatusNotFound},
		{ErrCodeConflictOpenDelay, http.StatusConflict},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamMalformed, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeInternalDB, "insert failed", nil, map[string]any{"table": "delay_events"})
	merged := orig.WithDetails(map[string]any{"site_id": "s-1"})

	if len(orig.Details) != 1 {
		t.Errorf("original details mutated: %v", orig.Details)
	}
	if merged.Details["table"] != "delay_events" || merged.Details["site_id"] != "s-1" {
		t.Errorf("merged details = %v", merged.Details)
	}
}

func TestCodeOfAndIsCode(t *testing.T) {
	inner := NewAppError(ErrCodeConflictOpenDelay, "open delay exists", nil)
	outer := NewAppError(ErrCodeInternalDB, "create failed", inner)
	wrapped := fmt.Errorf("tracker: %w", outer)

	if got := CodeOf(wrapped); got != ErrCodeInternalDB {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeInternalDB)
	}
	if !IsCode(wrapped, ErrCodeConflictOpenDelay) {
		t.Error("IsCode() should find the nested conflict code")
	}
	if IsCode(wrapped, ErrCodeNotFoundStation) {
		t.Error("IsCode() matched a code that is not in the chain")
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternalUnexpected {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrCodeInternalUnexpected)
	}
}
