package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/seatwise/seatwise/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already running", domain.ErrAlreadyRunning, http.StatusConflict},
		{"wrapped already running", fmt.Errorf("sync: %w", domain.ErrAlreadyRunning), http.StatusConflict},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusConflict},
		{"no data", domain.ErrNoData, http.StatusConflict},
		{"not found sentinel", domain.ErrNotFound, http.StatusNotFound},
		{"not found classified", domain.NotFound("analysis", "analysis missing"), http.StatusNotFound},
		{"bad request", domain.BadRequest("graph", "invalid period"), http.StatusBadRequest},
		{"parse", domain.Parse("partner", "bad json", nil), http.StatusBadRequest},
		{"unauthorized", domain.Unauthorized("graph", "rejected"), http.StatusBadGateway},
		{"rate limited", domain.RateLimited("graph", time.Minute, nil), http.StatusTooManyRequests},
		{"transient", domain.Transient("graph", "upstream down", nil), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteErrorSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zerolog.Nop(), domain.RateLimited("sync", 90*time.Second, nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zerolog.Nop(), errors.New("connection string with password=hunter2"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestWriteJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, zerolog.Nop(), http.StatusOK, map[string]int{"count": 3})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}
