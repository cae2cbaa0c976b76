// Package api holds the HTTP response helpers shared by the module handler
// packages: JSON writing and the single mapping from the domain error
// taxonomy onto status codes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/domain"
)

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteErrorMessage writes a plain error payload with the given status.
func WriteErrorMessage(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	WriteJSON(w, log, status, map[string]string{"error": message})
}

// WriteError classifies err and writes the matching status. Rate-limited
// errors carry a Retry-After header when a hint is available.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)

	if status == http.StatusTooManyRequests {
		if after, ok := domain.RetryAfterOf(err); ok && after > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(after.Seconds())))
		}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}

	WriteErrorMessage(w, log, status, message)
}

// StatusFor maps the domain error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoData):
		// Analysis before the first sync is a sequencing problem, not a
		// malformed request.
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBadRequest, domain.KindParse:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		// Upstream rejected our credentials; from the operator's side this
		// is a bad gateway, not a client fault.
		return http.StatusBadGateway
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
