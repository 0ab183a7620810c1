// Package handler implements the HTTP API handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"typerush/internal/auth"
	"typerush/internal/payment"
	"typerush/internal/pkg/lock"
	"typerush/internal/repository"
	"typerush/internal/service"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// WriteMessage writes {"error": msg} with status.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrNoLives):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidHearts),
		errors.Is(err, payment.ErrInvalidHearts):
		status = http.StatusBadRequest
	case errors.Is(err, lock.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("user_id", auth.UserID(r.Context())).
			Msg("Request failed")
		WriteMessage(w, status, "internal error")
		return
	}
	WriteMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
