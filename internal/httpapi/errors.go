package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"irisd/internal/llm"
	"irisd/internal/session"
	"irisd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps registry error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, llm.ErrRuntimeUnavailable):
		return http.StatusServiceUnavailable
	case session.IsRegistryClosed(err):
		return http.StatusServiceUnavailable
	case session.IsModelNotFound(err):
		return http.StatusNotFound
	case session.IsNotLoaded(err), session.IsNotInitialized(err):
		return http.StatusConflict
	case session.IsLoadFailure(err):
		return http.StatusUnprocessableEntity
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeServiceError maps err and writes it in one step.
func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}
