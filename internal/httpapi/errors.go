package httpapi

import (
	"encoding/json"
	"net/http"

	"vlmd/internal/media"
	"vlmd/internal/pool"
	"vlmd/internal/serving"
	"vlmd/pkg/types"
)

// Error type discriminators in the OpenAI-style error envelope.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuth           = "authentication_error"
	errTypeMedia          = "media_error"
	errTypeOverloaded     = "overloaded_error"
	errTypeEngine         = "engine_error"
	errTypeNotFound       = "not_found_error"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent OpenAI-shaped error payload.
func writeJSONError(w http.ResponseWriter, status int, msg, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: types.ErrorDetail{
		Message: msg,
		Type:    typ,
	}})
}

// writeServiceError maps a service error onto the taxonomy and writes it.
// Engine failures stay opaque to the caller; pool exhaustion advertises a
// Retry-After. Must not be called once the response has started streaming.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case serving.IsValidation(err):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error(), errTypeInvalidRequest)
	case media.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error(), errTypeMedia)
	case media.IsError(err):
		writeJSONError(w, http.StatusBadRequest, err.Error(), errTypeMedia)
	case pool.IsExhausted(err):
		IncrementBackpressure("pool_exhausted")
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "all model slots are busy, retry shortly", errTypeOverloaded)
	case pool.IsClosed(err):
		IncrementBackpressure("shutting_down")
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down", errTypeOverloaded)
	default:
		if he, ok := err.(HTTPError); ok {
			writeJSONError(w, he.StatusCode(), he.Error(), errTypeInvalidRequest)
			return
		}
		logger().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error during generation", errTypeEngine)
	}
}
