// Package handlers implements the HTTP endpoints of the API server.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/liveness"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadSize bounds multipart uploads (32 MiB).
const maxUploadSize = 32 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps pipeline errors to HTTP statuses: 404 for
// missing records, 422 for face and liveness rejections, 500 for index or
// storage failures.
func respondDomainError(w http.ResponseWriter, err error) {
	var (
		multi   *capture.MultipleFacesError
		quality *engine.LowQualityError
		lively  *liveness.CheckFailedError
	)
	switch {
	case errors.Is(err, identity.ErrPersonNotFound),
		errors.Is(err, identity.ErrFaceNotFound),
		errors.Is(err, identity.ErrEnrollmentNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrNoFaceDetected),
		errors.As(err, &multi),
		errors.As(err, &quality),
		errors.As(err, &lively):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
