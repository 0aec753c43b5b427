package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/kozaktomas/faceid/internal/engine"
)

// IdentifyHandler handles identification and verification endpoints.
type IdentifyHandler struct {
	engine *engine.Engine
}

// NewIdentifyHandler creates a new identify handler.
func NewIdentifyHandler(eng *engine.Engine) *IdentifyHandler {
	return &IdentifyHandler{engine: eng}
}

// readUploadedImage reads the single multipart file under the given field.
func readUploadedImage(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// parseThreshold validates an optional threshold form value. Zero means
// "use the default".
func parseThreshold(r *http.Request, field string) (float64, bool) {
	v := r.FormValue(field)
	if v == "" {
		return 0, true
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		return 0, false
	}
	return parsed, true
}

// Identify matches an uploaded image against all enrolled faces.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	image, err := readUploadedImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	threshold, ok := parseThreshold(r, "threshold")
	if !ok {
		respondError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
		return
	}

	var topK int
	if v := r.FormValue("top_k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = parsed
	}

	result, err := h.engine.Identify(r.Context(), image, engine.IdentifyOptions{
		Threshold: threshold,
		TopK:      topK,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Verify checks an uploaded image against one claimed person.
func (h *IdentifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	personID := r.FormValue("person_id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	image, err := readUploadedImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	threshold, ok := parseThreshold(r, "threshold")
	if !ok {
		respondError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
		return
	}

	result, err := h.engine.Verify(r.Context(), personID, image, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
