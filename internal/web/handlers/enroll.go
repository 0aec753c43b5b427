package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/engine"
)

// EnrollHandler handles enrollment endpoints.
type EnrollHandler struct {
	engine           *engine.Engine
	qualityThreshold float64
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(eng *engine.Engine, qualityThreshold float64) *EnrollHandler {
	return &EnrollHandler{engine: eng, qualityThreshold: qualityThreshold}
}

// readUploadedImages collects the payloads of all multipart files under
// the given form field.
func readUploadedImages(r *http.Request, field string) ([][]byte, error) {
	var images [][]byte
	for _, header := range r.MultipartForm.File[field] {
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// Enroll processes a multipart batch of images for one person. Rejected
// images are reported per item; the call succeeds if at least one image
// enrolled.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	images, err := readUploadedImages(r, "images")
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded files")
		return
	}
	if len(images) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}

	threshold := h.qualityThreshold
	if v := r.FormValue("quality_threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			respondError(w, http.StatusBadRequest, "quality_threshold must be in (0, 1]")
			return
		}
		threshold = parsed
	}

	result, err := h.engine.Enroll(r.Context(), personID, images, engine.EnrollOptions{
		QualityThreshold: threshold,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns one enrollment record.
func (h *EnrollHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.engine.Store().GetEnrollment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}
