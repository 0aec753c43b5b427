package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceid/internal/engine"
)

// IndexHandler handles index maintenance endpoints.
type IndexHandler struct {
	engine   *engine.Engine
	savePath string
}

// NewIndexHandler creates a new index handler. savePath is the configured
// persistence base path; saving without one is rejected.
func NewIndexHandler(eng *engine.Engine, savePath string) *IndexHandler {
	return &IndexHandler{engine: eng, savePath: savePath}
}

// Stats returns a snapshot of the index backend.
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.IndexStats())
}

// Save persists the index to the configured path.
func (h *IndexHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h.savePath == "" {
		respondError(w, http.StatusBadRequest, "no index path configured")
		return
	}
	if err := h.engine.SaveIndex(r.Context(), h.savePath); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"saved": h.savePath})
}

// Rebuild reconstructs the index from the stored face embeddings,
// reclaiming space left by removed entries.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Reindex(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reindexed": count,
		"stats":     h.engine.IndexStats(),
	})
}
