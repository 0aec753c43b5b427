package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
)

// PersonsHandler handles person management endpoints.
type PersonsHandler struct {
	engine *engine.Engine
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(eng *engine.Engine) *PersonsHandler {
	return &PersonsHandler{engine: eng}
}

type createPersonRequest struct {
	Name string `json:"name"`
}

// Create registers a new person. Enrollment happens separately.
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	store := h.engine.Store()
	if existing, err := store.FindPersonByName(r.Context(), req.Name); err == nil {
		respondError(w, http.StatusConflict, "person already exists: "+existing.ID)
		return
	} else if !errors.Is(err, identity.ErrPersonNotFound) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	person := &identity.Person{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreatePerson(r.Context(), person); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, person)
}

// Get returns one person by ID.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	person, err := h.engine.Store().GetPerson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// List returns all persons.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	persons, err := h.engine.Store().ListPersons(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if persons == nil {
		persons = []identity.Person{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"persons": persons,
		"count":   len(persons),
	})
}

// Delete removes a person, their stored faces and the index mappings.
func (h *PersonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := h.engine.Store()

	faces, err := store.FacesByPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(faces) > 0 {
		ids := make([]string, len(faces))
		for i, f := range faces {
			ids[i] = f.ID
		}
		if err := h.engine.RemoveFromIndex(r.Context(), ids...); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := store.DeletePerson(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":       id,
		"removed_faces": len(faces),
	})
}

// ListFaces returns the enrolled faces of one person.
func (h *PersonsHandler) ListFaces(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := h.engine.Store()

	if _, err := store.GetPerson(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	faces, err := store.FacesByPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if faces == nil {
		faces = []identity.FaceRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"person_id": id,
		"faces":     faces,
		"count":     len(faces),
	})
}

// DeleteFace removes a single face from the index and the store.
func (h *PersonsHandler) DeleteFace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.DeleteFace(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
