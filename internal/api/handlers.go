package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"heroes/internal/engine"
	"heroes/internal/model"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned by operations without a record to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// characterService is the part of engine.Service the handlers use.
type characterService interface {
	List(ctx context.Context) (model.Collection, error)
	Search(ctx context.Context, q string) (model.Collection, error)
	Get(ctx context.Context, id model.CharacterID) (model.Character, error)
	Create(ctx context.Context, in model.CharacterInput) (model.Character, error)
	Update(ctx context.Context, id model.CharacterID, in model.CharacterInput) (model.Character, error)
	Delete(ctx context.Context, id model.CharacterID) error
	Journal() *engine.Journal
}

// Characters implements ServerInterface on top of the mutation service.
type Characters struct {
	svc characterService
}

var _ ServerInterface = (*Characters)(nil)

func NewCharacters(svc characterService) *Characters {
	return &Characters{svc: svc}
}

func (h *Characters) ListCharacters(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to load characters")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Characters) SearchCharacters(w http.ResponseWriter, r *http.Request, params SearchCharactersParams) {
	q := ""
	if params.Query != nil {
		q = *params.Query
	}
	c, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeServiceError(w, err, "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Characters) GetCharacter(w http.ResponseWriter, r *http.Request, id int64) {
	ch, err := h.svc.Get(r.Context(), model.CharacterID(id))
	if err != nil {
		writeServiceError(w, err, "Failed to load character")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Characters) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	ch, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "Failed to add character")
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *Characters) UpdateCharacter(w http.ResponseWriter, r *http.Request, id int64) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	ch, err := h.svc.Update(r.Context(), model.CharacterID(id), in)
	if err != nil {
		writeServiceError(w, err, "Failed to update character")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Characters) DeleteCharacter(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.svc.Delete(r.Context(), model.CharacterID(id)); err != nil {
		writeServiceError(w, err, "Failed to delete character")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Character deleted"})
}

func (h *Characters) ListJournal(w http.ResponseWriter, r *http.Request) {
	j := h.svc.Journal()
	if j == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Journal is disabled"})
		return
	}
	entries, err := j.Entries()
	if err != nil {
		plog.Errorf("failed to read journal: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to read journal"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func decodeInput(w http.ResponseWriter, r *http.Request) (model.CharacterInput, bool) {
	var in model.CharacterInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("Invalid request body: %v", err)})
		return in, false
	}
	return in, true
}

// writeServiceError maps the error taxonomy onto status codes. Storage and
// unexpected failures are logged and answered with the generic message.
func writeServiceError(w http.ResponseWriter, err error, generic string) {
	var (
		verr *model.ValidationError
		nerr *model.NotFoundError
		serr *model.StorageError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Character not found"})
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrClosed):
		plog.Warningf("%s: %v", generic, err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: generic})
	case errors.As(err, &serr):
		plog.Errorf("%s: %v", generic, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: generic})
	default:
		plog.Errorf("%s: unexpected error: %v", generic, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: generic})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		plog.Errorf("failed to write response: %v", err)
	}
}
