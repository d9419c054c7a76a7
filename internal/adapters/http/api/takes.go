package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/retake/internal/domain/types"
)

// TakeDependencies give access to the take store.
type TakeDependencies interface {
	SaveTake(ctx context.Context, id, name string) (types.Take, error)
	LoadTake(ctx context.Context, id, name string) (types.Session, error)
	Takes(ctx context.Context) ([]types.Take, error)
	Take(ctx context.Context, name string) (types.Take, []byte, error)
	DeleteTake(ctx context.Context, name string) error
}

// TakesHandler handles take store requests.
type TakesHandler struct {
	deps TakeDependencies
}

func NewTakesHandler(deps TakeDependencies) *TakesHandler {
	return &TakesHandler{deps: deps}
}

type saveTakeRequest struct {
	Name string `json:"name"`
}

type takeResponse struct {
	types.Take
	Snapshot json.RawMessage `json:"snapshot"`
}

// HandleSave handles POST /sessions/{id}/takes.
func (h *TakesHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveTakeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	take, err := h.deps.SaveTake(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Location", "/takes/"+take.Name)
	writeJSON(w, http.StatusCreated, take)
}

// HandleLoad handles POST /sessions/{id}/takes/{name}/load.
func (h *TakesHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.LoadTake(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *TakesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	takes, err := h.deps.Takes(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, takes)
}

func (h *TakesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	take, blob, err := h.deps.Take(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, takeResponse{Take: take, Snapshot: blob})
}

func (h *TakesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteTake(r.Context(), r.PathValue("name")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
