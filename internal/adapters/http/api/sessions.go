package api

import (
	"context"
	"net/http"

	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/types"
)

// SessionDependencies drive the lifecycle and transport of sessions.
type SessionDependencies interface {
	CreateSession(ctx context.Context, opts types.SessionOptions) (types.Session, error)
	Sessions(ctx context.Context) ([]types.Session, error)
	Session(ctx context.Context, id string) (types.Session, error)
	DeleteSession(ctx context.Context, id string) error

	Control(ctx context.Context, id string, op engine.Op) (types.Session, error)
	Play(ctx context.Context, id string, loop *bool, take string) (types.Session, error)
	SetLoop(ctx context.Context, id string, ls types.LoopSettings) (types.Session, error)
	UseClock(ctx context.Context, id, mode string) (types.Session, error)
	Tempo(ctx context.Context, id string, beats, bpm float64) (types.Session, error)
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type playRequest struct {
	Loop *bool  `json:"loop,omitempty"`
	Take string `json:"take,omitempty"`
}

type clockRequest struct {
	Clock string `json:"clock"`
}

type tempoRequest struct {
	Beats *float64 `json:"beats"`
	BPM   float64  `json:"bpm"`
}

// HandleCreate handles POST /sessions. The body is optional.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.SessionOptions
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.CreateSession(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+s.ID)
	writeJSON(w, http.StatusCreated, s)
}

func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Sessions(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleControl returns the handler for POST /sessions/{id}/<op>.
func (h *SessionsHandler) HandleControl(op engine.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.deps.Control(r.Context(), r.PathValue("id"), op)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// HandlePlay handles POST /sessions/{id}/play with an optional body.
func (h *SessionsHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.Play(r.Context(), r.PathValue("id"), req.Loop, req.Take)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) HandleLoop(w http.ResponseWriter, r *http.Request) {
	var req types.LoopSettings
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Empty() {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	s, err := h.deps.SetLoop(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionsHandler) HandleClock(w http.ResponseWriter, r *http.Request) {
	var req clockRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.UseClock(r.Context(), r.PathValue("id"), req.Clock)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleTempo handles POST /sessions/{id}/tempo, the host transport feed.
func (h *SessionsHandler) HandleTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Beats == nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	s, err := h.deps.Tempo(r.Context(), r.PathValue("id"), *req.Beats, req.BPM)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
