package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/retake/internal/domain/types"
)

// defaultRenderLimit caps GET /sessions/{id}/renders without a limit.
const defaultRenderLimit = 256

// RecordingDependencies read and replace the Recording of a session.
type RecordingDependencies interface {
	Snapshot(ctx context.Context, id string) ([]byte, error)
	LoadSnapshot(ctx context.Context, id string, blob []byte) (types.Session, error)
	ExportSMF(ctx context.Context, id string) ([]byte, error)
	ImportSMF(ctx context.Context, id string, r io.Reader) (types.Session, error)
	Events(ctx context.Context, id string) ([]types.Event, error)
	EditEvent(ctx context.Context, id string, index int, patch types.EventPatch) ([]types.Event, error)
	Stretch(ctx context.Context, id string, factor float64) ([]types.Event, error)
	Renders(ctx context.Context, id string, after uint64, limit int) ([]types.Render, error)
}

// RecordingHandler handles recording and render log requests.
type RecordingHandler struct {
	deps RecordingDependencies
}

func NewRecordingHandler(deps RecordingDependencies) *RecordingHandler {
	return &RecordingHandler{deps: deps}
}

type stretchRequest struct {
	Factor float64 `json:"factor"`
}

// HandleGet handles GET /sessions/{id}/recording and returns the snapshot
// document as stored.
func (h *RecordingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	blob, err := h.deps.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(blob)
}

// HandlePut handles PUT /sessions/{id}/recording with a snapshot document.
func (h *RecordingHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	blob, err := readBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.LoadSnapshot(r.Context(), r.PathValue("id"), blob)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *RecordingHandler) HandleGetSMF(w http.ResponseWriter, r *http.Request) {
	data, err := h.deps.ExportSMF(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="recording.mid"`)
	_, _ = w.Write(data)
}

func (h *RecordingHandler) HandlePutSMF(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.ImportSMF(r.Context(), r.PathValue("id"), bytes.NewReader(data))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *RecordingHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleEditEvent handles PATCH /sessions/{id}/recording/events/{index}.
func (h *RecordingHandler) HandleEditEvent(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeFailure(w, fmt.Errorf("%w: index %q", ErrBadRequest, r.PathValue("index")))
		return
	}
	var patch types.EventPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		writeFailure(w, err)
		return
	}
	events, err := h.deps.EditEvent(r.Context(), r.PathValue("id"), index, patch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *RecordingHandler) HandleStretch(w http.ResponseWriter, r *http.Request) {
	var req stretchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	events, err := h.deps.Stretch(r.Context(), r.PathValue("id"), req.Factor)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleRenders handles GET /sessions/{id}/renders?after=N&limit=M.
func (h *RecordingHandler) HandleRenders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeFailure(w, fmt.Errorf("%w: after %q", ErrBadRequest, v))
			return
		}
		after = n
	}
	limit := defaultRenderLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeFailure(w, fmt.Errorf("%w: limit %q", ErrBadRequest, v))
			return
		}
		limit = n
	}
	renders, err := h.deps.Renders(r.Context(), r.PathValue("id"), after, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renders)
}
