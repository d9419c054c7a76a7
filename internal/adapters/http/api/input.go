package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/retake/internal/domain/types"
)

// InputDependencies defines the interface for sample input.
type InputDependencies interface {
	// Input applies a batch once per non-empty batchID.
	Input(ctx context.Context, id, batchID string, samples []types.Sample) (types.InputResult, error)
}

// InputHandler handles input requests.
type InputHandler struct {
	deps InputDependencies
}

// NewInputHandler creates a new input handler.
func NewInputHandler(deps InputDependencies) *InputHandler {
	return &InputHandler{deps: deps}
}

// inputRequest is the body of POST /sessions/{id}/input.
type inputRequest struct {
	BatchID string         `json:"batch_id"`
	Samples []types.Sample `json:"samples"`
}

// HandlePostInput handles POST /sessions/{id}/input. The batch id may also
// come from the Idempotency-Key header.
func (h *InputHandler) HandlePostInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	batch := strings.TrimSpace(req.BatchID)
	if batch == "" {
		batch = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	res, err := h.deps.Input(r.Context(), r.PathValue("id"), batch, req.Samples)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
