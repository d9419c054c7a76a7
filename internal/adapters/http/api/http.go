// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/retake/internal/app"
	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/snapshot"
)

// maxBodyBytes bounds request bodies, snapshots and MIDI files included.
const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	InputDependencies
	RecordingDependencies
	TakeDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	sessionsHandler  *SessionsHandler
	inputHandler     *InputHandler
	recordingHandler *RecordingHandler
	takesHandler     *TakesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		sessionsHandler:  NewSessionsHandler(deps),
		inputHandler:     NewInputHandler(deps),
		recordingHandler: NewRecordingHandler(deps),
		takesHandler:     NewTakesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	sh := s.sessionsHandler
	mux.HandleFunc("POST /sessions", MetricsMiddleware(sh.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(sh.HandleList, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(sh.HandleGet, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(sh.HandleDelete, "session"))
	for _, op := range []engine.Op{engine.OpArm, engine.OpDisarm, engine.OpRecord, engine.OpStop, engine.OpClear, engine.OpToggle} {
		mux.HandleFunc("POST /sessions/{id}/"+op.String(), MetricsMiddleware(sh.HandleControl(op), op.String()))
	}
	mux.HandleFunc("POST /sessions/{id}/play", MetricsMiddleware(sh.HandlePlay, "play"))
	mux.HandleFunc("PUT /sessions/{id}/loop", MetricsMiddleware(sh.HandleLoop, "loop"))
	mux.HandleFunc("PUT /sessions/{id}/clock", MetricsMiddleware(sh.HandleClock, "clock"))
	mux.HandleFunc("POST /sessions/{id}/tempo", MetricsMiddleware(sh.HandleTempo, "tempo"))

	mux.HandleFunc("POST /sessions/{id}/input", MetricsMiddleware(s.inputHandler.HandlePostInput, "input"))

	rh := s.recordingHandler
	mux.HandleFunc("GET /sessions/{id}/recording", MetricsMiddleware(rh.HandleGet, "recording"))
	mux.HandleFunc("PUT /sessions/{id}/recording", MetricsMiddleware(rh.HandlePut, "recording"))
	mux.HandleFunc("GET /sessions/{id}/recording.mid", MetricsMiddleware(rh.HandleGetSMF, "recording_mid"))
	mux.HandleFunc("PUT /sessions/{id}/recording.mid", MetricsMiddleware(rh.HandlePutSMF, "recording_mid"))
	mux.HandleFunc("GET /sessions/{id}/recording/events", MetricsMiddleware(rh.HandleEvents, "recording_events"))
	mux.HandleFunc("PATCH /sessions/{id}/recording/events/{index}", MetricsMiddleware(rh.HandleEditEvent, "recording_events"))
	mux.HandleFunc("POST /sessions/{id}/recording/stretch", MetricsMiddleware(rh.HandleStretch, "recording_stretch"))
	mux.HandleFunc("GET /sessions/{id}/renders", MetricsMiddleware(rh.HandleRenders, "renders"))

	th := s.takesHandler
	mux.HandleFunc("POST /sessions/{id}/takes", MetricsMiddleware(th.HandleSave, "takes"))
	mux.HandleFunc("POST /sessions/{id}/takes/{name}/load", MetricsMiddleware(th.HandleLoad, "takes"))
	mux.HandleFunc("GET /takes", MetricsMiddleware(th.HandleList, "takes"))
	mux.HandleFunc("GET /takes/{name}", MetricsMiddleware(th.HandleGet, "take"))
	mux.HandleFunc("DELETE /takes/{name}", MetricsMiddleware(th.HandleDelete, "take"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err to its status and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, engine.ErrNoRecording):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrClockUnavailable):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, engine.ErrLoopTooLong):
		return http.StatusConflict, "loop_too_long"
	case errors.Is(err, snapshot.ErrUnknownSchemaVersion):
		return http.StatusBadRequest, "unknown_schema_version"
	case errors.Is(err, snapshot.ErrMalformedRecording),
		errors.Is(err, model.ErrMalformed),
		errors.Is(err, model.ErrPayloadMismatch),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrIndexOutOfRange),
		errors.Is(err, model.ErrEmptyRegion),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, repository.ErrInvalidName),
		errors.Is(err, repository.ErrEmptyTake),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, queue.ErrFull),
		errors.Is(err, service.ErrTooManySessions):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, queue.ErrStopped),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadRequest)
	}
	return body, nil
}
