package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/retake/internal/adapters/http/api"
	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/adapters/repository"
	service "github.com/okian/retake/internal/app"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/snapshot"
	"github.com/okian/retake/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records the last call and answers with err when set.
type mockDependencies struct {
	err      error
	lastOp   engine.Op
	lastLoop *bool
	lastTake string
	loop     types.LoopSettings
	batch    string
	samples  []types.Sample
	seen     map[string]bool
	patch    types.EventPatch
	index    int
	after    uint64
	limit    int
	blob     []byte
}

func (m *mockDependencies) session(id string) (types.Session, error) {
	if m.err != nil {
		return types.Session{}, m.err
	}
	return types.Session{ID: id, State: "idle"}, nil
}

func (m *mockDependencies) CreateSession(_ context.Context, opts types.SessionOptions) (types.Session, error) {
	s, err := m.session("s1")
	s.Mode = opts.Mode
	return s, err
}

func (m *mockDependencies) Sessions(context.Context) ([]types.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []types.Session{{ID: "s1"}, {ID: "s2"}}, nil
}

func (m *mockDependencies) Session(_ context.Context, id string) (types.Session, error) {
	return m.session(id)
}

func (m *mockDependencies) DeleteSession(context.Context, string) error { return m.err }

func (m *mockDependencies) Control(_ context.Context, id string, op engine.Op) (types.Session, error) {
	m.lastOp = op
	return m.session(id)
}

func (m *mockDependencies) Play(_ context.Context, id string, loop *bool, take string) (types.Session, error) {
	m.lastLoop, m.lastTake = loop, take
	s, err := m.session(id)
	s.State = "playing"
	return s, err
}

func (m *mockDependencies) SetLoop(_ context.Context, id string, ls types.LoopSettings) (types.Session, error) {
	m.loop = ls
	s, err := m.session(id)
	if ls.Loop != nil {
		s.Loop = *ls.Loop
	}
	return s, err
}

func (m *mockDependencies) UseClock(_ context.Context, id, mode string) (types.Session, error) {
	s, err := m.session(id)
	s.ClockMode = mode
	return s, err
}

func (m *mockDependencies) Tempo(_ context.Context, id string, beats, bpm float64) (types.Session, error) {
	s, err := m.session(id)
	s.NowMs, s.BPM = beats*1000, bpm
	return s, err
}

func (m *mockDependencies) Input(_ context.Context, _ string, batch string, samples []types.Sample) (types.InputResult, error) {
	if m.err != nil {
		return types.InputResult{}, m.err
	}
	m.batch, m.samples = batch, samples
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if batch != "" && m.seen[batch] {
		return types.InputResult{Duplicate: true, State: "recording"}, nil
	}
	m.seen[batch] = true
	return types.InputResult{Outcomes: []string{"stored"}, State: "recording"}, nil
}

func (m *mockDependencies) Snapshot(context.Context, string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte(`{"version":2}`), nil
}

func (m *mockDependencies) LoadSnapshot(_ context.Context, id string, blob []byte) (types.Session, error) {
	m.blob = blob
	return m.session(id)
}

func (m *mockDependencies) ExportSMF(context.Context, string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("MThd"), nil
}

func (m *mockDependencies) ImportSMF(_ context.Context, id string, r io.Reader) (types.Session, error) {
	m.blob, _ = io.ReadAll(r)
	return m.session(id)
}

func (m *mockDependencies) Events(context.Context, string) ([]types.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []types.Event{{Index: 0, Kind: "down"}}, nil
}

func (m *mockDependencies) EditEvent(_ context.Context, _ string, index int, patch types.EventPatch) ([]types.Event, error) {
	m.index, m.patch = index, patch
	return m.Events(context.Background(), "")
}

func (m *mockDependencies) Stretch(context.Context, string, float64) ([]types.Event, error) {
	return m.Events(context.Background(), "")
}

func (m *mockDependencies) Renders(_ context.Context, _ string, after uint64, limit int) ([]types.Render, error) {
	m.after, m.limit = after, limit
	if m.err != nil {
		return nil, m.err
	}
	return []types.Render{{Seq: after + 1}}, nil
}

func (m *mockDependencies) SaveTake(_ context.Context, _, name string) (types.Take, error) {
	if m.err != nil {
		return types.Take{}, m.err
	}
	return types.Take{Name: name, Events: 3}, nil
}

func (m *mockDependencies) LoadTake(_ context.Context, id, _ string) (types.Session, error) {
	return m.session(id)
}

func (m *mockDependencies) Takes(context.Context) ([]types.Take, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []types.Take{{Name: "a"}}, nil
}

func (m *mockDependencies) Take(_ context.Context, name string) (types.Take, []byte, error) {
	if m.err != nil {
		return types.Take{}, nil, m.err
	}
	return types.Take{Name: name}, []byte(`{"version":2}`), nil
}

func (m *mockDependencies) DeleteTake(context.Context, string) error { return m.err }

func (m *mockDependencies) GetStats() types.Stats {
	return types.Stats{Sessions: 2, StoreDriver: "memory"}
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Health, stats and metrics are served", func() {
			w := serve(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)

			w = serve(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats types.Stats
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats.Sessions, ShouldEqual, 2)

			w = serve(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Unknown routes and methods are refused", func() {
			So(serve(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/sessions/s1/arm", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestSessionsHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("POST /sessions creates a session with or without a body", func() {
			w := serve(mux, http.MethodPost, "/sessions", "")
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Location"), ShouldEqual, "/sessions/s1")

			w = serve(mux, http.MethodPost, "/sessions", `{"mode":"lookahead"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, `"mode":"lookahead"`)

			w = serve(mux, http.MethodPost, "/sessions", `{"mode":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Sessions are listed, read and deleted", func() {
			So(serve(mux, http.MethodGet, "/sessions", "").Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodGet, "/sessions/s1", "").Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodDelete, "/sessions/s1", "").Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("Every control route dispatches its operation", func() {
			for _, op := range []engine.Op{engine.OpArm, engine.OpDisarm, engine.OpRecord, engine.OpStop, engine.OpClear, engine.OpToggle} {
				w := serve(mux, http.MethodPost, "/sessions/s1/"+op.String(), "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastOp, ShouldEqual, op)
			}
		})

		Convey("Play passes loop and take", func() {
			w := serve(mux, http.MethodPost, "/sessions/s1/play", `{"loop":true,"take":"intro"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(*deps.lastLoop, ShouldBeTrue)
			So(deps.lastTake, ShouldEqual, "intro")

			w = serve(mux, http.MethodPost, "/sessions/s1/play", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLoop, ShouldBeNil)
		})

		Convey("Loop settings pass the pass cap and region", func() {
			w := serve(mux, http.MethodPut, "/sessions/s1/loop", `{"max_passes":4,"region":{"start_ms":250,"end_ms":750}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.loop.Loop, ShouldBeNil)
			So(*deps.loop.MaxPasses, ShouldEqual, 4)
			So(deps.loop.Region, ShouldResemble, &types.Region{StartMs: 250, EndMs: 750})

			So(serve(mux, http.MethodPut, "/sessions/s1/loop", `{"auto_region":true}`).Code, ShouldEqual, http.StatusOK)
			So(deps.loop.AutoRegion, ShouldBeTrue)
		})

		Convey("Loop, clock and tempo need their fields", func() {
			So(serve(mux, http.MethodPut, "/sessions/s1/loop", `{"loop":true}`).Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodPut, "/sessions/s1/loop", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodPut, "/sessions/s1/clock", `{"clock":"host"}`).Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodPost, "/sessions/s1/tempo", `{"beats":2,"bpm":120}`).Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodPost, "/sessions/s1/tempo", `{"bpm":120}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestInputHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		body := `{"batch_id":"b1","samples":[{"kind":"down","x":0.5,"y":0.5}]}`

		Convey("A new batch is accepted", func() {
			w := serve(mux, http.MethodPost, "/sessions/s1/input", body)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.batch, ShouldEqual, "b1")
			So(deps.samples, ShouldHaveLength, 1)

			Convey("And a repeated batch is acknowledged as a duplicate", func() {
				w := serve(mux, http.MethodPost, "/sessions/s1/input", body)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("The batch id may come from the Idempotency-Key header", func() {
			req := httptest.NewRequest(http.MethodPost, "/sessions/s1/input", strings.NewReader(`{"samples":[{"kind":"up"}]}`))
			req.Header.Set("Idempotency-Key", "k9")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.batch, ShouldEqual, "k9")
		})

		Convey("An empty batch is a bad request", func() {
			So(serve(mux, http.MethodPost, "/sessions/s1/input", `{"samples":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A full command queue is backpressure", func() {
			deps.err = queue.ErrFull
			So(serve(mux, http.MethodPost, "/sessions/s1/input", body).Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestRecordingHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("The snapshot is returned and loaded verbatim", func() {
			w := serve(mux, http.MethodGet, "/sessions/s1/recording", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"version":2}`)

			w = serve(mux, http.MethodPut, "/sessions/s1/recording", `{"version":2,"events":[]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(string(deps.blob), ShouldEqual, `{"version":2,"events":[]}`)

			So(serve(mux, http.MethodPut, "/sessions/s1/recording", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("MIDI files are exported and imported", func() {
			w := serve(mux, http.MethodGet, "/sessions/s1/recording.mid", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "audio/midi")

			w = serve(mux, http.MethodPut, "/sessions/s1/recording.mid", "MThd....")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(string(deps.blob), ShouldEqual, "MThd....")
		})

		Convey("Events are listed, edited and stretched", func() {
			So(serve(mux, http.MethodGet, "/sessions/s1/recording/events", "").Code, ShouldEqual, http.StatusOK)

			w := serve(mux, http.MethodPatch, "/sessions/s1/recording/events/2", `{"x":0.3,"remove":false}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.index, ShouldEqual, 2)
			So(*deps.patch.X, ShouldEqual, 0.3)

			So(serve(mux, http.MethodPatch, "/sessions/s1/recording/events/two", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodPost, "/sessions/s1/recording/stretch", `{"factor":2}`).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Renders honour after and limit", func() {
			w := serve(mux, http.MethodGet, "/sessions/s1/renders?after=5&limit=10", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.after, ShouldEqual, 5)
			So(deps.limit, ShouldEqual, 10)

			So(serve(mux, http.MethodGet, "/sessions/s1/renders?after=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(mux, http.MethodGet, "/sessions/s1/renders?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTakesHandler(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Takes are saved, loaded, listed, read and deleted", func() {
			w := serve(mux, http.MethodPost, "/sessions/s1/takes", `{"name":"intro"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Location"), ShouldEqual, "/takes/intro")

			So(serve(mux, http.MethodPost, "/sessions/s1/takes/intro/load", "").Code, ShouldEqual, http.StatusOK)
			So(serve(mux, http.MethodGet, "/takes", "").Code, ShouldEqual, http.StatusOK)

			w = serve(mux, http.MethodGet, "/takes/intro", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"snapshot":{"version":2}`)

			So(serve(mux, http.MethodDelete, "/takes/intro", "").Code, ShouldEqual, http.StatusNoContent)
		})
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", service.ErrSessionNotFound), http.StatusNotFound, "not_found"},
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{engine.ErrNoRecording, http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: arm while playing", engine.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("%w: 40s pass exceeds 30s", engine.ErrLoopTooLong), http.StatusConflict, "loop_too_long"},
		{fmt.Errorf("loop region: %w", model.ErrEmptyRegion), http.StatusBadRequest, "bad_request"},
		{fmt.Errorf("load: %w", snapshot.ErrUnknownSchemaVersion), http.StatusBadRequest, "unknown_schema_version"},
		{snapshot.ErrMalformedRecording, http.StatusBadRequest, "bad_request"},
		{service.ErrInvalidArgument, http.StatusBadRequest, "bad_request"},
		{repository.ErrInvalidName, http.StatusBadRequest, "bad_request"},
		{queue.ErrFull, http.StatusTooManyRequests, "backpressure"},
		{service.ErrTooManySessions, http.StatusTooManyRequests, "backpressure"},
		{queue.ErrStopped, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	Convey("Given handlers whose dependencies fail", t, func() {
		for _, tc := range cases {
			deps := &mockDependencies{err: tc.err}
			w := serve(newMux(deps), http.MethodGet, "/sessions/s1", "")

			So(w.Code, ShouldEqual, tc.status)
			var body struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Code, ShouldEqual, tc.code)
			So(body.Message, ShouldEqual, tc.err.Error())
		}
	})
}
