package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/retake/internal/adapters/midi"
	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/adapters/mq/worker"
	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

// session hosts one engine. Only its driver goroutine touches the engine;
// everything else goes through the command queue.
type session struct {
	id      string
	created time.Time

	engine   *engine.Engine
	internal *clock.Internal
	host     *clock.Host
	queue    *queue.InMemoryQueue
	driver   *worker.Driver
	renders  *renderLog
	output   *midiOutput

	state     atomic.Uint32
	clockMode atomic.Uint32

	mu       sync.Mutex
	listener *midi.Listener

	logger logger.Logger
}

// midiOutput forwards renders to a MIDI sink once one is attached.
type midiOutput struct {
	sink atomic.Pointer[midi.Sink]
}

func (o *midiOutput) Render(ev model.Event, at time.Duration) {
	if s := o.sink.Load(); s != nil {
		s.Render(ev, at)
	}
}

func (s *session) State() engine.State { return engine.State(s.state.Load()) }

// now reads the clock the engine currently runs on. Both clocks are safe to
// read from any goroutine.
func (s *session) now() time.Duration {
	if clock.Mode(s.clockMode.Load()) == clock.ModeHost {
		return s.host.Now()
	}
	return s.internal.Now()
}

// call runs cmd on the driver and waits for the result. A refused command
// comes back as an error.
func (s *session) call(ctx context.Context, cmd engine.Command) (engine.Result, error) {
	res, err := queue.Call(ctx, s.queue, cmd)
	if err != nil {
		return res, err
	}
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// notice runs on the driver goroutine right after a transition.
func (s *session) notice(n engine.Notice) {
	s.state.Store(uint32(s.engine.State()))
	s.clockMode.Store(uint32(s.engine.Clock().Mode()))

	switch n {
	case engine.NoticePlayLooped:
		metrics.RecordLoop()
	case engine.NoticePlayStopped:
		metrics.RecordPlaybackStop()
	case engine.NoticeRecordStopped:
		if rec := s.engine.Recording(); rec != nil {
			metrics.RecordTakeFinalized(types.Millis(rec.Duration()))
			s.logger.Info(context.Background(), "take finalized",
				logger.String("session", s.id),
				logger.Int("events", rec.Len()),
				logger.Duration("duration", rec.Duration()),
			)
		}
	}
	s.logger.Debug(context.Background(), "session notice",
		logger.String("session", s.id),
		logger.String("notice", n.String()),
	)
}

func (s *session) result(_ engine.Command, res engine.Result) {
	s.state.Store(uint32(res.State))
	s.clockMode.Store(uint32(res.View.ClockMode))
}

func (s *session) describe(v engine.View) types.Session {
	return types.Session{
		ID:           s.id,
		State:        v.State.String(),
		Loop:         v.Loop,
		MaxPasses:    v.MaxPasses,
		Region:       types.FromRegion(v.Region),
		Mode:         v.Mode.String(),
		ClockMode:    v.ClockMode.String(),
		NowMs:        types.Millis(v.Clock.Now),
		BPM:          v.Clock.BPM,
		HostSynced:   v.Clock.HostSynced,
		ElapsedMs:    types.Millis(v.Elapsed),
		Passes:       v.Passes,
		TakeEvents:   v.TakeEvents,
		HasRecording: v.HasRecording,
		Events:       v.Events,
		DurationMs:   types.Millis(v.Duration),
		Renders:      s.renders.Total(),
	}
}

// close detaches MIDI input, refuses new commands and waits for the driver
// to stop the engine.
func (s *session) close(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()

	_ = s.queue.Close()
	return s.driver.Shutdown(ctx)
}
