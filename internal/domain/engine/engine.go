// Package engine composes capture and playback under one state machine.
// An Engine is driven: it never starts goroutines and renders only from the
// calls made into it. One goroutine drives a given Engine at a time.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/retake/internal/domain/capture"
	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/playback"
	"github.com/okian/retake/internal/domain/snapshot"
	"github.com/okian/retake/pkg/logger"
)

// Engine owns the current Recording, the take in progress and playback.
type Engine struct {
	clocks        map[clock.Mode]clock.Clock
	clk           clock.Clock
	epoch         uint64
	mode          playback.Mode
	lookahead     time.Duration
	loop          bool
	maxPasses     int
	maxLoop       time.Duration
	autoPlay      bool
	releaseOnStop bool
	recorderOpts  []capture.Option
	notify        func(Notice)
	onReject      func(Op, State)
	logger        logger.Logger

	state     State
	rec       *model.Recording
	region    *model.Region
	recorder  *capture.Recorder
	scheduler *playback.Scheduler
}

// View is a read-only summary of an Engine.
type View struct {
	State        State
	Loop         bool
	MaxPasses    int
	Region       *model.Region
	Mode         playback.Mode
	Clock        clock.Snapshot
	ClockMode    clock.Mode
	Elapsed      time.Duration
	Passes       int
	TakeEvents   int
	HasRecording bool
	Events       int
	Duration     time.Duration
}

// New returns an idle Engine rendering playback to sink.
func New(sink playback.Sink, opts ...Option) *Engine {
	e := &Engine{
		clocks:        make(map[clock.Mode]clock.Clock),
		releaseOnStop: true,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clk == nil {
		e.clk = clock.NewInternal()
		e.clocks[e.clk.Mode()] = e.clk
	}
	e.epoch = e.clk.Epoch()

	e.recorder = capture.New(append([]capture.Option{capture.WithLogger(e.logger)}, e.recorderOpts...)...)
	e.scheduler = playback.New(sink,
		playback.WithMode(e.mode),
		playback.WithTimeline(clock.NewTimeline(e.lookahead)),
		playback.WithReleaseOnStop(e.releaseOnStop),
		playback.WithMaxPasses(e.maxPasses),
		playback.WithLogger(e.logger),
	)
	return e
}

func (e *Engine) State() State                { return e.state }
func (e *Engine) Loop() bool                  { return e.loop }
func (e *Engine) Recording() *model.Recording { return e.rec }
func (e *Engine) Clock() clock.Clock          { return e.clk }
func (e *Engine) Now() time.Duration          { return e.clk.Now() }
func (e *Engine) PlaybackMode() playback.Mode { return e.mode }
func (e *Engine) MaxPasses() int              { return e.maxPasses }

// Region returns the loop region, if one is set.
func (e *Engine) Region() (model.Region, bool) {
	if e.region == nil {
		return model.Region{}, false
	}
	return *e.region, true
}

// View summarises the engine at the current clock time.
func (e *Engine) View() View {
	v := View{
		State:      e.state,
		Loop:       e.loop,
		MaxPasses:  e.maxPasses,
		Mode:       e.mode,
		Clock:      e.clk.Snapshot(),
		ClockMode:  e.clk.Mode(),
		Passes:     e.scheduler.Passes(),
		TakeEvents: e.recorder.Len(),
	}
	if e.state == StatePlaying {
		v.Elapsed = e.scheduler.Elapsed(e.clk.Now())
	} else if e.state == StateRecording {
		v.Elapsed = e.recorder.Elapsed(e.clk.Now())
	}
	if g, ok := e.Region(); ok {
		v.Region = &g
	}
	if e.rec != nil {
		v.HasRecording = true
		v.Events = e.rec.Len()
		v.Duration = e.rec.Duration()
	}
	return v
}

// Arm makes the engine wait for the first start sample of a take.
func (e *Engine) Arm() bool {
	if e.state != StateIdle {
		return e.reject(OpArm)
	}
	e.state = StateArmed
	e.emit(NoticeArmed)
	return true
}

// Disarm leaves Armed or Recording. A take in progress is finalized, never
// discarded.
func (e *Engine) Disarm() bool {
	switch e.state {
	case StateArmed:
		e.state = StateIdle
		e.emit(NoticeDisarmed)
		return true
	case StateRecording:
		e.finalize(e.clk.Now())
		e.emit(NoticeDisarmed)
		return true
	default:
		return e.reject(OpDisarm)
	}
}

// Record opens a take right away instead of waiting for a start sample.
// The first fed sample decides the payload family.
func (e *Engine) Record() bool {
	if e.state != StateIdle && e.state != StateArmed {
		return e.reject(OpRecord)
	}
	if err := e.recorder.Start(e.clk.Now(), e.bpm()); err != nil {
		e.logger.Debug(context.Background(), "record refused", logger.Error(err))
		return e.reject(OpRecord)
	}
	e.state = StateRecording
	e.emit(NoticeRecordStarted)
	return true
}

// Input feeds one raw sample. While Armed a start sample begins the take;
// other samples are ignored. A sample whose kind ends a take finalizes it.
// Input while Playing is rejected; input while Idle is silently ignored.
func (e *Engine) Input(s model.Sample) capture.Outcome {
	switch e.state {
	case StatePlaying:
		e.reject(OpInput)
		return capture.Ignored
	case StateArmed:
		if !s.Kind.IsStart() {
			return capture.Ignored
		}
		if err := e.recorder.Begin(s, e.bpm()); err != nil {
			e.logger.Debug(context.Background(), "sample refused", logger.String("kind", s.Kind.String()), logger.Error(err))
			return capture.Ignored
		}
		e.state = StateRecording
		e.emit(NoticeRecordStarted)
		return capture.Stored
	case StateRecording:
		out, err := e.recorder.Feed(s)
		if err != nil {
			e.logger.Debug(context.Background(), "sample refused", logger.String("kind", s.Kind.String()), logger.Error(err))
			return capture.Ignored
		}
		// A capped release still ends the gesture; End releases what is held.
		if out != capture.Ignored && s.Kind.EndsTake() {
			e.finalize(s.At)
		}
		return out
	default:
		return capture.Ignored
	}
}

// Stop finalizes a take in progress, disarms, or stops playback. Pending
// playback is revoked before Stop returns. Stopping an idle engine is a
// no-op and reports false.
func (e *Engine) Stop() bool {
	switch e.state {
	case StateRecording:
		e.finalize(e.clk.Now())
		return true
	case StateArmed:
		e.state = StateIdle
		e.emit(NoticeDisarmed)
		return true
	case StatePlaying:
		e.scheduler.Stop()
		e.state = StateIdle
		e.emit(NoticePlayStopped)
		return true
	default:
		return false
	}
}

// Play starts playback of rec, or of the stored Recording when rec is nil.
// A supplied rec replaces the stored one. loop, when set, replaces the loop
// flag. While Playing only the loop flag and a supplied rec take effect.
func (e *Engine) Play(rec *model.Recording, loop *bool) bool {
	return e.play(rec, loop) == nil
}

func (e *Engine) play(rec *model.Recording, loop *bool) error {
	switch e.state {
	case StateArmed, StateRecording:
		e.reject(OpPlay)
		return fmt.Errorf("%w: play while %s", ErrInvalidTransition, e.state)
	case StatePlaying:
		if loop != nil {
			if err := e.checkLoop(*loop, e.scheduler.Recording()); err != nil {
				return err
			}
			e.SetLoop(*loop)
		}
		if rec == nil {
			return nil
		}
		e.scheduler.Stop()
		e.state = StateIdle
		e.setRecording(rec)
		if err := e.start(); err != nil {
			e.emit(NoticePlayStopped)
			return err
		}
		return nil
	}
	if rec != nil {
		e.setRecording(rec)
	}
	if e.rec == nil {
		return ErrNoRecording
	}
	if loop != nil {
		if err := e.checkLoop(*loop, e.playable(e.rec)); err != nil {
			return err
		}
		e.loop = *loop
	}
	return e.start()
}

func (e *Engine) start() error {
	rec := e.playable(e.rec)
	if err := e.checkLoop(e.loop, rec); err != nil {
		e.logger.Warn(context.Background(), "playback refused", logger.Error(err))
		return err
	}
	now := e.clk.Now()
	if err := e.scheduler.Start(rec, now, e.loop); err != nil {
		e.logger.Warn(context.Background(), "playback refused", logger.Error(err))
		return fmt.Errorf("play: %w", err)
	}
	e.state = StatePlaying
	e.emit(NoticePlayStarted)
	e.advance(now)
	return nil
}

// playable returns what a pass plays for rec: its slice under the loop
// region, or rec itself. A region rec cannot satisfy is dropped.
func (e *Engine) playable(rec *model.Recording) *model.Recording {
	if e.region == nil || rec == nil {
		return rec
	}
	part, err := rec.Slice(*e.region)
	if err != nil {
		e.logger.Warn(context.Background(), "loop region dropped", logger.Error(err))
		e.region = nil
		return rec
	}
	return part
}

func (e *Engine) checkLoop(loop bool, rec *model.Recording) error {
	if !loop || e.maxLoop <= 0 || rec == nil || rec.Duration() <= e.maxLoop {
		return nil
	}
	return fmt.Errorf("%w: %s pass exceeds %s", ErrLoopTooLong, rec.Duration(), e.maxLoop)
}

// setRecording stores rec as the take. A region set for the previous take
// does not carry over.
func (e *Engine) setRecording(rec *model.Recording) {
	e.rec = rec
	e.region = nil
}

// LoopSettings changes how playback repeats. Nil fields are left alone.
type LoopSettings struct {
	Loop      *bool
	MaxPasses *int
	Region    *model.Region
	// ClearRegion plays the whole take again; AutoRegion fits the region to
	// the take's beat grid. Either one overrides Region.
	ClearRegion bool
	AutoRegion  bool
}

// Configure applies settings as one change: if any part is refused nothing
// changes. A new region restarts a running pass from the region start;
// the loop flag and pass cap take effect at the next seam.
func (e *Engine) Configure(ls LoopSettings) error {
	loop := e.loop
	if ls.Loop != nil {
		loop = *ls.Loop
	}
	region, regionChanged := e.region, false
	switch {
	case ls.ClearRegion:
		region, regionChanged = nil, e.region != nil
	case ls.AutoRegion || ls.Region != nil:
		if e.state == StateRecording {
			e.reject(OpSetLoop)
			return fmt.Errorf("%w: set loop region while %s", ErrInvalidTransition, e.state)
		}
		if e.rec == nil {
			return ErrNoRecording
		}
		var g model.Region
		if ls.AutoRegion {
			g = e.rec.BeatRegion(e.bpm())
		} else {
			g = *ls.Region
		}
		if capped := g.Clamp(e.maxLoop); capped != g {
			e.logger.Debug(context.Background(), "loop region capped",
				logger.String("asked", g.String()),
				logger.String("region", capped.String()),
			)
			g = capped
		}
		if _, err := e.rec.Slice(g); err != nil {
			return fmt.Errorf("loop region: %w", err)
		}
		region, regionChanged = &g, true
	}

	pass := e.rec
	if region != nil && e.rec != nil {
		pass, _ = e.rec.Slice(*region)
	}
	if err := e.checkLoop(loop, pass); err != nil {
		return err
	}

	e.SetLoop(loop)
	if ls.MaxPasses != nil {
		n := *ls.MaxPasses
		if n < 0 {
			n = 0
		}
		e.maxPasses = n
		e.scheduler.SetMaxPasses(n)
	}
	e.region = region
	if regionChanged && e.state == StatePlaying {
		e.scheduler.Stop()
		e.state = StateIdle
		if err := e.start(); err != nil {
			e.emit(NoticePlayStopped)
		}
	}
	e.emit(NoticeLoopChanged)
	return nil
}

// SetLoop changes the loop flag; a running pass picks it up at its seam.
func (e *Engine) SetLoop(loop bool) {
	e.loop = loop
	e.scheduler.SetLoop(loop)
}

// Clear stops everything, discards the take in progress and the stored
// Recording, and always ends Idle.
func (e *Engine) Clear() {
	if e.state == StatePlaying {
		e.scheduler.Stop()
	}
	e.recorder.Reset()
	e.setRecording(nil)
	e.state = StateIdle
	e.emit(NoticeCleared)
}

// Toggle is the one-button recorder: Idle arms, Armed disarms, Recording
// finalizes. It is ignored while Playing.
func (e *Engine) Toggle() State {
	switch e.state {
	case StateIdle:
		e.Arm()
	case StateArmed:
		e.Disarm()
	case StateRecording:
		e.finalize(e.clk.Now())
	default:
		e.reject(OpToggle)
	}
	return e.state
}

// Tick drives playback against the active clock. Hosts call it from their
// timer, frame or audio callback.
func (e *Engine) Tick() playback.Status {
	return e.advance(e.clk.Now())
}

func (e *Engine) advance(now time.Duration) playback.Status {
	if ep := e.clk.Epoch(); ep != e.epoch {
		e.epoch = ep
		e.scheduler.Rebase(now)
		e.logger.Debug(context.Background(), "clock discontinuity absorbed", logger.Int64("epoch", int64(ep)))
	}
	if e.state != StatePlaying {
		return playback.Idle
	}
	st := e.scheduler.Tick(now)
	switch st {
	case playback.Looped:
		e.emit(NoticePlayLooped)
	case playback.Finished:
		e.state = StateIdle
		e.emit(NoticePlayStopped)
	}
	return st
}

// UseClock switches the active clock. Playback keeps its position across
// the switch. Switching while a take is being captured is rejected.
func (e *Engine) UseClock(mode clock.Mode) error {
	c, ok := e.clocks[mode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrClockUnavailable, mode)
	}
	if c == e.clk {
		return nil
	}
	if e.state == StateRecording {
		e.reject(OpUseClock)
		return fmt.Errorf("%w: switch clock while %s", ErrInvalidTransition, e.state)
	}
	e.clk = c
	e.epoch = c.Epoch()
	if e.state == StatePlaying {
		e.scheduler.Rebase(c.Now())
	}
	e.emit(NoticeClockChanged)
	return nil
}

// Save encodes the stored Recording with the loop flag and clock mode.
func (e *Engine) Save() ([]byte, error) {
	if e.rec == nil {
		return nil, ErrNoRecording
	}
	blob, err := snapshot.Encode(e.rec, snapshot.Config{
		Loop:      e.loop,
		ClockMode: e.clk.Mode().String(),
		RecordBPM: e.rec.BPM(),
	})
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return blob, nil
}

// Load replaces the stored Recording with a decoded blob. It is rejected
// while a take is armed or in progress and stops playback first. On any
// failure the engine is left exactly as it was.
func (e *Engine) Load(blob []byte) error {
	if e.state == StateArmed || e.state == StateRecording {
		e.reject(OpLoad)
		return fmt.Errorf("%w: load while %s", ErrInvalidTransition, e.state)
	}
	rec, cfg, err := snapshot.Decode(blob)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if e.state == StatePlaying {
		e.Stop()
	}
	e.setRecording(rec)
	e.SetLoop(cfg.Loop)
	if mode, err := clock.ParseMode(cfg.ClockMode); err == nil {
		if _, ok := e.clocks[mode]; ok {
			_ = e.UseClock(mode)
		}
	}
	e.emit(NoticeLoaded)
	return nil
}

// Edit replaces the stored Recording with fn's result. While Playing the
// new Recording takes over at the current position.
func (e *Engine) Edit(fn func(*model.Recording) (*model.Recording, error)) error {
	if e.rec == nil {
		return ErrNoRecording
	}
	if e.state == StateRecording {
		e.reject(OpEdit)
		return fmt.Errorf("%w: edit while %s", ErrInvalidTransition, e.state)
	}
	next, err := fn(e.rec)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	if next == nil {
		return fmt.Errorf("edit: %w", ErrNoRecording)
	}
	if e.state == StatePlaying {
		if err := e.scheduler.Swap(e.playable(next), e.clk.Now()); err != nil {
			return fmt.Errorf("edit: %w", err)
		}
	}
	e.rec = next
	e.emit(NoticeEdited)
	return nil
}

func (e *Engine) finalize(at time.Duration) {
	rec, err := e.recorder.End(at)
	e.state = StateIdle
	if err != nil {
		e.logger.Error(context.Background(), "take finalize failed", logger.Error(err))
		return
	}
	e.setRecording(rec)
	e.emit(NoticeRecordStopped)
	if e.autoPlay {
		_ = e.start()
	}
}

func (e *Engine) bpm() float64 {
	snap := e.clk.Snapshot()
	if snap.HostSynced {
		return snap.BPM
	}
	return 0
}

func (e *Engine) reject(op Op) bool {
	e.logger.Debug(context.Background(), "transition rejected",
		logger.String("op", op.String()),
		logger.String("state", e.state.String()),
	)
	if e.onReject != nil {
		e.onReject(op, e.state)
	}
	return false
}

func (e *Engine) emit(n Notice) {
	if e.notify != nil {
		e.notify(n)
	}
}
