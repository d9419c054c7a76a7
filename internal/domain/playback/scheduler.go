// Package playback maps a finalized Recording onto a clock and renders its
// events to a sink, in poll or lookahead mode.
package playback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/pkg/logger"
)

// DefaultEpsilon is the smallest interpolation denominator.
const DefaultEpsilon = time.Millisecond

// Mode selects how a Scheduler turns ticks into renders.
type Mode uint8

const (
	// ModePoll computes the cursor from elapsed time on every tick and
	// interpolates pointer payloads between stored events.
	ModePoll Mode = iota
	// ModeLookahead submits every fire time of a pass to a Timeline up front.
	ModeLookahead
)

func (m Mode) String() string {
	if m == ModeLookahead {
		return "lookahead"
	}
	return "poll"
}

// ParseMode maps "poll" or "lookahead" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "poll", "interpolate":
		return ModePoll, nil
	case "lookahead", "exact":
		return ModeLookahead, nil
	default:
		return ModePoll, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Status reports what one Tick did.
type Status uint8

const (
	Idle Status = iota
	Running
	Looped
	Finished
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Looped:
		return "looped"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

// Scheduler plays one Recording at a time. It never mutates the Recording
// and never renders outside Tick, Stop, Rebase and Swap. It is not safe for
// concurrent use; one goroutine drives it.
type Scheduler struct {
	sink          Sink
	mode          Mode
	timeline      *clock.Timeline
	epsilon       time.Duration
	releaseOnStop bool
	interpolate   bool
	maxPasses     int
	logger        logger.Logger

	rec       *model.Recording
	active    bool
	loop      bool
	playStart time.Duration
	lastNow   time.Duration
	cursor    int
	firedT    time.Duration
	passes    int
	tracker   model.Tracker
	handles   []*clock.Handle
	status    Status
}

// New returns an idle Scheduler rendering to sink.
func New(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:          sink,
		epsilon:       DefaultEpsilon,
		releaseOnStop: true,
		interpolate:   true,
		logger:        logger.Nop(),
	}
	if s.sink == nil {
		s.sink = Discard
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeline == nil {
		s.timeline = clock.NewTimeline(0)
	}
	return s
}

func (s *Scheduler) Mode() Mode                  { return s.mode }
func (s *Scheduler) Active() bool                { return s.active }
func (s *Scheduler) Loop() bool                  { return s.loop }
func (s *Scheduler) Recording() *model.Recording { return s.rec }
func (s *Scheduler) Timeline() *clock.Timeline   { return s.timeline }
func (s *Scheduler) Passes() int                 { return s.passes }
func (s *Scheduler) MaxPasses() int              { return s.maxPasses }

// SetLoop changes the loop flag. It takes effect at the next seam.
func (s *Scheduler) SetLoop(loop bool) { s.loop = loop }

// SetMaxPasses caps how many passes a looping playback renders before it
// finishes. Zero or a negative n removes the cap. Passes already played
// since Start count against the new cap at the next seam.
func (s *Scheduler) SetMaxPasses(n int) {
	if n < 0 {
		n = 0
	}
	s.maxPasses = n
}

// exhausted reports whether the pass just ended was the last one allowed.
func (s *Scheduler) exhausted() bool {
	return !s.loop || (s.maxPasses > 0 && s.passes >= s.maxPasses)
}

// Elapsed returns the position inside the current pass at clock time now.
func (s *Scheduler) Elapsed(now time.Duration) time.Duration {
	if !s.active {
		return 0
	}
	e := now - s.playStart
	if e < 0 {
		return 0
	}
	if d := s.rec.Duration(); e > d {
		return d
	}
	return e
}

// Start begins playing rec with its first pass anchored at now. Nothing is
// rendered until the next Tick.
func (s *Scheduler) Start(rec *model.Recording, now time.Duration, loop bool) error {
	if rec == nil || rec.Len() == 0 {
		return ErrNoRecording
	}
	s.halt()
	s.rec = rec
	s.loop = loop
	s.active = true
	s.playStart = now
	s.lastNow = now
	s.cursor = 0
	s.firedT = 0
	s.passes = 0
	if s.mode == ModeLookahead {
		s.schedulePass(0, false)
	}
	s.logger.Debug(context.Background(), "playback started",
		logger.String("mode", s.mode.String()),
		logger.Int("events", rec.Len()),
		logger.Duration("duration", rec.Duration()),
		logger.Bool("loop", loop),
	)
	return nil
}

// Tick renders everything due at clock time now.
func (s *Scheduler) Tick(now time.Duration) Status {
	if !s.active {
		return Idle
	}
	if now < s.lastNow {
		now = s.lastNow
	}
	s.lastNow = now
	if s.mode == ModeLookahead {
		s.status = Running
		s.timeline.Advance(now)
		return s.status
	}
	return s.tickPoll(now)
}

func (s *Scheduler) tickPoll(now time.Duration) Status {
	elapsed := now - s.playStart
	if elapsed < 0 {
		elapsed = 0
	}
	duration := s.rec.Duration()
	if elapsed < duration {
		s.fireUpTo(elapsed)
		s.emitInterpolated(elapsed, now)
		return Running
	}

	s.fireUpTo(duration)
	s.endPass(s.playStart + duration)
	if s.exhausted() {
		s.finish()
		return Finished
	}
	s.playStart = now
	s.cursor = 0
	s.firedT = 0
	s.restart(now)
	s.fireUpTo(0)
	return Looped
}

// fireUpTo renders every stored event at or before elapsed that has not
// fired in this pass, in order.
func (s *Scheduler) fireUpTo(elapsed time.Duration) {
	for s.cursor < s.rec.Len() {
		ev := s.rec.At(s.cursor)
		if ev.T > elapsed {
			return
		}
		s.cursor++
		s.fire(ev, s.playStart+ev.T)
	}
}

func (s *Scheduler) emitInterpolated(elapsed, now time.Duration) {
	if !s.interpolate || s.cursor == 0 || s.cursor >= s.rec.Len() {
		return
	}
	a, b := s.rec.At(s.cursor-1), s.rec.At(s.cursor)
	if !a.Kind.IsContinuous() || !b.Kind.IsContinuous() || a.Kind.IsTerminal() {
		return
	}
	if elapsed <= a.T || elapsed >= b.T {
		return
	}
	pa, _ := a.Pointer()
	pb, _ := b.Pointer()
	gap := b.T - a.T
	if gap < s.epsilon {
		gap = s.epsilon
	}
	u := float64(elapsed-a.T) / float64(gap)
	ev := model.Event{Kind: model.KindMove, Payload: pa.Lerp(pb, u), T: elapsed, Interpolated: true}
	s.tracker.Observe(ev)
	s.sink.Render(ev, now)
}

func (s *Scheduler) fire(ev model.Event, at time.Duration) {
	s.firedT = ev.T
	s.tracker.Observe(ev)
	s.sink.Render(ev, at)
}

// endPass releases whatever the pass left held so every pass ends on a
// terminal event.
func (s *Scheduler) endPass(at time.Duration) {
	for _, ev := range s.tracker.Close(s.rec.Last(), s.rec.Duration()) {
		s.sink.Render(ev, at)
	}
	s.tracker.Reset()
	s.passes++
}

// restart renders a synthetic pointer down when a looped pass would not
// open with one on its own.
func (s *Scheduler) restart(at time.Duration) {
	ev, ok := s.restartEvent()
	if !ok {
		return
	}
	s.fire(ev, at)
}

func (s *Scheduler) restartEvent() (model.Event, bool) {
	first := s.rec.First()
	if s.rec.Family() != model.FamilyPointer || (first.T == 0 && first.Kind.IsStart()) {
		return model.Event{}, false
	}
	return model.Event{Kind: model.KindDown, Payload: first.Payload, T: 0, Synthetic: true}, true
}

// schedulePass submits the stored events from index from onwards, and the
// seam marker, anchored at playStart.
func (s *Scheduler) schedulePass(from int, restart bool) {
	base := s.playStart
	if restart {
		if ev, ok := s.restartEvent(); ok {
			s.handles = append(s.handles, s.timeline.At(base, func(at time.Duration) {
				s.fire(ev, at)
			}))
		}
	}
	for i := from; i < s.rec.Len(); i++ {
		idx, ev := i, s.rec.At(i)
		s.handles = append(s.handles, s.timeline.At(base+ev.T, func(at time.Duration) {
			s.cursor = idx + 1
			s.fire(ev, at)
		}))
	}
	s.handles = append(s.handles, s.timeline.At(base+s.rec.Duration(), s.seam))
}

// seam runs when a lookahead pass reaches its duration. A looping pass is
// re-anchored at the nominal seam instant, not at the tick that observed it,
// unless that instant lags the clock by more than a whole pass. Then the
// missed passes are skipped and the next one starts at the clock's now.
func (s *Scheduler) seam(at time.Duration) {
	s.endPass(at)
	s.handles = s.handles[:0]
	if s.exhausted() {
		s.finish()
		s.status = Finished
		return
	}
	if lag := s.lastNow - at; lag > s.rec.Duration() {
		s.logger.Debug(context.Background(), "loop seam behind clock, skipping missed passes",
			logger.Duration("lag", lag),
		)
		at = s.lastNow
	}
	s.playStart = at
	s.cursor = 0
	s.firedT = 0
	s.schedulePass(0, true)
	if s.status != Finished {
		s.status = Looped
	}
}

// Stop ends playback. Pending lookahead entries are revoked before it
// returns and held output is released once. A second Stop renders nothing
// and reports false.
func (s *Scheduler) Stop() bool {
	if !s.active {
		return false
	}
	s.cancelHandles()
	if s.releaseOnStop {
		at := s.lastNow
		if fired := s.playStart + s.firedT; fired > at {
			at = fired
		}
		for _, ev := range s.tracker.Release(s.Elapsed(at)) {
			s.sink.Render(ev, at)
		}
	}
	s.finish()
	return true
}

// Rebase re-anchors the pass so the position reached so far is kept at
// clock time now. Call it after a clock switch or discontinuity.
func (s *Scheduler) Rebase(now time.Duration) {
	if !s.active {
		return
	}
	elapsed := s.lastNow - s.playStart
	if elapsed < 0 {
		elapsed = 0
	}
	s.playStart = now - elapsed
	s.lastNow = now
	if s.mode == ModeLookahead {
		s.cancelHandles()
		s.schedulePass(s.cursor, false)
	}
}

// Swap replaces the recording being played and keeps the current position.
// Events at or before the position are not rendered again.
func (s *Scheduler) Swap(rec *model.Recording, now time.Duration) error {
	if rec == nil || rec.Len() == 0 {
		return ErrNoRecording
	}
	if !s.active {
		s.rec = rec
		return nil
	}
	if now > s.lastNow {
		s.lastNow = now
	}
	pos := s.lastNow - s.playStart
	if s.firedT > pos {
		pos = s.firedT
	}
	s.cancelHandles()
	s.rec = rec
	s.cursor = sort.Search(rec.Len(), func(i int) bool { return rec.At(i).T > pos })
	if s.mode == ModeLookahead {
		s.schedulePass(s.cursor, false)
	}
	return nil
}

func (s *Scheduler) finish() {
	s.cancelHandles()
	s.active = false
	s.tracker.Reset()
}

func (s *Scheduler) halt() {
	if s.active {
		s.finish()
	}
}

func (s *Scheduler) cancelHandles() {
	for _, h := range s.handles {
		h.Cancel()
	}
	s.handles = s.handles[:0]
}
