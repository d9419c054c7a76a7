// Package capture turns raw input samples into finalized Recordings.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/pkg/logger"
)

// Default capture limits.
const (
	DefaultThrottle    = 16 * time.Millisecond
	DefaultMaxEvents   = 100_000
	DefaultMaxDuration = 10 * time.Minute
)

// Outcome says what Feed did with a sample.
type Outcome uint8

const (
	Ignored Outcome = iota
	Stored
	Throttled
	Capped
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Throttled:
		return "throttled"
	case Capped:
		return "capped"
	default:
		return "ignored"
	}
}

// Recorder accumulates one take at a time. Offsets are relative to the
// first sample, clamped at zero and never decrease.
type Recorder struct {
	throttle    time.Duration
	maxEvents   int
	maxDuration time.Duration
	logger      logger.Logger

	active   bool
	t0       time.Duration
	bpm      float64
	family   model.Family
	events   []model.Event
	lastKind map[model.Kind]time.Duration
	tracker  model.Tracker
	capped   bool
}

// New returns an idle Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		throttle:    DefaultThrottle,
		maxEvents:   DefaultMaxEvents,
		maxDuration: DefaultMaxDuration,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active reports whether a take is in progress.
func (r *Recorder) Active() bool { return r.active }

// Len returns the number of stored events of the take in progress.
func (r *Recorder) Len() int { return len(r.events) }

// Family returns the payload family of the take in progress.
func (r *Recorder) Family() model.Family { return r.family }

// Elapsed returns the offset of at from the take anchor.
func (r *Recorder) Elapsed(at time.Duration) time.Duration {
	if !r.active || at < r.t0 {
		return 0
	}
	return at - r.t0
}

// Start opens an empty take anchored at clock time at. The first fed
// sample decides the payload family. bpm is the host tempo, or zero.
func (r *Recorder) Start(at time.Duration, bpm float64) error {
	if r.active {
		return ErrAlreadyRecording
	}
	r.active = true
	r.t0 = at
	r.bpm = bpm
	r.family = model.FamilyNone
	r.events = make([]model.Event, 0, 64)
	r.lastKind = make(map[model.Kind]time.Duration)
	r.tracker.Reset()
	r.capped = false
	return nil
}

// Begin starts a take anchored at the sample's time and stores the sample
// at offset zero.
func (r *Recorder) Begin(s model.Sample, bpm float64) error {
	if r.active {
		return ErrAlreadyRecording
	}
	ev, err := model.NewEvent(s.Kind, s.Payload, 0)
	if err != nil {
		return fmt.Errorf("begin capture: %w", err)
	}
	_ = r.Start(s.At, bpm)
	r.family = s.Kind.Family()
	r.store(ev)
	return nil
}

// Feed appends a sample to the take in progress. Feeding while idle is a
// silent no-op.
func (r *Recorder) Feed(s model.Sample) (Outcome, error) {
	if !r.active {
		return Ignored, nil
	}
	if r.family == model.FamilyNone {
		r.family = s.Kind.Family()
	}
	if s.Kind.Family() != r.family {
		return Ignored, fmt.Errorf("%w: %s sample in a %s take", ErrFamilyMismatch, s.Kind.Family(), r.family)
	}

	t := s.At - r.t0
	if t < 0 {
		t = 0
	}
	if n := len(r.events); n > 0 && t < r.events[n-1].T {
		t = r.events[n-1].T
	}

	ev, err := model.NewEvent(s.Kind, s.Payload, t)
	if err != nil {
		return Ignored, fmt.Errorf("feed: %w", err)
	}

	if len(r.events) >= r.maxEvents || (r.maxDuration > 0 && t > r.maxDuration) {
		if !r.capped {
			r.capped = true
			r.logger.Warn(context.Background(), "take reached its size cap; dropping samples",
				logger.Int("events", len(r.events)),
				logger.Duration("offset", t),
			)
		}
		return Capped, nil
	}

	if r.throttle > 0 && s.Kind.IsContinuous() && !s.Kind.IsStart() && !s.Kind.IsTerminal() {
		if prev, ok := r.lastKind[s.Kind]; ok && t-prev < r.throttle {
			return Throttled, nil
		}
	}

	r.store(ev)
	return Stored, nil
}

// End finalizes the take at clock time at and returns the Recording.
//
// The duration is the elapsed time rounded to the millisecond, at least one
// millisecond, and never shorter than the last stored offset. A take without
// samples gets one centered pointer down. Anything still held when the take
// ends is released by synthetic terminal events at the duration.
func (r *Recorder) End(at time.Duration) (*model.Recording, error) {
	if !r.active {
		return nil, ErrNotRecording
	}
	defer r.Reset()

	raw := at - r.t0
	if raw < 0 {
		raw = 0
	}
	duration := raw.Round(time.Millisecond)
	if duration < model.MinDuration {
		duration = model.MinDuration
	}

	if len(r.events) == 0 {
		r.store(model.Event{Kind: model.KindDown, Payload: model.Centered, T: 0, Synthetic: true})
	}
	last := r.events[len(r.events)-1]
	if last.T > duration {
		duration = ceilMillis(last.T)
	}
	r.events = append(r.events, r.tracker.Close(last, duration)...)

	rec, err := model.NewRecording(r.events, duration, r.bpm)
	if err != nil {
		return nil, fmt.Errorf("end capture: %w", err)
	}
	r.logger.Debug(context.Background(), "take finalized",
		logger.Int("events", rec.Len()),
		logger.Duration("duration", rec.Duration()),
	)
	return rec, nil
}

// Reset drops the take in progress without producing a Recording.
func (r *Recorder) Reset() {
	r.active = false
	r.t0 = 0
	r.bpm = 0
	r.family = model.FamilyNone
	r.events = nil
	r.lastKind = nil
	r.tracker.Reset()
	r.capped = false
}

func (r *Recorder) store(ev model.Event) {
	r.events = append(r.events, ev)
	if r.lastKind != nil {
		r.lastKind[ev.Kind] = ev.T
	}
	r.tracker.Observe(ev)
}

func ceilMillis(d time.Duration) time.Duration {
	if rem := d % time.Millisecond; rem != 0 {
		return d + time.Millisecond - rem
	}
	return d
}
