package model

import (
	"fmt"
	"sort"
	"time"
)

// MinDuration is the shortest take length. It keeps loop arithmetic away
// from zero-length passes.
const MinDuration = time.Millisecond

// Recording is a finalized take. It is never mutated after construction;
// edits return a new Recording.
type Recording struct {
	events   []Event
	duration time.Duration
	bpm      float64
}

// NewRecording validates events and duration and returns a Recording that
// owns a private copy of events. bpm is the host tempo at capture time, or
// zero when the take was captured on the internal clock.
func NewRecording(events []Event, duration time.Duration, bpm float64) (*Recording, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrMalformed)
	}
	family := events[0].Kind.Family()
	var prev time.Duration
	for i, ev := range events {
		if ev.Kind.Family() == FamilyNone {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformed, i, ErrUnknownKind)
		}
		if ev.Payload == nil || ev.Payload.Family() != ev.Kind.Family() {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformed, i, ErrPayloadMismatch)
		}
		if ev.Kind.Family() != family {
			return nil, fmt.Errorf("%w: event %d mixes %s into a %s take", ErrMalformed, i, ev.Kind.Family(), family)
		}
		if ev.T < 0 {
			return nil, fmt.Errorf("%w: event %d has negative offset", ErrMalformed, i)
		}
		if ev.T < prev {
			return nil, fmt.Errorf("%w: event %d is out of order", ErrMalformed, i)
		}
		prev = ev.T
	}
	if duration < MinDuration {
		return nil, fmt.Errorf("%w: duration %s below %s", ErrMalformed, duration, MinDuration)
	}
	if duration < prev {
		return nil, fmt.Errorf("%w: duration %s before last event at %s", ErrMalformed, duration, prev)
	}
	if bpm < 0 {
		bpm = 0
	}

	own := make([]Event, len(events))
	for i, ev := range events {
		ev.Payload = Normalize(ev.Payload)
		ev.Interpolated = false
		own[i] = ev
	}
	return &Recording{events: own, duration: duration, bpm: bpm}, nil
}

// Events returns a copy of the stored events.
func (r *Recording) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recording) Len() int                { return len(r.events) }
func (r *Recording) At(i int) Event          { return r.events[i] }
func (r *Recording) Duration() time.Duration { return r.duration }
func (r *Recording) BPM() float64            { return r.bpm }
func (r *Recording) First() Event            { return r.events[0] }
func (r *Recording) Last() Event             { return r.events[len(r.events)-1] }
func (r *Recording) Family() Family          { return r.events[0].Kind.Family() }

// Equal reports whether two recordings hold the same events and duration.
func (r *Recording) Equal(o *Recording) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.duration != o.duration || len(r.events) != len(o.events) {
		return false
	}
	for i := range r.events {
		a, b := r.events[i], o.events[i]
		if a.Kind != b.Kind || a.T != b.T || a.Synthetic != b.Synthetic || a.Payload != b.Payload {
			return false
		}
	}
	return true
}

// Replace returns a copy of r with event i replaced. The new event is
// normalised, re-sorted into place, and the duration grows if needed.
func (r *Recording) Replace(i int, ev Event) (*Recording, error) {
	if i < 0 || i >= len(r.events) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	norm, err := NewEvent(ev.Kind, ev.Payload, ev.T)
	if err != nil {
		return nil, err
	}
	norm.Synthetic = ev.Synthetic
	events := r.Events()
	events[i] = norm
	sort.SliceStable(events, func(a, b int) bool { return events[a].T < events[b].T })

	duration := r.duration
	if last := events[len(events)-1].T; last > duration {
		duration = last
	}
	return NewRecording(events, duration, r.bpm)
}

// Remove returns a copy of r without event i. Removing the only event fails.
func (r *Recording) Remove(i int) (*Recording, error) {
	if i < 0 || i >= len(r.events) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	events := make([]Event, 0, len(r.events)-1)
	events = append(events, r.events[:i]...)
	events = append(events, r.events[i+1:]...)
	return NewRecording(events, r.duration, r.bpm)
}

// Stretch scales every offset and the duration by factor.
// A factor above one slows the take down.
func (r *Recording) Stretch(factor float64) (*Recording, error) {
	if factor <= 0 || factor != factor {
		return nil, fmt.Errorf("%w: stretch factor %v", ErrMalformed, factor)
	}
	events := r.Events()
	for i := range events {
		events[i].T = time.Duration(float64(events[i].T) * factor)
	}
	duration := time.Duration(float64(r.duration) * factor)
	if duration < MinDuration {
		duration = MinDuration
	}
	if last := events[len(events)-1].T; last > duration {
		duration = last
	}
	return NewRecording(events, duration, r.bpm)
}
