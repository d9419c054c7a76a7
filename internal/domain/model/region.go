package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultBPM is the beat grid used for takes captured without a host tempo.
const DefaultBPM = 120.0

// MinNoteLength is the shortest note a region keeps after clipping.
const MinNoteLength = 10 * time.Millisecond

// Region is the span [Start, End) of a Recording that a loop plays. End may
// lie past the take's duration; the tail then plays as silence.
type Region struct {
	Start time.Duration
	End   time.Duration
}

func (g Region) Len() time.Duration { return g.End - g.Start }

// Clamp moves Start to zero or later, End to Start or later, and caps the
// length at max when max is positive.
func (g Region) Clamp(max time.Duration) Region {
	if g.Start < 0 {
		g.Start = 0
	}
	if g.End < g.Start {
		g.End = g.Start
	}
	if max > 0 && g.Len() > max {
		g.End = g.Start + max
	}
	return g
}

func (g Region) String() string {
	return fmt.Sprintf("[%s, %s)", g.Start, g.End)
}

// BeatRegion returns the region that covers every sounding event of r,
// widened outwards to whole beats at bpm and at least two beats long. A
// non-positive bpm falls back to the take's own tempo, then to DefaultBPM.
func (r *Recording) BeatRegion(bpm float64) Region {
	if bpm <= 0 {
		bpm = r.bpm
	}
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	beat := time.Duration(float64(time.Minute) / bpm)

	first, last := r.events[0].T, r.duration
	for _, ev := range r.events {
		if ev.Kind.IsStart() {
			first = ev.T
			break
		}
	}
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind.IsTerminal() {
			last = r.events[i].T
			break
		}
	}

	g := Region{
		Start: time.Duration(math.Floor(float64(first)/float64(beat))) * beat,
		End:   time.Duration(math.Ceil(float64(last)/float64(beat))) * beat,
	}
	if g.Len() < 2*beat {
		g.End = g.Start + 2*beat
	}
	return g
}

// Slice returns a new Recording holding the part of r inside g, shifted so
// the region starts at zero. Its duration is the region's length.
//
// Notes that overlap the region are clipped to it and kept at least
// MinNoteLength long. A pointer held down across Start opens the slice with
// a synthetic down, and whatever is still held at End is released.
func (r *Recording) Slice(g Region) (*Recording, error) {
	g = g.Clamp(0)
	if g.Len() < MinDuration {
		return nil, fmt.Errorf("%w: region %s", ErrEmptyRegion, g)
	}

	var events []Event
	if r.Family() == FamilyNote {
		events = r.sliceNotes(g)
	} else {
		events = r.slicePointer(g)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: nothing plays inside %s", ErrEmptyRegion, g)
	}
	return NewRecording(events, g.Len(), r.bpm)
}

func (r *Recording) slicePointer(g Region) []Event {
	var before Tracker
	i := 0
	for ; i < len(r.events) && r.events[i].T < g.Start; i++ {
		before.Observe(r.events[i])
	}

	var out []Event
	opensAtStart := i < len(r.events) && r.events[i].T == g.Start && r.events[i].Kind.IsStart()
	if before.down && !opensAtStart {
		out = append(out, Event{Kind: KindDown, Payload: before.last, T: 0, Synthetic: true})
	}
	for ; i < len(r.events) && r.events[i].T < g.End; i++ {
		ev := r.events[i]
		ev.T -= g.Start
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil
	}

	var held Tracker
	for _, ev := range out {
		held.Observe(ev)
	}
	return append(out, held.Close(out[len(out)-1], g.Len())...)
}

type span struct {
	on       Event
	from, to time.Duration
}

func (r *Recording) sliceNotes(g Region) []Event {
	open := make(map[uint8][]int)
	var spans []span
	for _, ev := range r.events {
		n, _ := ev.Note()
		switch ev.Kind {
		case KindNoteOn:
			open[n.ID] = append(open[n.ID], len(spans))
			spans = append(spans, span{on: ev, from: ev.T, to: r.duration})
		case KindNoteOff:
			if q := open[n.ID]; len(q) > 0 {
				spans[q[0]].to = ev.T
				open[n.ID] = q[1:]
			}
		}
	}

	length := g.Len()
	var out []Event
	for _, sp := range spans {
		if sp.from >= g.End || sp.to <= g.Start {
			continue
		}
		from := sp.from - g.Start
		if from < 0 {
			from = 0
		}
		to := sp.to - g.Start
		if to > length {
			to = length
		}
		if to-from < MinNoteLength {
			to = from + MinNoteLength
			if to > length {
				to = length
			}
		}
		n, _ := sp.on.Note()
		on := sp.on
		on.T = from
		on.Synthetic = on.Synthetic || sp.from < g.Start
		out = append(out,
			on,
			Event{Kind: KindNoteOff, Payload: Note{ID: n.ID}, T: to, Synthetic: sp.to > g.End},
		)
	}
	// A release sorts before a press at the same instant so a re-struck
	// note is not cut by its own predecessor.
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].T != out[b].T {
			return out[a].T < out[b].T
		}
		return out[a].Kind.IsTerminal() && !out[b].Kind.IsTerminal()
	})
	return out
}
