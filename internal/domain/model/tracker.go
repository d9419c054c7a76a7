package model

import (
	"sort"
	"time"
)

// Tracker follows what a stream of events leaves held: a pressed pointer
// and sounding notes. It is used to close takes and to release output when
// playback ends or stops.
type Tracker struct {
	down    bool
	last    Pointer
	hasLast bool
	notes   map[uint8]Note
}

// Observe updates the held state with ev.
func (t *Tracker) Observe(ev Event) {
	switch p := ev.Payload.(type) {
	case Pointer:
		t.last, t.hasLast = p, true
		switch ev.Kind {
		case KindDown:
			t.down = true
		case KindUp:
			t.down = false
		}
	case Note:
		if t.notes == nil {
			t.notes = make(map[uint8]Note)
		}
		switch ev.Kind {
		case KindNoteOn:
			t.notes[p.ID] = p
		case KindNoteOff:
			delete(t.notes, p.ID)
		}
	}
}

// Held reports whether anything is still pressed or sounding.
func (t *Tracker) Held() bool { return t.down || len(t.notes) > 0 }

// LastPointer returns the most recent pointer position.
func (t *Tracker) LastPointer() (Pointer, bool) { return t.last, t.hasLast }

// Release returns synthetic terminal events at offset at for everything
// still held, in note order, and clears the held state.
func (t *Tracker) Release(at time.Duration) []Event {
	var out []Event
	if t.down {
		out = append(out, Event{Kind: KindUp, Payload: t.last, T: at, Synthetic: true})
		t.down = false
	}
	if len(t.notes) > 0 {
		ids := make([]int, 0, len(t.notes))
		for id := range t.notes {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			out = append(out, Event{Kind: KindNoteOff, Payload: t.notes[uint8(id)], T: at, Synthetic: true})
		}
		t.notes = nil
	}
	return out
}

// Close releases everything held and, when nothing was held but last is
// not a terminal kind, adds a terminal event carrying last's payload.
// Every take and every playback pass ends on a terminal event this way.
func (t *Tracker) Close(last Event, at time.Duration) []Event {
	out := t.Release(at)
	if len(out) == 0 && !last.Kind.IsTerminal() && last.Payload != nil {
		out = append(out, Event{
			Kind:      last.Kind.Family().TerminalKind(),
			Payload:   last.Payload,
			T:         at,
			Synthetic: true,
		})
	}
	return out
}

// Reset forgets all held state.
func (t *Tracker) Reset() {
	*t = Tracker{}
}
