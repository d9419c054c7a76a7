// Package model contains the event model shared by capture, playback and persistence.
package model

import (
	"fmt"
	"time"
)

// Kind tags an Event and decides which Payload it carries.
type Kind uint8

const (
	KindDown Kind = iota + 1
	KindMove
	KindUp
	KindNoteOn
	KindNoteOff
)

// Family groups kinds that share a payload shape.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyPointer
	FamilyNote
)

var kindNames = map[Kind]string{
	KindDown:    "down",
	KindMove:    "move",
	KindUp:      "up",
	KindNoteOn:  "note-on",
	KindNoteOff: "note-off",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps the wire name of a kind back to its value.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Family returns the payload family of k.
func (k Kind) Family() Family {
	switch k {
	case KindDown, KindMove, KindUp:
		return FamilyPointer
	case KindNoteOn, KindNoteOff:
		return FamilyNote
	default:
		return FamilyNone
	}
}

// IsStart reports whether k opens a gesture or a note.
func (k Kind) IsStart() bool { return k == KindDown || k == KindNoteOn }

// IsTerminal reports whether k releases what a start kind opened.
func (k Kind) IsTerminal() bool { return k == KindUp || k == KindNoteOff }

// IsContinuous reports whether payloads of this kind can be interpolated.
func (k Kind) IsContinuous() bool { return k.Family() == FamilyPointer }

// EndsTake reports whether receiving k while recording finalizes the take.
// A pointer take is one gesture; note takes run until stopped.
func (k Kind) EndsTake() bool { return k == KindUp }

// StartKind returns the start kind of a family.
func (f Family) StartKind() Kind {
	if f == FamilyNote {
		return KindNoteOn
	}
	return KindDown
}

// TerminalKind returns the terminal kind of a family.
func (f Family) TerminalKind() Kind {
	if f == FamilyNote {
		return KindNoteOff
	}
	return KindUp
}

func (f Family) String() string {
	switch f {
	case FamilyPointer:
		return "pointer"
	case FamilyNote:
		return "note"
	default:
		return "none"
	}
}

// Payload is the kind-specific part of an Event. It is implemented only by
// Pointer and Note.
type Payload interface {
	Family() Family
	sealed()
}

// Pointer is a normalised 2D position. Both axes are clamped to [0,1].
type Pointer struct {
	X float64
	Y float64
}

func (Pointer) Family() Family { return FamilyPointer }
func (Pointer) sealed()        {}

// Lerp interpolates between p and q with u in [0,1].
func (p Pointer) Lerp(q Pointer, u float64) Pointer {
	u = clamp01(u)
	return Pointer{X: p.X + (q.X-p.X)*u, Y: p.Y + (q.Y-p.Y)*u}
}

// Note is a MIDI note number with a normalised velocity.
type Note struct {
	ID       uint8
	Velocity float64
}

func (Note) Family() Family { return FamilyNote }
func (Note) sealed()        {}

// Centered is the payload synthesized for a take that received no samples.
var Centered = Pointer{X: 0.5, Y: 0.5}

// Event is one timestamped record inside a Recording.
type Event struct {
	Kind    Kind
	Payload Payload
	// T is the offset from the start of the take.
	T time.Duration
	// Synthetic marks events created by the engine rather than fed by the host.
	Synthetic bool
	// Interpolated marks virtual events emitted between two stored events.
	Interpolated bool
}

// NewEvent builds an Event after checking that kind and payload agree.
// Payload values are normalised and negative offsets are clamped to zero.
func NewEvent(kind Kind, payload Payload, t time.Duration) (Event, error) {
	if kind.Family() == FamilyNone {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if payload == nil || payload.Family() != kind.Family() {
		return Event{}, fmt.Errorf("%w: %s cannot carry %T", ErrPayloadMismatch, kind, payload)
	}
	if t < 0 {
		t = 0
	}
	return Event{Kind: kind, Payload: Normalize(payload), T: t}, nil
}

// Pointer returns the pointer payload and whether the event carries one.
func (e Event) Pointer() (Pointer, bool) {
	p, ok := e.Payload.(Pointer)
	return p, ok
}

// Note returns the note payload and whether the event carries one.
func (e Event) Note() (Note, bool) {
	n, ok := e.Payload.(Note)
	return n, ok
}

// At returns a copy of e moved to offset t.
func (e Event) At(t time.Duration) Event {
	e.T = t
	return e
}

// Normalize clamps payload fields into their valid ranges.
func Normalize(p Payload) Payload {
	switch v := p.(type) {
	case Pointer:
		return Pointer{X: clamp01(v.X), Y: clamp01(v.Y)}
	case Note:
		if v.ID > 127 {
			v.ID = 127
		}
		v.Velocity = clamp01(v.Velocity)
		return v
	default:
		return p
	}
}

// Sample is one raw input tuple on the clock's timeline.
type Sample struct {
	Kind    Kind
	Payload Payload
	At      time.Duration
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
