// Package types contains the read and write shapes exchanged over the HTTP API.
package types

import (
	"fmt"
	"time"

	"github.com/okian/retake/internal/domain/model"
)

// Session is the read shape of one hosted engine.
type Session struct {
	ID           string  `json:"id"`
	State        string  `json:"state"`
	Loop         bool    `json:"loop"`
	MaxPasses    int     `json:"max_passes,omitempty"`
	Region       *Region `json:"region,omitempty"`
	Mode         string  `json:"mode"`
	ClockMode    string  `json:"clock_mode"`
	NowMs        float64 `json:"now_ms"`
	BPM          float64 `json:"bpm,omitempty"`
	HostSynced   bool    `json:"host_synced"`
	ElapsedMs    float64 `json:"elapsed_ms"`
	Passes       int     `json:"passes"`
	TakeEvents   int     `json:"take_events"`
	HasRecording bool    `json:"has_recording"`
	Events       int     `json:"events"`
	DurationMs   float64 `json:"duration_ms"`
	Renders      uint64  `json:"renders"`
}

// Event is the read shape of one stored or rendered event.
type Event struct {
	Index        int      `json:"index"`
	Kind         string   `json:"kind"`
	TMs          float64  `json:"t_ms"`
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Note         *int     `json:"note,omitempty"`
	Velocity     *float64 `json:"velocity,omitempty"`
	Synthetic    bool     `json:"synthetic,omitempty"`
	Interpolated bool     `json:"interpolated,omitempty"`
}

// Render is one entry of a session's render log. AtMs is the clock time the
// event was rendered for.
type Render struct {
	Seq   uint64  `json:"seq"`
	AtMs  float64 `json:"at_ms"`
	Event Event   `json:"event"`
}

// Take describes a Recording kept in the take store.
type Take struct {
	Name       string    `json:"name"`
	Family     string    `json:"family"`
	Events     int       `json:"events"`
	DurationMs float64   `json:"duration_ms"`
	BPM        float64   `json:"bpm,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// Stats summarises the service.
type Stats struct {
	Sessions      int     `json:"sessions"`
	Playing       int     `json:"playing"`
	Recording     int     `json:"recording"`
	QueuedCmds    int     `json:"queued_commands"`
	Renders       uint64  `json:"renders"`
	Takes         int     `json:"takes"`
	StoreDriver   string  `json:"store_driver"`
	DedupeEntries int     `json:"dedupe_entries"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Sample is one input sample posted by a client. OffsetMs positions it
// relative to the moment the batch is applied.
type Sample struct {
	Kind     string   `json:"kind"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Note     *int     `json:"note,omitempty"`
	Velocity *float64 `json:"velocity,omitempty"`
	OffsetMs float64  `json:"offset_ms,omitempty"`
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a Duration.
func FromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// FromEvent builds the read shape of ev at position index.
func FromEvent(index int, ev model.Event) Event {
	out := Event{
		Index:        index,
		Kind:         ev.Kind.String(),
		TMs:          Millis(ev.T),
		Synthetic:    ev.Synthetic,
		Interpolated: ev.Interpolated,
	}
	switch p := ev.Payload.(type) {
	case model.Pointer:
		x, y := p.X, p.Y
		out.X, out.Y = &x, &y
	case model.Note:
		id, vel := int(p.ID), p.Velocity
		out.Note, out.Velocity = &id, &vel
	}
	return out
}

// FromRecording lists every event of rec.
func FromRecording(rec *model.Recording) []Event {
	if rec == nil {
		return []Event{}
	}
	out := make([]Event, rec.Len())
	for i := range out {
		out[i] = FromEvent(i, rec.At(i))
	}
	return out
}

// Payload builds the model payload for kind from the optional fields.
// Missing pointer coordinates default to the previous value given by prev.
func (s Sample) Payload(kind model.Kind, prev model.Pointer) (model.Payload, error) {
	switch kind.Family() {
	case model.FamilyPointer:
		p := prev
		if s.X != nil {
			p.X = *s.X
		}
		if s.Y != nil {
			p.Y = *s.Y
		}
		return p, nil
	case model.FamilyNote:
		if s.Note == nil || *s.Note < 0 || *s.Note > 127 {
			return nil, fmt.Errorf("%w: %s needs a note in 0..127", model.ErrPayloadMismatch, kind)
		}
		vel := 1.0
		if s.Velocity != nil {
			vel = *s.Velocity
		}
		return model.Note{ID: uint8(*s.Note), Velocity: vel}, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, s.Kind)
	}
}

// Samples converts posted samples to model samples stamped at base plus
// each offset. Pointer samples without coordinates repeat the previous ones.
func Samples(in []Sample, base time.Duration) ([]model.Sample, error) {
	out := make([]model.Sample, 0, len(in))
	prev := model.Centered
	for i, s := range in {
		kind, err := model.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		payload, err := s.Payload(kind, prev)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if p, ok := payload.(model.Pointer); ok {
			prev = p
		}
		at := base + FromMillis(s.OffsetMs)
		if at < 0 {
			at = 0
		}
		out = append(out, model.Sample{Kind: kind, Payload: payload, At: at})
	}
	return out, nil
}

// SessionOptions configures a new session. Empty fields take the service
// defaults.
type SessionOptions struct {
	Mode      string `json:"mode,omitempty"`
	Clock     string `json:"clock,omitempty"`
	Loop      *bool  `json:"loop,omitempty"`
	MaxPasses *int   `json:"max_passes,omitempty"`
	AutoPlay  *bool  `json:"autoplay,omitempty"`
}

// Region is a loop region in milliseconds from the start of the take.
type Region struct {
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
}

func (r Region) Model() model.Region {
	return model.Region{Start: FromMillis(r.StartMs), End: FromMillis(r.EndMs)}
}

// FromRegion returns the read shape of g, or nil when g is nil.
func FromRegion(g *model.Region) *Region {
	if g == nil {
		return nil
	}
	return &Region{StartMs: Millis(g.Start), EndMs: Millis(g.End)}
}

// LoopSettings changes how a session repeats playback. Nil fields keep
// their value. clear_region and auto_region win over region.
type LoopSettings struct {
	Loop        *bool   `json:"loop,omitempty"`
	MaxPasses   *int    `json:"max_passes,omitempty"`
	Region      *Region `json:"region,omitempty"`
	ClearRegion bool    `json:"clear_region,omitempty"`
	AutoRegion  bool    `json:"auto_region,omitempty"`
}

// Empty reports whether the settings change nothing.
func (l LoopSettings) Empty() bool {
	return l.Loop == nil && l.MaxPasses == nil && l.Region == nil && !l.ClearRegion && !l.AutoRegion
}

// InputResult reports what a posted batch did.
type InputResult struct {
	Duplicate bool     `json:"duplicate"`
	Outcomes  []string `json:"outcomes,omitempty"`
	State     string   `json:"state"`
}

// EventPatch edits one stored event. Nil fields keep their value.
type EventPatch struct {
	Kind     *string  `json:"kind,omitempty"`
	TMs      *float64 `json:"t_ms,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Note     *int     `json:"note,omitempty"`
	Velocity *float64 `json:"velocity,omitempty"`
	Remove   bool     `json:"remove,omitempty"`
}

// Apply returns ev with the patch applied. The kind may only change within
// its family.
func (p EventPatch) Apply(ev model.Event) (model.Event, error) {
	out := ev
	if p.Kind != nil {
		kind, err := model.ParseKind(*p.Kind)
		if err != nil {
			return model.Event{}, err
		}
		if kind.Family() != ev.Kind.Family() {
			return model.Event{}, fmt.Errorf("%w: cannot turn %s into %s", model.ErrPayloadMismatch, ev.Kind, kind)
		}
		out.Kind = kind
	}
	if p.TMs != nil {
		if *p.TMs < 0 || *p.TMs != *p.TMs {
			return model.Event{}, fmt.Errorf("%w: offset %v", model.ErrMalformed, *p.TMs)
		}
		out.T = FromMillis(*p.TMs)
	}
	switch pl := ev.Payload.(type) {
	case model.Pointer:
		if p.X != nil {
			pl.X = *p.X
		}
		if p.Y != nil {
			pl.Y = *p.Y
		}
		out.Payload = pl
	case model.Note:
		if p.Note != nil {
			if *p.Note < 0 || *p.Note > 127 {
				return model.Event{}, fmt.Errorf("%w: note %d", model.ErrPayloadMismatch, *p.Note)
			}
			pl.ID = uint8(*p.Note)
		}
		if p.Velocity != nil {
			pl.Velocity = *p.Velocity
		}
		out.Payload = pl
	}
	out.Synthetic = false
	return out, nil
}
