// Package snapshot encodes Recordings into versioned JSON documents and
// restores them, upgrading older versions explicitly.
package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/okian/retake/internal/domain/model"
)

// Version is the schema version written by Encode.
const Version = 2

// Config is the engine configuration stored alongside a Recording.
type Config struct {
	Loop      bool    `json:"loop"`
	ClockMode string  `json:"clock_mode,omitempty"`
	RecordBPM float64 `json:"record_bpm,omitempty"`
}

type document struct {
	Version  *int        `json:"version"`
	Events   []eventJSON `json:"events"`
	Duration float64     `json:"duration"`
	Config   Config      `json:"config"`
}

type eventJSON struct {
	Kind      string   `json:"kind"`
	T         float64  `json:"t"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Note      *int     `json:"note,omitempty"`
	Velocity  *float64 `json:"velocity,omitempty"`
	Synthetic bool     `json:"synthetic,omitempty"`
}

// Encode renders rec and cfg as a version 2 document. Offsets and the
// duration are written in milliseconds.
func Encode(rec *model.Recording, cfg Config) ([]byte, error) {
	if rec == nil || rec.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to encode", ErrMalformedRecording)
	}
	v := Version
	doc := document{
		Version:  &v,
		Events:   make([]eventJSON, 0, rec.Len()),
		Duration: toMillis(rec.Duration()),
		Config:   cfg,
	}
	if doc.Config.RecordBPM == 0 {
		doc.Config.RecordBPM = rec.BPM()
	}
	for _, ev := range rec.Events() {
		ej := eventJSON{Kind: ev.Kind.String(), T: toMillis(ev.T), Synthetic: ev.Synthetic}
		switch p := ev.Payload.(type) {
		case model.Pointer:
			x, y := p.X, p.Y
			ej.X, ej.Y = &x, &y
		case model.Note:
			id, vel := int(p.ID), p.Velocity
			ej.Note, ej.Velocity = &id, &vel
		}
		doc.Events = append(doc.Events, ej)
	}
	return json.Marshal(doc)
}

// Decode parses a document of any known version. On failure nothing is
// returned, so callers keep whatever they held before.
func Decode(blob []byte) (*model.Recording, Config, error) {
	var head struct {
		Version *json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(blob, &head); err != nil {
		return nil, Config{}, fmt.Errorf("%w: %v", ErrMalformedRecording, err)
	}
	if head.Version == nil {
		return nil, Config{}, fmt.Errorf("%w: version missing", ErrUnknownSchemaVersion)
	}
	var version int
	if err := json.Unmarshal(*head.Version, &version); err != nil {
		return nil, Config{}, fmt.Errorf("%w: version %s", ErrUnknownSchemaVersion, string(*head.Version))
	}

	var doc document
	switch version {
	case 1:
		migrated, err := migrateV1(blob)
		if err != nil {
			return nil, Config{}, err
		}
		doc = migrated
	case Version:
		if err := json.Unmarshal(blob, &doc); err != nil {
			return nil, Config{}, fmt.Errorf("%w: %v", ErrMalformedRecording, err)
		}
	default:
		return nil, Config{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, version)
	}

	rec, err := doc.recording()
	if err != nil {
		return nil, Config{}, err
	}
	return rec, doc.Config, nil
}

func (d document) recording() (*model.Recording, error) {
	if len(d.Events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrMalformedRecording)
	}
	events := make([]model.Event, 0, len(d.Events))
	for i, ej := range d.Events {
		ev, err := ej.event()
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformedRecording, i, err)
		}
		events = append(events, ev)
	}
	duration, err := fromMillis(d.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: duration: %v", ErrMalformedRecording, err)
	}
	rec, err := model.NewRecording(events, duration, d.Config.RecordBPM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecording, err)
	}
	return rec, nil
}

func (ej eventJSON) event() (model.Event, error) {
	kind, err := model.ParseKind(ej.Kind)
	if err != nil {
		return model.Event{}, err
	}
	t, err := fromMillis(ej.T)
	if err != nil {
		return model.Event{}, err
	}
	var payload model.Payload
	switch kind.Family() {
	case model.FamilyPointer:
		if ej.X == nil || ej.Y == nil {
			return model.Event{}, fmt.Errorf("%s without x and y", kind)
		}
		payload = model.Pointer{X: *ej.X, Y: *ej.Y}
	case model.FamilyNote:
		if ej.Note == nil || *ej.Note < 0 || *ej.Note > 127 {
			return model.Event{}, fmt.Errorf("%s without a note number in 0..127", kind)
		}
		vel := 0.0
		if ej.Velocity != nil {
			vel = *ej.Velocity
		}
		payload = model.Note{ID: uint8(*ej.Note), Velocity: vel}
	}
	return model.Event{Kind: kind, Payload: payload, T: t, Synthetic: ej.Synthetic}, nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) (time.Duration, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return 0, fmt.Errorf("invalid milliseconds %v", ms)
	}
	if ms > float64(math.MaxInt64/int64(time.Millisecond)) {
		return 0, fmt.Errorf("milliseconds %v out of range", ms)
	}
	return time.Duration(math.Round(ms * float64(time.Millisecond))), nil
}
