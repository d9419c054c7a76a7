// Package midi connects engines to MIDI ports and Standard MIDI Files.
//
// Note events map to note on/off. Pointer events map to control changes:
// X on CC 1 (mod wheel), Y on CC 74 (brightness), and the pointer being held
// on CC 64 (sustain).
package midi

import (
	"math"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/okian/retake/internal/domain/model"
)

// Controller numbers used for pointer events.
const (
	CCPointerX    uint8 = 1
	CCPointerY    uint8 = 74
	CCPointerHeld uint8 = 64
)

// Messages maps ev to the MIDI messages rendered for it on channel.
func Messages(ev model.Event, channel uint8) []gomidi.Message {
	switch p := ev.Payload.(type) {
	case model.Note:
		if ev.Kind == model.KindNoteOn {
			return []gomidi.Message{gomidi.NoteOn(channel, p.ID, velocity(p.Velocity))}
		}
		return []gomidi.Message{gomidi.NoteOff(channel, p.ID)}
	case model.Pointer:
		msgs := make([]gomidi.Message, 0, 3)
		if ev.Kind == model.KindDown {
			msgs = append(msgs, gomidi.ControlChange(channel, CCPointerHeld, 127))
		}
		msgs = append(msgs,
			gomidi.ControlChange(channel, CCPointerX, scale7(p.X)),
			gomidi.ControlChange(channel, CCPointerY, scale7(p.Y)),
		)
		if ev.Kind == model.KindUp {
			msgs = append(msgs, gomidi.ControlChange(channel, CCPointerHeld, 0))
		}
		return msgs
	default:
		return nil
	}
}

// Sample maps an incoming note message to a Sample stamped at at. Note on
// with velocity zero counts as note off. Other messages report false.
func Sample(msg gomidi.Message, at time.Duration) (model.Sample, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return model.Sample{Kind: model.KindNoteOn, Payload: model.Note{ID: key, Velocity: float64(vel) / 127}, At: at}, true
	case msg.GetNoteEnd(&ch, &key):
		return model.Sample{Kind: model.KindNoteOff, Payload: model.Note{ID: key}, At: at}, true
	default:
		return model.Sample{}, false
	}
}

// Channel reports the channel of a channel message, or false.
func Channel(msg gomidi.Message) (uint8, bool) {
	var ch, a, b uint8
	switch {
	case msg.GetNoteStart(&ch, &a, &b), msg.GetNoteEnd(&ch, &a), msg.GetControlChange(&ch, &a, &b):
		return ch, true
	}
	return 0, false
}

// velocity keeps a sounding note audible; MIDI treats velocity 0 as note off.
func velocity(v float64) uint8 {
	if out := scale7(v); out > 0 {
		return out
	}
	return 1
}

func scale7(v float64) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 127
	}
	return uint8(math.Round(v * 127))
}
