package midi

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/okian/retake/internal/domain/model"
)

// Resolution is the ticks per quarter note of exported files.
const Resolution = 960

// DefaultBPM is the tempo written for takes captured on the internal clock.
const DefaultBPM = 120.0

var ErrNoNotes = errors.New("midi file has no notes")

// WriteSMF writes rec as a format 1 Standard MIDI File: a tempo track and
// one track with the take's events on channel.
func WriteSMF(w io.Writer, rec *model.Recording, channel uint8) error {
	if rec == nil || rec.Len() == 0 {
		return fmt.Errorf("%w: nothing to export", model.ErrMalformed)
	}
	bpm := rec.BPM()
	if bpm <= 0 {
		bpm = DefaultBPM
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	var track smf.Track
	var last uint32
	for _, ev := range rec.Events() {
		at := ticks(ev.T, bpm)
		for i, msg := range Messages(ev, channel) {
			delta := uint32(0)
			if i == 0 {
				delta = at - last
			}
			track.Add(delta, msg)
		}
		last = at
	}
	track.Close(ticks(rec.Duration(), bpm) - last)
	if err := sm.Add(track); err != nil {
		return fmt.Errorf("add take track: %w", err)
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}

// ReadSMF reads the notes of every track of a Standard MIDI File into a
// note Recording. Tempo changes are honoured and the first tempo becomes
// the Recording's BPM.
func ReadSMF(r io.Reader) (*model.Recording, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read midi file: %w", err)
	}
	bpm := DefaultBPM
	if changes := sm.TempoChanges(); len(changes) > 0 {
		bpm = changes[0].BPM
	}

	var events []model.Event
	var end time.Duration
	for _, track := range sm.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			at := time.Duration(sm.TimeAt(abs)) * time.Microsecond
			if at > end {
				end = at
			}
			if s, ok := Sample(gomidi.Message(ev.Message), at); ok {
				events = append(events, model.Event{Kind: s.Kind, Payload: s.Payload, T: s.At})
			}
		}
	}
	if len(events) == 0 {
		return nil, ErrNoNotes
	}
	sortEvents(events)
	if end < model.MinDuration {
		end = model.MinDuration
	}
	return model.NewRecording(events, end, bpm)
}

// ticks converts an offset to ticks at bpm.
func ticks(d time.Duration, bpm float64) uint32 {
	beats := d.Seconds() * bpm / 60
	return uint32(math.Round(beats * Resolution))
}

// sortEvents orders events from several tracks by time, keeping track order
// for equal times.
func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].T < events[j].T })
}
