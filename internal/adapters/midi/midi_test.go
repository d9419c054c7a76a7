package midi_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/okian/retake/internal/adapters/midi"
	"github.com/okian/retake/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func noteTake(t *testing.T) *model.Recording {
	t.Helper()
	rec, err := model.NewRecording([]model.Event{
		{Kind: model.KindNoteOn, Payload: model.Note{ID: 60, Velocity: 0.5}, T: 0},
		{Kind: model.KindNoteOn, Payload: model.Note{ID: 64, Velocity: 1}, T: 250 * time.Millisecond},
		{Kind: model.KindNoteOff, Payload: model.Note{ID: 60}, T: 500 * time.Millisecond},
		{Kind: model.KindNoteOff, Payload: model.Note{ID: 64}, T: 750 * time.Millisecond},
	}, time.Second, 0)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	return rec
}

func TestMessages(t *testing.T) {
	Convey("Given events to render", t, func() {
		Convey("Notes map to note on and off", func() {
			on := midi.Messages(model.Event{Kind: model.KindNoteOn, Payload: model.Note{ID: 60, Velocity: 1}}, 2)
			So(on, ShouldHaveLength, 1)
			So(on[0], ShouldResemble, gomidi.NoteOn(2, 60, 127))

			off := midi.Messages(model.Event{Kind: model.KindNoteOff, Payload: model.Note{ID: 60}}, 2)
			So(off[0], ShouldResemble, gomidi.NoteOff(2, 60))
		})

		Convey("A silent note on still sounds", func() {
			on := midi.Messages(model.Event{Kind: model.KindNoteOn, Payload: model.Note{ID: 60}}, 0)
			So(on[0], ShouldResemble, gomidi.NoteOn(0, 60, 1))
		})

		Convey("Pointer events map to controllers", func() {
			down := midi.Messages(model.Event{Kind: model.KindDown, Payload: model.Pointer{X: 0, Y: 1}}, 0)
			So(down, ShouldResemble, []gomidi.Message{
				gomidi.ControlChange(0, midi.CCPointerHeld, 127),
				gomidi.ControlChange(0, midi.CCPointerX, 0),
				gomidi.ControlChange(0, midi.CCPointerY, 127),
			})

			move := midi.Messages(model.Event{Kind: model.KindMove, Payload: model.Pointer{X: 0.5, Y: 0.5}}, 0)
			So(move, ShouldHaveLength, 2)
			So(move[0], ShouldResemble, gomidi.ControlChange(0, midi.CCPointerX, 64))

			up := midi.Messages(model.Event{Kind: model.KindUp, Payload: model.Pointer{}}, 0)
			So(up[len(up)-1], ShouldResemble, gomidi.ControlChange(0, midi.CCPointerHeld, 0))
		})
	})
}

func TestHandler(t *testing.T) {
	Convey("Given a handler on channel 1", t, func() {
		var got []model.Sample
		stamp := func() time.Duration { return 42 * time.Millisecond }
		h := midi.Handler(stamp, func(s model.Sample) { got = append(got, s) }, midi.WithChannel(1))

		h(gomidi.NoteOn(1, 60, 127), 0)
		h(gomidi.NoteOn(1, 60, 0), 0)
		h(gomidi.NoteOff(1, 62), 0)
		h(gomidi.NoteOn(2, 60, 100), 0)
		h(gomidi.ControlChange(1, 7, 100), 0)

		So(got, ShouldHaveLength, 3)
		So(got[0].Kind, ShouldEqual, model.KindNoteOn)
		So(got[0].Payload, ShouldResemble, model.Note{ID: 60, Velocity: 1})
		So(got[0].At, ShouldEqual, 42*time.Millisecond)
		So(got[1].Kind, ShouldEqual, model.KindNoteOff)
		So(got[2].Payload, ShouldResemble, model.Note{ID: 62})
	})

	Convey("WithAnyChannel accepts every channel", t, func() {
		n := 0
		h := midi.Handler(func() time.Duration { return 0 }, func(model.Sample) { n++ }, midi.WithAnyChannel())
		h(gomidi.NoteOn(0, 60, 100), 0)
		h(gomidi.NoteOn(9, 36, 100), 0)
		So(n, ShouldEqual, 2)
	})
}

func TestSink(t *testing.T) {
	Convey("Given a sink over a recording port", t, func() {
		var sent []gomidi.Message
		fail := false
		s := midi.NewSink(func(msg gomidi.Message) error {
			if fail {
				return errors.New("port gone")
			}
			sent = append(sent, msg)
			return nil
		}, midi.WithChannel(3))

		s.Render(model.Event{Kind: model.KindNoteOn, Payload: model.Note{ID: 48, Velocity: 1}}, 0)
		s.Render(model.Event{Kind: model.KindMove, Payload: model.Pointer{X: 1, Y: 0}, Interpolated: true}, 0)
		So(sent, ShouldHaveLength, 3)
		So(sent[0], ShouldResemble, gomidi.NoteOn(3, 48, 127))
		So(s.Sent(), ShouldEqual, 3)

		fail = true
		s.Render(model.Event{Kind: model.KindNoteOff, Payload: model.Note{ID: 48}}, 0)
		So(s.Failed(), ShouldEqual, 1)
		So(s.Sent(), ShouldEqual, 3)
	})
}

func TestSMF(t *testing.T) {
	Convey("Given a note take", t, func() {
		rec := noteTake(t)

		Convey("Export then import keeps notes and timing", func() {
			var buf bytes.Buffer
			So(midi.WriteSMF(&buf, rec, 0), ShouldBeNil)
			So(buf.Bytes()[:4], ShouldResemble, []byte("MThd"))

			back, err := midi.ReadSMF(&buf)
			So(err, ShouldBeNil)
			So(back.Len(), ShouldEqual, 4)
			So(back.BPM(), ShouldAlmostEqual, midi.DefaultBPM, 0.01)
			So(back.Duration(), ShouldEqual, time.Second)
			for i, ev := range back.Events() {
				want := rec.At(i)
				So(ev.Kind, ShouldEqual, want.Kind)
				So(ev.T, ShouldEqual, want.T)
				n, _ := ev.Note()
				w, _ := want.Note()
				So(n.ID, ShouldEqual, w.ID)
				So(n.Velocity, ShouldAlmostEqual, w.Velocity, 0.01)
			}
		})

		Convey("The take tempo is written", func() {
			slow, err := model.NewRecording(rec.Events(), rec.Duration(), 90)
			So(err, ShouldBeNil)

			var buf bytes.Buffer
			So(midi.WriteSMF(&buf, slow, 0), ShouldBeNil)
			back, err := midi.ReadSMF(&buf)
			So(err, ShouldBeNil)
			So(back.BPM(), ShouldAlmostEqual, 90, 0.01)
			So(back.At(1).T, ShouldAlmostEqual, 250*time.Millisecond, time.Millisecond)
		})

		Convey("A pointer take exports as controllers", func() {
			ptr, err := model.NewRecording([]model.Event{
				{Kind: model.KindDown, Payload: model.Pointer{X: 0.1, Y: 0.1}},
				{Kind: model.KindUp, Payload: model.Pointer{X: 0.9, Y: 0.9}, T: 100 * time.Millisecond},
			}, 100*time.Millisecond, 0)
			So(err, ShouldBeNil)

			var buf bytes.Buffer
			So(midi.WriteSMF(&buf, ptr, 0), ShouldBeNil)
			_, err = midi.ReadSMF(&buf)
			So(errors.Is(err, midi.ErrNoNotes), ShouldBeTrue)
		})

		Convey("Nothing is exported for a missing take", func() {
			So(errors.Is(midi.WriteSMF(&bytes.Buffer{}, nil, 0), model.ErrMalformed), ShouldBeTrue)
		})

		Convey("Garbage is not a midi file", func() {
			_, err := midi.ReadSMF(bytes.NewReader([]byte("nope")))
			So(err, ShouldNotBeNil)
		})
	})
}
