package takedemo

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/retake/internal/domain/types"
)

func render(seq uint64, at float64, kind string) types.Render {
	return types.Render{Seq: seq, AtMs: at, Event: types.Event{Kind: kind}}
}

func noteRender(seq uint64, at float64, kind string, note int) types.Render {
	r := render(seq, at, kind)
	r.Event.Note = &note
	return r
}

func TestVerifyRenders(t *testing.T) {
	Convey("Given a well formed gesture pass", t, func() {
		renders := []types.Render{
			render(1, 0, "down"),
			render(2, 10, "move"),
			render(3, 20, "up"),
		}
		So(verifyRenders(renders, KindGesture, 3, 1), ShouldBeNil)

		Convey("Interpolated moves do not count as recorded events", func() {
			extra := render(4, 25, "move")
			extra.Event.Interpolated = true
			renders = append(renders[:2], extra, render(5, 30, "up"))
			So(verifyRenders(renders, KindGesture, 3, 1), ShouldBeNil)
			So(errors.Is(verifyRenders(renders, KindGesture, 4, 1), errVerify), ShouldBeTrue)
		})
	})

	Convey("Broken streams are rejected", t, func() {
		cases := []struct {
			name    string
			renders []types.Render
		}{
			{"empty", nil},
			{"starts on move", []types.Render{render(1, 0, "move"), render(2, 1, "up")}},
			{"seq repeats", []types.Render{render(1, 0, "down"), render(1, 1, "up")}},
			{"time reverses", []types.Render{render(1, 5, "down"), render(2, 1, "up")}},
			{"missing up", []types.Render{render(1, 0, "down"), render(2, 1, "move")}},
		}
		for _, tc := range cases {
			Convey(tc.name, func() {
				So(errors.Is(verifyRenders(tc.renders, KindGesture, 1, 1), errVerify), ShouldBeTrue)
			})
		}
	})

	Convey("Given a phrase", t, func() {
		Convey("Balanced notes pass", func() {
			renders := []types.Render{
				noteRender(1, 0, "note-on", 60),
				noteRender(2, 5, "note-on", 64),
				noteRender(3, 10, "note-off", 60),
				noteRender(4, 15, "note-off", 64),
			}
			So(verifyRenders(renders, KindPhrase, 4, 1), ShouldBeNil)
		})

		Convey("A note released under the wrong number is held", func() {
			renders := []types.Render{
				noteRender(1, 0, "note-on", 60),
				noteRender(2, 10, "note-off", 62),
			}
			So(errors.Is(verifyRenders(renders, KindPhrase, 2, 1), errVerify), ShouldBeTrue)
		})
	})
}
