package takedemo

import (
	"errors"
	"fmt"

	"github.com/okian/retake/internal/domain/types"
)

var errVerify = errors.New("render verification failed")

// family kinds for the two take shapes.
func kinds(kind string) (start, terminal string) {
	if kind == KindPhrase {
		return "note-on", "note-off"
	}
	return "down", "up"
}

// verifyRenders checks the rendered stream of a playback: sequence numbers
// strictly increase, render times never go backwards, the stream opens with
// a start event, every start has its terminal, and each pass rendered every
// recorded event.
func verifyRenders(renders []types.Render, kind string, events, passes int) error {
	if len(renders) == 0 {
		return fmt.Errorf("%w: no renders", errVerify)
	}
	start, terminal := kinds(kind)
	if got := renders[0].Event.Kind; got != start {
		return fmt.Errorf("%w: first render is %q, want %q", errVerify, got, start)
	}

	var starts, terminals, recorded int
	held := map[int]int{}
	for i, r := range renders {
		if i > 0 {
			prev := renders[i-1]
			if r.Seq <= prev.Seq {
				return fmt.Errorf("%w: seq %d after %d", errVerify, r.Seq, prev.Seq)
			}
			if r.AtMs < prev.AtMs {
				return fmt.Errorf("%w: render %d at %.3fms before %.3fms", errVerify, r.Seq, r.AtMs, prev.AtMs)
			}
		}
		ev := r.Event
		switch ev.Kind {
		case start:
			starts++
			if ev.Note != nil {
				held[*ev.Note]++
			}
		case terminal:
			terminals++
			if ev.Note != nil {
				held[*ev.Note]--
			}
		}
		if !ev.Synthetic && !ev.Interpolated {
			recorded++
		}
	}
	if starts != terminals {
		return fmt.Errorf("%w: %d %s renders but %d %s", errVerify, starts, start, terminals, terminal)
	}
	for note, n := range held {
		if n != 0 {
			return fmt.Errorf("%w: note %d left held", errVerify, note)
		}
	}
	if want := events * passes; recorded < want {
		return fmt.Errorf("%w: %d recorded renders for %d passes of %d events", errVerify, recorded, passes, events)
	}
	return nil
}
