package playback

import (
	"time"

	"github.com/okian/retake/internal/domain/model"
)

// Sink receives rendered events. at is the nominal clock time of the event;
// ev.T stays the offset inside the take. Poll mode calls Render on every
// tick, so implementations must be cheap.
type Sink interface {
	Render(ev model.Event, at time.Duration)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev model.Event, at time.Duration)

func (f SinkFunc) Render(ev model.Event, at time.Duration) { f(ev, at) }

// Fanout renders every event to each sink in order.
type Fanout []Sink

func (f Fanout) Render(ev model.Event, at time.Duration) {
	for _, s := range f {
		if s != nil {
			s.Render(ev, at)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(model.Event, time.Duration) {})
