package midi

import (
	"context"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/pkg/logger"
)

// SendFunc writes one message to an output port. gomidi.SendTo returns one.
type SendFunc func(msg gomidi.Message) error

// Sink renders playback to a MIDI output. Interpolated pointer moves are
// rendered too, so controllers follow the path smoothly.
type Sink struct {
	send    SendFunc
	channel uint8
	logger  logger.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewSink returns a Sink writing through send.
func NewSink(send SendFunc, opts ...Option) *Sink {
	cfg := newConfig(opts)
	return &Sink{send: send, channel: cfg.channel, logger: cfg.logger}
}

func (s *Sink) Render(ev model.Event, _ time.Duration) {
	for _, msg := range Messages(ev, s.channel) {
		if err := s.send(msg); err != nil {
			// log once per sink, a vanished port fails every call
			if s.failed.Add(1) == 1 {
				s.logger.Warn(context.Background(), "midi send failed", logger.String("msg", msg.String()), logger.Error(err))
			}
			continue
		}
		s.sent.Add(1)
	}
}

// Sent is how many messages went out.
func (s *Sink) Sent() uint64 { return s.sent.Load() }

// Failed is how many messages the port refused.
func (s *Sink) Failed() uint64 { return s.failed.Load() }
