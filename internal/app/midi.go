package service

import (
	"context"
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/okian/retake/internal/adapters/midi"
	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/pkg/logger"
)

// AttachMIDI binds MIDI ports to a session. Notes arriving on in are
// stamped with the session clock and captured like posted input. Rendered
// events are sent to out. Either may be nil.
func (s *Service) AttachMIDI(ctx context.Context, id string, in drivers.In, out midi.SendFunc) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	log := s.logger.Named("midi")
	opts := []midi.Option{midi.WithChannel(s.midiChannel), midi.WithLogger(log)}

	if out != nil {
		sess.output.sink.Store(midi.NewSink(out, opts...))
	}
	if in == nil {
		return nil
	}

	feed := func(sample model.Sample) {
		req := queue.Request{Cmd: engine.Command{Op: engine.OpInput, Samples: []model.Sample{sample}}}
		if err := sess.queue.Enqueue(context.Background(), req); err != nil {
			log.Warn(context.Background(), "midi input dropped",
				logger.String("session", id),
				logger.Error(err),
			)
		}
	}
	listener, err := midi.Listen(in, sess.now, feed, opts...)
	if err != nil {
		return fmt.Errorf("attach midi: %w", err)
	}

	sess.mu.Lock()
	prev := sess.listener
	sess.listener = listener
	sess.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	s.logger.Info(ctx, "midi attached",
		logger.String("session", id),
		logger.String("in", listener.Port()),
		logger.Bool("out", out != nil),
	)
	return nil
}
