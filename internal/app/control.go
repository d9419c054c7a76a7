package service

import (
	"context"
	"fmt"

	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/dedupe"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

var controlOps = map[engine.Op]bool{
	engine.OpArm:    true,
	engine.OpDisarm: true,
	engine.OpRecord: true,
	engine.OpStop:   true,
	engine.OpClear:  true,
	engine.OpToggle: true,
}

// Control runs one argument-free control operation: arm, disarm, record,
// stop, clear or toggle.
func (s *Service) Control(ctx context.Context, id string, op engine.Op) (types.Session, error) {
	if !controlOps[op] {
		return types.Session{}, fmt.Errorf("%w: %s is not a control operation", ErrInvalidArgument, op)
	}
	return s.run(ctx, id, engine.Command{Op: op})
}

// Play starts playback of the stored Recording. A non-empty take is loaded
// from the take store first. loop, when set, replaces the loop flag.
func (s *Service) Play(ctx context.Context, id string, loop *bool, take string) (types.Session, error) {
	if take != "" {
		if _, err := s.LoadTake(ctx, id, take); err != nil {
			return types.Session{}, err
		}
	}
	return s.run(ctx, id, engine.Command{Op: engine.OpPlay, Loop: loop})
}

// SetLoop changes the loop flag, the pass cap and the loop region. A take
// that is playing picks up the flag and the cap at the end of the current
// pass; a new region restarts the pass.
func (s *Service) SetLoop(ctx context.Context, id string, ls types.LoopSettings) (types.Session, error) {
	if ls.Empty() {
		return types.Session{}, fmt.Errorf("%w: no loop setting given", ErrInvalidArgument)
	}
	settings := engine.LoopSettings{
		Loop:        ls.Loop,
		MaxPasses:   ls.MaxPasses,
		ClearRegion: ls.ClearRegion,
		AutoRegion:  ls.AutoRegion,
	}
	if ls.Region != nil {
		g := ls.Region.Model()
		if g.End <= g.Start {
			return types.Session{}, fmt.Errorf("%w: loop region ends before it starts", ErrInvalidArgument)
		}
		settings.Region = &g
	}
	return s.run(ctx, id, engine.Command{Op: engine.OpSetLoop, Settings: settings})
}

// UseClock switches the session between its internal and host clocks.
func (s *Service) UseClock(ctx context.Context, id, mode string) (types.Session, error) {
	m, err := clock.ParseMode(mode)
	if err != nil {
		return types.Session{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return s.run(ctx, id, engine.Command{Op: engine.OpUseClock, Clock: m})
}

// Tempo feeds the session's host clock. A transport that jumps backwards
// is absorbed as a discontinuity and counted.
func (s *Service) Tempo(ctx context.Context, id string, beats, bpm float64) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	jumped, err := sess.host.Update(beats, bpm)
	if err != nil {
		return types.Session{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if jumped {
		metrics.RecordClockDiscontinuity()
		s.logger.Warn(ctx, "host clock discontinuity",
			logger.String("session", id),
			logger.Float64("beats", beats),
			logger.Int64("total", int64(sess.host.Discontinuities())),
			logger.Error(sess.host.LastDiscontinuity()),
		)
	}
	return s.view(ctx, sess)
}

// Input stamps a batch of samples against the session clock and hands it to
// the engine. A repeated non-empty batchID is acknowledged without being
// applied again.
func (s *Service) Input(ctx context.Context, id, batchID string, in []types.Sample) (types.InputResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.InputResult{}, err
	}
	samples, err := types.Samples(in, sess.now())
	if err != nil {
		return types.InputResult{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	key := ""
	if batchID != "" {
		key = dedupe.Key(id, batchID)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateBatch()
			s.logger.Debug(ctx, "duplicate input batch",
				logger.String("session", id),
				logger.String("batch", batchID),
			)
			return types.InputResult{Duplicate: true, State: sess.State().String()}, nil
		}
	}

	res, err := sess.call(ctx, engine.Command{Op: engine.OpInput, Samples: samples})
	if err != nil && res.Outcomes == nil {
		if key != "" {
			s.deduper.Forget(ctx, key)
		}
		return types.InputResult{}, err
	}

	out := types.InputResult{State: res.State.String(), Outcomes: make([]string, len(res.Outcomes))}
	for i, o := range res.Outcomes {
		out.Outcomes[i] = o.String()
	}
	return out, nil
}

// run sends cmd to the session and describes the session afterwards.
func (s *Service) run(ctx context.Context, id string, cmd engine.Command) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	res, err := sess.call(ctx, cmd)
	if err != nil {
		return types.Session{}, err
	}
	return sess.describe(res.View), nil
}
