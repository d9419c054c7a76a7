package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/retake/internal/adapters/midi"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/snapshot"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

// Snapshot encodes the stored Recording of a session.
func (s *Service) Snapshot(ctx context.Context, id string) ([]byte, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	res, err := sess.call(ctx, engine.Command{Op: engine.OpSave})
	if err != nil {
		return nil, err
	}
	return res.Blob, nil
}

// LoadSnapshot replaces the session's Recording with a decoded blob.
func (s *Service) LoadSnapshot(ctx context.Context, id string, blob []byte) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	return s.load(ctx, sess, blob)
}

func (s *Service) load(ctx context.Context, sess *session, blob []byte) (types.Session, error) {
	res, err := sess.call(ctx, engine.Command{Op: engine.OpLoad, Blob: blob})
	if err != nil {
		if kind := snapshotErrorKind(err); kind != "" {
			metrics.RecordSnapshotError(kind)
			s.logger.Warn(ctx, "snapshot rejected", logger.String("session", sess.id), logger.Error(err))
		}
		return types.Session{}, err
	}
	return sess.describe(res.View), nil
}

func snapshotErrorKind(err error) string {
	switch {
	case errors.Is(err, snapshot.ErrUnknownSchemaVersion):
		return "unknown_version"
	case errors.Is(err, snapshot.ErrMalformedRecording):
		return "malformed"
	default:
		return ""
	}
}

// ExportSMF renders a note Recording as a standard MIDI file.
func (s *Service) ExportSMF(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.recording(ctx, id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := midi.WriteSMF(&buf, rec, s.midiChannel); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return buf.Bytes(), nil
}

// ImportSMF loads the notes of a standard MIDI file as the session's
// Recording. The session keeps its loop flag.
func (s *Service) ImportSMF(ctx context.Context, id string, r io.Reader) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	rec, err := midi.ReadSMF(r)
	if err != nil {
		return types.Session{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	res, err := sess.call(ctx, engine.Command{Op: engine.OpView})
	if err != nil {
		return types.Session{}, err
	}
	blob, err := snapshot.Encode(rec, snapshot.Config{Loop: res.View.Loop, RecordBPM: rec.BPM()})
	if err != nil {
		return types.Session{}, err
	}
	return s.load(ctx, sess, blob)
}

// Events lists the stored Recording of a session.
func (s *Service) Events(ctx context.Context, id string) ([]types.Event, error) {
	rec, err := s.recording(ctx, id)
	if err != nil {
		return nil, err
	}
	return types.FromRecording(rec), nil
}

// EditEvent patches or removes one stored event and returns the edited
// Recording. Playback in progress continues on the edited take.
func (s *Service) EditEvent(ctx context.Context, id string, index int, patch types.EventPatch) ([]types.Event, error) {
	return s.edit(ctx, id, func(rec *model.Recording) (*model.Recording, error) {
		if index < 0 || index >= rec.Len() {
			return nil, fmt.Errorf("%w: %d of %d", model.ErrIndexOutOfRange, index, rec.Len())
		}
		if patch.Remove {
			return rec.Remove(index)
		}
		ev, err := patch.Apply(rec.At(index))
		if err != nil {
			return nil, err
		}
		return rec.Replace(index, ev)
	})
}

// Stretch scales the stored Recording in time. A factor above one slows it.
func (s *Service) Stretch(ctx context.Context, id string, factor float64) ([]types.Event, error) {
	return s.edit(ctx, id, func(rec *model.Recording) (*model.Recording, error) {
		return rec.Stretch(factor)
	})
}

func (s *Service) edit(ctx context.Context, id string, fn func(*model.Recording) (*model.Recording, error)) ([]types.Event, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	res, err := sess.call(ctx, engine.Command{Op: engine.OpEdit, Edit: fn})
	if err != nil {
		return nil, err
	}
	return types.FromRecording(res.Recording), nil
}

// Renders returns up to limit logged renders with a sequence number above
// after.
func (s *Service) Renders(_ context.Context, id string, after uint64, limit int) ([]types.Render, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.renders.After(after, limit), nil
}

// recording returns the stored Recording. Recordings are immutable, so the
// caller may read it outside the driver.
func (s *Service) recording(ctx context.Context, id string) (*model.Recording, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	res, err := sess.call(ctx, engine.Command{Op: engine.OpView})
	if err != nil {
		return nil, err
	}
	if res.Recording == nil {
		return nil, engine.ErrNoRecording
	}
	return res.Recording, nil
}
