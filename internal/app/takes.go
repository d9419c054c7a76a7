package service

import (
	"context"

	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/snapshot"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
)

// SaveTake stores the session's Recording under name, replacing any take
// already saved under it.
func (s *Service) SaveTake(ctx context.Context, id, name string) (types.Take, error) {
	if err := repository.ValidateName(name); err != nil {
		return types.Take{}, err
	}
	store, err := s.takeStore()
	if err != nil {
		return types.Take{}, err
	}
	blob, err := s.Snapshot(ctx, id)
	if err != nil {
		return types.Take{}, err
	}
	take, err := store.Put(ctx, name, blob)
	if err != nil {
		return types.Take{}, err
	}
	s.logger.Info(ctx, "take saved",
		logger.String("session", id),
		logger.String("take", name),
		logger.Int64("version", take.Version),
	)
	return s.describeTake(ctx, take), nil
}

// LoadTake loads a stored take into the session.
func (s *Service) LoadTake(ctx context.Context, id, name string) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	store, err := s.takeStore()
	if err != nil {
		return types.Session{}, err
	}
	take, err := store.Get(ctx, name)
	if err != nil {
		return types.Session{}, err
	}
	return s.load(ctx, sess, take.Blob)
}

// Takes lists the stored takes ordered by name.
func (s *Service) Takes(ctx context.Context) ([]types.Take, error) {
	store, err := s.takeStore()
	if err != nil {
		return nil, err
	}
	takes, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Take, len(takes))
	for i, t := range takes {
		out[i] = s.describeTake(ctx, t)
	}
	return out, nil
}

// Take returns one stored take with its snapshot blob.
func (s *Service) Take(ctx context.Context, name string) (types.Take, []byte, error) {
	store, err := s.takeStore()
	if err != nil {
		return types.Take{}, nil, err
	}
	t, err := store.Get(ctx, name)
	if err != nil {
		return types.Take{}, nil, err
	}
	return s.describeTake(ctx, t), t.Blob, nil
}

func (s *Service) DeleteTake(ctx context.Context, name string) error {
	store, err := s.takeStore()
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info(ctx, "take deleted", logger.String("take", name))
	return nil
}

// describeTake summarises t. A blob that no longer decodes is reported by
// name only.
func (s *Service) describeTake(ctx context.Context, t repository.Take) types.Take {
	out := types.Take{Name: t.Name, SavedAt: t.SavedAt}
	rec, _, err := snapshot.Decode(t.Blob)
	if err != nil {
		s.logger.Warn(ctx, "stored take does not decode", logger.String("take", t.Name), logger.Error(err))
		return out
	}
	out.Family = rec.Family().String()
	out.Events = rec.Len()
	out.DurationMs = types.Millis(rec.Duration())
	out.BPM = rec.BPM()
	return out
}

