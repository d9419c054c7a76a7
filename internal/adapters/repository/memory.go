package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryStore keeps takes in a map. It is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	takes map[string]Take
	now   nowFunc
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := newConfig(opts)
	return &MemoryStore{takes: make(map[string]Take), now: cfg.now}
}

func (s *MemoryStore) Put(_ context.Context, name string, blob []byte) (Take, error) {
	if err := checkPut(name, blob); err != nil {
		return Take{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Take{
		Name:    name,
		Blob:    slices.Clone(blob),
		Version: s.takes[name].Version + 1,
		SavedAt: s.now().UTC(),
	}
	s.takes[name] = t
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (Take, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.takes[name]
	if !ok {
		return Take{}, ErrNotFound
	}
	t.Blob = slices.Clone(t.Blob)
	return t, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Take, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Take, 0, len(s.takes))
	for _, t := range s.takes {
		t.Blob = slices.Clone(t.Blob)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.takes[name]; !ok {
		return ErrNotFound
	}
	delete(s.takes, name)
	return nil
}

func (s *MemoryStore) Driver() string { return DriverMemory }
func (s *MemoryStore) Close() error   { return nil }

func checkPut(name string, blob []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if len(blob) == 0 {
		return ErrEmptyTake
	}
	return nil
}
