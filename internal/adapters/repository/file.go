package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileExt = ".take.json"

// envelope is the on-disk form of a Take. The blob is embedded as JSON so
// files stay readable.
type envelope struct {
	Version int64           `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Take    json.RawMessage `json:"take"`
}

// FileStore keeps one file per take in a directory. Writes go to a
// temporary file that is renamed into place.
type FileStore struct {
	mu  sync.Mutex
	dir string
	now nowFunc
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: file store needs a directory", ErrUnknownDriver)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create take dir: %w", err)
	}
	cfg := newConfig(opts)
	return &FileStore{dir: dir, now: cfg.now}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func (s *FileStore) Put(_ context.Context, name string, blob []byte) (Take, error) {
	if err := checkPut(name, blob); err != nil {
		return Take{}, err
	}
	if !json.Valid(blob) {
		return Take{}, fmt.Errorf("%w: blob is not JSON", ErrEmptyTake)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64 = 1
	if prev, err := s.read(name); err == nil {
		version = prev.Version + 1
	} else if !errors.Is(err, ErrNotFound) {
		return Take{}, err
	}

	env := envelope{Version: version, SavedAt: s.now().UTC(), Take: blob}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return Take{}, fmt.Errorf("encode take %s: %w", name, err)
	}
	if err := writeAtomic(s.dir, s.path(name), data); err != nil {
		return Take{}, fmt.Errorf("write take %s: %w", name, err)
	}
	return Take{Name: name, Blob: append([]byte(nil), blob...), Version: version, SavedAt: env.SavedAt}, nil
}

func (s *FileStore) Get(_ context.Context, name string) (Take, error) {
	if err := ValidateName(name); err != nil {
		return Take{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(name)
}

func (s *FileStore) read(name string) (Take, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Take{}, ErrNotFound
	}
	if err != nil {
		return Take{}, fmt.Errorf("read take %s: %w", name, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Take{}, fmt.Errorf("decode take %s: %w", name, err)
	}
	return Take{Name: name, Blob: []byte(env.Take), Version: env.Version, SavedAt: env.SavedAt}, nil
}

func (s *FileStore) List(_ context.Context) ([]Take, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list takes: %w", err)
	}
	out := make([]Take, 0, len(entries))
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fileExt)
		if entry.IsDir() || !ok || ValidateName(name) != nil {
			continue
		}
		t, err := s.read(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *FileStore) Driver() string { return DriverFile }
func (s *FileStore) Close() error   { return nil }

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".take-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
