// Package repository keeps named takes: snapshot blobs produced by the
// snapshot package, stored in memory, on disk or in Redis.
package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Driver names.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

const maxNameLen = 64

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Take is one stored snapshot. Version starts at 1 and grows with every Put
// under the same name.
type Take struct {
	Name    string
	Blob    []byte
	Version int64
	SavedAt time.Time
}

// Store provides read/write access to named takes. Blobs are opaque to it.
type Store interface {
	// Put stores blob under name, replacing any previous take.
	Put(ctx context.Context, name string, blob []byte) (Take, error)

	// Get returns ErrNotFound if name is unknown.
	Get(ctx context.Context, name string) (Take, error)

	// List returns every take ordered by name.
	List(ctx context.Context) ([]Take, error)

	// Delete returns ErrNotFound if name is unknown.
	Delete(ctx context.Context, name string) error

	Driver() string
	Close() error
}

// ValidateName accepts names usable as file names and Redis keys.
func ValidateName(name string) error {
	if len(name) > maxNameLen || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
