package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/retake/pkg/metrics"
)

// Settings selects and configures a Store for Open.
type Settings struct {
	Driver      string
	Dir         string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the Store named by s.Driver, wrapped with metrics.
func Open(ctx context.Context, s Settings, opts ...Option) (Store, error) {
	var store Store
	switch s.Driver {
	case "", DriverMemory:
		store = NewMemoryStore(opts...)
	case DriverFile:
		fs, err := NewFileStore(s.Dir, opts...)
		if err != nil {
			return nil, err
		}
		store = fs
	case DriverRedis:
		rs := NewRedisStore(&redis.Options{Addr: s.RedisAddr}, append(opts, WithPrefix(s.RedisPrefix))...)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}
	return Instrument(store), nil
}

// Instrument records every call on s as a store operation metric.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s}
}

type instrumented struct {
	Store
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	metrics.RecordStoreOperation(i.Driver(), op, result, float64(time.Since(start).Microseconds())/1000)
}

func (i *instrumented) Put(ctx context.Context, name string, blob []byte) (Take, error) {
	start := time.Now()
	t, err := i.Store.Put(ctx, name, blob)
	i.observe("put", start, err)
	return t, err
}

func (i *instrumented) Get(ctx context.Context, name string) (Take, error) {
	start := time.Now()
	t, err := i.Store.Get(ctx, name)
	i.observe("get", start, err)
	return t, err
}

func (i *instrumented) List(ctx context.Context) ([]Take, error) {
	start := time.Now()
	ts, err := i.Store.List(ctx)
	i.observe("list", start, err)
	return ts, err
}

func (i *instrumented) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, name)
	i.observe("delete", start, err)
	return err
}
