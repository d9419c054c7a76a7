package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/retake/pkg/logger"
)

// RedisStore keeps each take in a hash {blob, version, saved_at} under
// prefix+"take:"+name, and the set of names under prefix+"takes".
type RedisStore struct {
	client *redis.Client
	prefix string
	now    nowFunc
	logger logger.Logger
}

// NewRedisStore connects to Redis with opts. The connection is checked
// lazily by the first call.
func NewRedisStore(opts *redis.Options, storeOpts ...Option) *RedisStore {
	cfg := newConfig(storeOpts)
	return &RedisStore{
		client: redis.NewClient(opts),
		prefix: cfg.prefix,
		now:    cfg.now,
		logger: cfg.logger,
	}
}

func (s *RedisStore) key(name string) string { return s.prefix + "take:" + name }
func (s *RedisStore) index() string          { return s.prefix + "takes" }

// Ping reports whether Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, name string, blob []byte) (Take, error) {
	if err := checkPut(name, blob); err != nil {
		return Take{}, err
	}
	key := s.key(name)
	saved := s.now().UTC()
	var version int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.HGet(ctx, key, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		version = prev + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"blob", blob,
				"version", version,
				"saved_at", saved.Format(time.RFC3339Nano),
			)
			pipe.SAdd(ctx, s.index(), name)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return Take{}, fmt.Errorf("redis put %s: %w", name, err)
	}
	return Take{Name: name, Blob: append([]byte(nil), blob...), Version: version, SavedAt: saved}, nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (Take, error) {
	res, err := s.client.HGetAll(ctx, s.key(name)).Result()
	if err != nil {
		return Take{}, fmt.Errorf("redis get %s: %w", name, err)
	}
	if len(res) == 0 {
		return Take{}, ErrNotFound
	}
	return s.decode(name, res)
}

func (s *RedisStore) decode(name string, fields map[string]string) (Take, error) {
	t := Take{Name: name, Blob: []byte(fields["blob"])}
	if v := fields["version"]; v != "" {
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Take{}, fmt.Errorf("redis take %s: version %q: %w", name, v, err)
		}
		t.Version = version
	}
	if at := fields["saved_at"]; at != "" {
		saved, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			s.logger.Warn(context.Background(), "unreadable saved_at", logger.String("take", name), logger.Error(err))
		}
		t.SavedAt = saved
	}
	return t, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Take, error) {
	names, err := s.client.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	sort.Strings(names)

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGetAll(ctx, s.key(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	out := make([]Take, 0, len(names))
	for i, name := range names {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		t, err := s.decode(name, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, s.key(name))
		pipe.SRem(ctx, s.index(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", name, err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Driver() string { return DriverRedis }
func (s *RedisStore) Close() error   { return s.client.Close() }
