package repository

import (
	"time"

	"github.com/okian/retake/pkg/logger"
)

type nowFunc func() time.Time

type config struct {
	now    nowFunc
	prefix string
	logger logger.Logger
}

func newConfig(opts []Option) config {
	cfg := config{now: time.Now, prefix: "retake:", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Store.
type Option func(*config)

// WithNow overrides the time source used for SavedAt.
func WithNow(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPrefix sets the key prefix of the Redis store.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
