package worker

import (
	"time"

	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/pkg/logger"
)

// Option configures a Driver.
type Option func(*Driver)

// WithName names the driver in logs.
func WithName(name string) Option {
	return func(d *Driver) {
		if name != "" {
			d.name = name
		}
	}
}

// WithInterval sets the tick period.
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithResultHook runs fn on the driver goroutine after every queued command.
func WithResultHook(fn func(engine.Command, engine.Result)) Option {
	return func(d *Driver) {
		d.onResult = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}
