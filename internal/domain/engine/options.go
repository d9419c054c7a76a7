package engine

import (
	"time"

	"github.com/okian/retake/internal/domain/capture"
	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/playback"
	"github.com/okian/retake/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock registers c and makes it the active clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clocks[c.Mode()] = c
			e.clk = c
		}
	}
}

// WithClocks registers clocks UseClock can switch between. The active
// clock is left unchanged unless none was set yet.
func WithClocks(cs ...clock.Clock) Option {
	return func(e *Engine) {
		for _, c := range cs {
			if c == nil {
				continue
			}
			e.clocks[c.Mode()] = c
			if e.clk == nil {
				e.clk = c
			}
		}
	}
}

// WithMode selects poll or lookahead playback.
func WithMode(m playback.Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithLookahead sets how far ahead of the clock lookahead playback fires.
func WithLookahead(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.lookahead = d
		}
	}
}

func WithLoop(loop bool) Option {
	return func(e *Engine) {
		e.loop = loop
	}
}

// WithMaxPasses finishes looping playback after n passes. Zero loops until
// stopped.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxPasses = n
		}
	}
}

// WithMaxLoop refuses looping passes longer than d and caps loop regions
// to it. Zero removes the limit.
func WithMaxLoop(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.maxLoop = d
		}
	}
}

// WithAutoPlay plays every finished take immediately.
func WithAutoPlay(on bool) Option {
	return func(e *Engine) {
		e.autoPlay = on
	}
}

func WithRecorderOptions(opts ...capture.Option) Option {
	return func(e *Engine) {
		e.recorderOpts = append(e.recorderOpts, opts...)
	}
}

// WithReleaseOnStop controls whether stopping playback releases held output.
func WithReleaseOnStop(release bool) Option {
	return func(e *Engine) {
		e.releaseOnStop = release
	}
}

// WithNotify sets the callback that receives notices.
func WithNotify(fn func(Notice)) Option {
	return func(e *Engine) {
		e.notify = fn
	}
}

// WithRejectHook sets a callback run for every rejected transition.
func WithRejectHook(fn func(op Op, from State)) Option {
	return func(e *Engine) {
		e.onReject = fn
	}
}

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
