package playback

import (
	"time"

	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMode selects poll or lookahead scheduling.
func WithMode(m Mode) Option {
	return func(s *Scheduler) {
		s.mode = m
	}
}

// WithTimeline sets the timeline used in lookahead mode.
func WithTimeline(tl *clock.Timeline) Option {
	return func(s *Scheduler) {
		if tl != nil {
			s.timeline = tl
		}
	}
}

// WithEpsilon sets the smallest gap used as the interpolation denominator.
func WithEpsilon(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.epsilon = d
		}
	}
}

// WithReleaseOnStop controls whether Stop emits terminal events for
// anything still held.
func WithReleaseOnStop(release bool) Option {
	return func(s *Scheduler) {
		s.releaseOnStop = release
	}
}

// WithInterpolation toggles virtual moves between stored pointer events.
func WithInterpolation(enabled bool) Option {
	return func(s *Scheduler) {
		s.interpolate = enabled
	}
}

// WithMaxPasses caps the passes a looping playback renders. Zero means no
// cap.
func WithMaxPasses(n int) Option {
	return func(s *Scheduler) {
		s.SetMaxPasses(n)
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
