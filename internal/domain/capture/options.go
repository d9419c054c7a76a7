package capture

import (
	"time"

	"github.com/okian/retake/pkg/logger"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithThrottle sets the minimum spacing between stored continuous samples
// of the same kind. Zero stores every sample.
func WithThrottle(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.throttle = d
		}
	}
}

// WithMaxEvents caps how many events one take may store.
func WithMaxEvents(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxEvents = n
		}
	}
}

// WithMaxDuration caps the offset of stored samples. Zero disables the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(r *Recorder) {
		if d >= 0 {
			r.maxDuration = d
		}
	}
}

// WithLogger sets the logger used for cap warnings and take summaries.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}
