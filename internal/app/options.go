package service

import (
	"time"

	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/playback"
	"github.com/okian/retake/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTickInterval sets how often each session's driver ticks its engine.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithPlaybackMode sets the default playback mode for new sessions.
func WithPlaybackMode(m playback.Mode) Option {
	return func(s *Service) {
		s.mode = m
	}
}

func WithLookahead(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.lookahead = d
		}
	}
}

// WithThrottle sets the minimum spacing of stored pointer moves. Zero keeps
// every sample.
func WithThrottle(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.throttle = d
		}
	}
}

func WithMaxEvents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithMaxDuration caps the length of one take. Zero disables the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.maxDuration = d
		}
	}
}

// WithAutoPlay makes new sessions play every finished take right away.
func WithAutoPlay(on bool) Option {
	return func(s *Service) {
		s.autoPlay = on
	}
}

// WithLoop sets the default loop flag for new sessions.
func WithLoop(on bool) Option {
	return func(s *Service) {
		s.loop = on
	}
}

// WithMaxPasses sets how many passes looping playback renders before it
// stops on its own. Zero loops until stopped.
func WithMaxPasses(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxPasses = n
		}
	}
}

// WithMaxLoop refuses looping passes longer than d. Zero removes the limit.
func WithMaxLoop(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.maxLoop = d
		}
	}
}

// WithReferenceBPM sets the tempo at which one host beat lasts 60/bpm seconds
// of engine time.
func WithReferenceBPM(bpm float64) Option {
	return func(s *Service) {
		if bpm > 0 {
			s.referenceBPM = bpm
		}
	}
}

// WithCommandQueueSize bounds each session's command queue.
func WithCommandQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRenderLogSize sets how many rendered events each session keeps.
func WithRenderLogSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.renderLogSize = size
		}
	}
}

// WithDedupeSize sets the size of the input batch deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithMIDIChannel sets the channel used for MIDI output and SMF export.
func WithMIDIChannel(ch uint8) Option {
	return func(s *Service) {
		s.midiChannel = ch & 0x0f
	}
}

// WithStoreSettings selects the take store opened by Start.
func WithStoreSettings(settings repository.Settings) Option {
	return func(s *Service) {
		s.storeSettings = settings
	}
}

// WithStore uses store instead of opening one from settings. The service
// takes ownership and closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = repository.Instrument(store)
		}
	}
}
