package midi

import "github.com/okian/retake/pkg/logger"

type config struct {
	channel uint8
	anyChan bool
	logger  logger.Logger
}

func newConfig(opts []Option) config {
	cfg := config{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Sink or a Listener.
type Option func(*config)

// WithChannel selects the MIDI channel, 0..15. A Listener given a channel
// drops messages on other channels.
func WithChannel(ch uint8) Option {
	return func(c *config) {
		c.channel = ch & 0x0f
		c.anyChan = false
	}
}

// WithAnyChannel makes a Listener accept every channel.
func WithAnyChannel() Option {
	return func(c *config) {
		c.anyChan = true
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
