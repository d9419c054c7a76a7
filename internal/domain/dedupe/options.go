package dedupe

type config struct {
	maxSize int
}

// Option configures NewInMemoryDeduper.
type Option func(*config)

// WithMaxSize bounds how many keys are remembered. Values <= 0 keep
// DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) {
		c.maxSize = n
	}
}
