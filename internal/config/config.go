// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/playback"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TickIntervalMS is how often each session driver ticks its engine.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// PlaybackMode is poll or lookahead.
	PlaybackMode string `koanf:"playback_mode"`
	LookaheadMS  int    `koanf:"lookahead_ms"`

	// ThrottleMS is the minimum spacing of stored pointer moves; 0 keeps all.
	ThrottleMS int `koanf:"throttle_ms"`

	MaxEvents    int  `koanf:"max_events"`
	MaxDurationS int  `koanf:"max_duration_s"`
	AutoPlay     bool `koanf:"autoplay"`
	Loop         bool `koanf:"loop"`

	// MaxPasses stops looping playback after that many passes; 0 loops until
	// stopped. MaxLoopS refuses longer looping passes and caps loop regions;
	// 0 removes the limit.
	MaxPasses int `koanf:"max_passes"`
	MaxLoopS  int `koanf:"max_loop_s"`

	// ReferenceBPM is the host tempo at which engine time matches wall time.
	ReferenceBPM float64 `koanf:"reference_bpm"`

	// CommandQueueSize bounds each session's command queue.
	CommandQueueSize int `koanf:"command_queue_size"`

	// RenderLogSize sets how many rendered events each session keeps.
	RenderLogSize int `koanf:"render_log_size"`

	// DedupeSize sets the size of the input batch deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	MaxSessions int `koanf:"max_sessions"`

	// StoreDriver selects the take store: memory, file or redis.
	StoreDriver string `koanf:"store_driver"`
	StoreDir    string `koanf:"store_dir"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`

	// MIDI ports are optional. When set, cmd binds them to a default session.
	MIDIInPort  string `koanf:"midi_in_port"`
	MIDIOutPort string `koanf:"midi_out_port"`
	MIDIChannel int    `koanf:"midi_channel"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		TickIntervalMS:   5,
		PlaybackMode:     "poll",
		LookaheadMS:      50,
		ThrottleMS:       16,
		MaxEvents:        100_000,
		MaxDurationS:     600,
		MaxLoopS:         30,
		ReferenceBPM:     120,
		CommandQueueSize: 256,
		RenderLogSize:    1024,
		DedupeSize:       4096,
		MaxSessions:      64,
		StoreDriver:      repository.DriverMemory,
		StoreDir:         "takes",
		RedisAddr:        "localhost:6379",
		RedisPrefix:      "retake:",
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TickIntervalMS <= 0:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	case c.LookaheadMS < 0, c.ThrottleMS < 0, c.MaxDurationS < 0, c.MaxLoopS < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.MaxPasses < 0:
		return fmt.Errorf("%w: max_passes must not be negative", ErrInvalidConfig)
	case c.ReferenceBPM <= 0:
		return fmt.Errorf("%w: reference_bpm must be positive", ErrInvalidConfig)
	case c.MIDIChannel < 0 || c.MIDIChannel > 15:
		return fmt.Errorf("%w: midi_channel must be within 0..15", ErrInvalidConfig)
	}
	if _, err := playback.ParseMode(c.PlaybackMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.StoreDriver {
	case repository.DriverMemory, repository.DriverRedis:
	case repository.DriverFile:
		if strings.TrimSpace(c.StoreDir) == "" {
			return fmt.Errorf("%w: store_dir is required for the file store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}

func (c *Config) TickInterval() time.Duration { return ms(c.TickIntervalMS) }
func (c *Config) Lookahead() time.Duration    { return ms(c.LookaheadMS) }
func (c *Config) Throttle() time.Duration     { return ms(c.ThrottleMS) }
func (c *Config) MaxDuration() time.Duration  { return time.Duration(c.MaxDurationS) * time.Second }
func (c *Config) MaxLoop() time.Duration      { return time.Duration(c.MaxLoopS) * time.Second }

// Mode returns the parsed playback mode. Call Validate first.
func (c *Config) Mode() playback.Mode {
	m, _ := playback.ParseMode(c.PlaybackMode)
	return m
}

// Store returns the take store settings.
func (c *Config) Store() repository.Settings {
	return repository.Settings{
		Driver:      c.StoreDriver,
		Dir:         c.StoreDir,
		RedisAddr:   c.RedisAddr,
		RedisPrefix: c.RedisPrefix,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
