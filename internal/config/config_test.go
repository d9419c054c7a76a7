package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/retake/internal/config"
	"github.com/okian/retake/internal/domain/playback"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.TickInterval(), convey.ShouldEqual, 5*time.Millisecond)
			convey.So(cfg.Throttle(), convey.ShouldEqual, 16*time.Millisecond)
			convey.So(cfg.Lookahead(), convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.MaxDuration(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.MaxLoop(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.MaxPasses, convey.ShouldEqual, 0)
			convey.So(cfg.Mode(), convey.ShouldEqual, playback.ModePoll)
			convey.So(cfg.AutoPlay, convey.ShouldBeFalse)
			convey.So(cfg.Store().Driver, convey.ShouldEqual, "memory")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one invalid field", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = " " },
			"zero tick":         func(c *config.Config) { c.TickIntervalMS = 0 },
			"negative throttle": func(c *config.Config) { c.ThrottleMS = -1 },
			"zero bpm":          func(c *config.Config) { c.ReferenceBPM = 0 },
			"negative passes":   func(c *config.Config) { c.MaxPasses = -1 },
			"negative loop cap": func(c *config.Config) { c.MaxLoopS = -1 },
			"channel 16":        func(c *config.Config) { c.MIDIChannel = 16 },
			"unknown mode":      func(c *config.Config) { c.PlaybackMode = "rewind" },
			"unknown driver":    func(c *config.Config) { c.StoreDriver = "tape" },
			"file without dir":  func(c *config.Config) { c.StoreDriver = "file"; c.StoreDir = "" },
		}

		for name, mutate := range cases {
			cfg := config.New(context.Background())
			mutate(cfg)

			convey.Convey("Then validation fails for "+name, func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
