package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		So(Init(), ShouldBeNil)
		defer func() { _ = Sync() }()

		Convey("Then Get and Named return usable loggers", func() {
			So(Get(), ShouldNotBeNil)
			So(Named("engine"), ShouldNotBeNil)
			So(func() { Get().Info(context.Background(), "hello", String("k", "v")) }, ShouldNotPanic)
		})
	})
}

func TestStandaloneLogger(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		l := New(&buf, slog.LevelInfo)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			l.Named("capture").Info(ctx, "take finalized",
				Int("events", 3),
				Duration("duration", 100*time.Millisecond),
				Bool("synthetic", true),
				Error(errors.New("boom")),
			)
			out := buf.String()

			Convey("Then the record carries message, group and source", func() {
				So(out, ShouldContainSubstring, "take finalized")
				So(out, ShouldContainSubstring, "capture.events=3")
				So(out, ShouldContainSubstring, "capture.synthetic=true")
				So(out, ShouldContainSubstring, "source=")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the level", func() {
			l.Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestNop(t *testing.T) {
	Convey("Nop accepts every call without output", t, func() {
		l := Nop()
		So(func() {
			l.Info(context.Background(), "x")
			l.Warn(context.Background(), "x")
			l.Named("y").Debug(context.Background(), "z")
		}, ShouldNotPanic)
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given textual levels", t, func() {
		for in, want := range map[string]slog.Level{
			"debug":   slog.LevelDebug,
			"":        slog.LevelInfo,
			"INFO":    slog.LevelInfo,
			"warning": slog.LevelWarn,
			" error ": slog.LevelError,
		} {
			lvl, err := ParseLevel(in)
			So(err, ShouldBeNil)
			So(lvl, ShouldEqual, want)
		}

		So(SetLevelString("verbose"), ShouldNotBeNil)
		So(SetLevelString("warn"), ShouldBeNil)
		So(levelVar.Level(), ShouldEqual, slog.LevelWarn)
		SetLevel(slog.LevelInfo)
	})
}
