package takedemo

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/okian/retake/pkg/logger"
)

// SetupLogging initializes the global logger on stdout, and additionally
// on logFile when one is given. It returns a closer for the log file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	if err := logger.InitWriter(w); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		logger.SetLevel(slog.LevelDebug)
	}
	return closer, nil
}

// ShowHelp prints usage information for the take demo.
func ShowHelp() {
	os.Stdout.WriteString(`Retake Take Demo
================

Records a generated take through the HTTP API, plays it back and
verifies the rendered event stream.

Usage:
  go run ./cmd/take-demo [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -kind string
        Take to generate: gesture or phrase (default "gesture")
  -samples int
        Moves in a gesture, notes in a phrase (default 24)
  -step float
        Milliseconds between samples (default 20)
  -batch int
        Samples posted per request (default 4)
  -loop
        Play the take in a loop
  -passes int
        Passes to wait for when looping (default 1)
  -save string
        Save the take under this name
  -timeout duration
        HTTP request timeout (default 10s)
  -log string
        Also write the log to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Record and replay a pointer gesture
  go run ./cmd/take-demo

  # Record a phrase, loop it three times and keep it
  go run ./cmd/take-demo -kind phrase -samples 8 -step 120 -loop -passes 3 -save riff
`)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
