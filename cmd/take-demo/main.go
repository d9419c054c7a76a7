package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/retake/internal/takedemo"
)

// defaultRunTimeout bounds the whole demo.
const defaultRunTimeout = 2 * time.Minute

func main() {
	defaults := takedemo.DefaultConfig()
	var (
		baseURL   = flag.String("url", defaults.BaseURL, "Base URL of the service")
		kind      = flag.String("kind", defaults.Kind, "Take to generate: gesture or phrase")
		samples   = flag.Int("samples", defaults.Samples, "Moves in a gesture, notes in a phrase")
		step      = flag.Float64("step", defaults.StepMs, "Milliseconds between samples")
		batchSize = flag.Int("batch", defaults.BatchSize, "Samples posted per request")
		loop      = flag.Bool("loop", false, "Play the take in a loop")
		passes    = flag.Int("passes", defaults.Passes, "Passes to wait for when looping")
		save      = flag.String("save", "", "Save the take under this name")
		timeout   = flag.Duration("timeout", defaults.Timeout, "HTTP request timeout")
		logFile   = flag.String("log", "", "Also write the log to this file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		takedemo.ShowHelp()
		return
	}

	closer, err := takedemo.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &takedemo.Config{
		BaseURL:   *baseURL,
		Kind:      *kind,
		Samples:   *samples,
		StepMs:    *step,
		BatchSize: *batchSize,
		Loop:      *loop,
		Passes:    *passes,
		TakeName:  *save,
		Timeout:   *timeout,
		LogFile:   *logFile,
		Verbose:   *verbose,
	}

	if err := takedemo.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Demo failed: " + err.Error() + "\n")
		closer.Close()
		os.Exit(1)
	}
}
