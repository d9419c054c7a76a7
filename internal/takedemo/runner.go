package takedemo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
)

var errTimeout = errors.New("timed out waiting for session")

// Run records a generated take through the HTTP API, plays it back and
// verifies what the engine rendered.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting take demo",
		logger.String("baseURL", config.BaseURL),
		logger.String("kind", config.Kind),
		logger.Int("samples", config.Samples),
		logger.Float64("stepMs", config.StepMs),
		logger.Int("batchSize", config.BatchSize),
		logger.Bool("loop", config.Loop),
		logger.String("timeout", config.Timeout.String()))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate batches
	batches, err := Generate(config)
	if err != nil {
		return fmt.Errorf("take generation failed: %w", err)
	}

	// Step 3: Create and arm a session
	// A looping session stops itself after the requested passes.
	passes := max(config.Passes, 1)
	opts := types.SessionOptions{}
	if config.Loop {
		opts.MaxPasses = &passes
	}
	sess, err := client.CreateSession(ctx, opts)
	if err != nil {
		return fmt.Errorf("session creation failed: %w", err)
	}
	stats.SessionID = sess.ID
	defer func() {
		if err := client.DeleteSession(context.WithoutCancel(ctx), sess.ID); err != nil {
			log.Warn(ctx, "failed to delete session", logger.String("session", sess.ID), logger.Error(err))
		}
	}()
	if _, err := client.Control(ctx, sess.ID, "arm"); err != nil {
		return fmt.Errorf("arm failed: %w", err)
	}

	// Step 4: Post the take in real time
	if err := submitBatches(ctx, client, config, sess.ID, batches, stats); err != nil {
		return fmt.Errorf("batch submission failed: %w", err)
	}

	// Step 5: Finish the take; a gesture ends itself on up
	if config.Kind == KindPhrase {
		if _, err := client.Control(ctx, sess.ID, "stop"); err != nil {
			return fmt.Errorf("stop failed: %w", err)
		}
	}
	sess, err = waitFor(ctx, client, sess.ID, SettleDeadline, func(s types.Session) bool {
		return s.HasRecording && s.State == "idle"
	})
	if err != nil {
		return fmt.Errorf("take was not finalized: %w", err)
	}
	stats.RecordedEvents = sess.Events
	stats.RecordedMs = sess.DurationMs
	baseline := sess.Renders

	// Step 6: Play it back
	if _, err := client.Play(ctx, sess.ID, config.Loop); err != nil {
		return fmt.Errorf("play failed: %w", err)
	}
	if !config.Loop {
		passes = 1
	}
	deadline := SettleDeadline + time.Duration(float64(passes)*sess.DurationMs*float64(time.Millisecond))
	sess, err = waitFor(ctx, client, sess.ID, deadline, func(s types.Session) bool {
		return s.State == "idle"
	})
	if err != nil {
		return fmt.Errorf("playback did not complete: %w", err)
	}
	if sess.Passes != passes {
		return fmt.Errorf("%w: played %d passes, want %d", errVerify, sess.Passes, passes)
	}
	stats.Passes = passes

	// Step 7: Read and verify the renders
	renders, err := collectRenders(ctx, client, sess.ID, baseline)
	if err != nil {
		return fmt.Errorf("render retrieval failed: %w", err)
	}
	stats.Renders = len(renders)
	if err := verifyRenders(renders, config.Kind, stats.RecordedEvents, passes); err != nil {
		return err
	}
	log.Info(ctx, "render stream verified", logger.Int("renders", len(renders)))

	// Step 8: Keep the take
	if config.TakeName != "" {
		take, err := client.SaveTake(ctx, sess.ID, config.TakeName)
		if err != nil {
			return fmt.Errorf("saving take failed: %w", err)
		}
		log.Info(ctx, "take saved",
			logger.String("name", take.Name),
			logger.String("family", take.Family),
			logger.Int("events", take.Events))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	log.Info(ctx, "demo completed successfully")
	return nil
}

// submitBatches posts each batch at its due time. The first batch is sent
// twice; the second answer must be a duplicate.
func submitBatches(ctx context.Context, client *HTTPClient, config *Config, id string, batches []Batch, stats *Stats) error {
	origin := time.Now()
	for i, b := range batches {
		due := origin.Add(time.Duration(b.AtMs * float64(time.Millisecond)))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		res, err := client.PostBatch(ctx, id, b)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		stats.BatchesSent++
		stats.SamplesSent += len(b.Samples)
		for _, outcome := range res.Outcomes {
			if outcome == "ignored" {
				stats.Ignored++
			}
		}
		if config.Verbose {
			logger.Get().Debug(ctx, "batch posted",
				logger.Int("batch", i),
				logger.String("batchID", b.BatchID),
				logger.String("state", res.State))
		}
		if i == 0 {
			again, err := client.PostBatch(ctx, id, b)
			if err != nil {
				return fmt.Errorf("batch replay: %w", err)
			}
			if !again.Duplicate {
				return fmt.Errorf("%w: replayed batch %s was applied twice", errVerify, b.BatchID)
			}
			stats.Duplicates++
		}
	}
	return nil
}

// waitFor polls the session until done accepts it or the deadline passes.
func waitFor(ctx context.Context, client *HTTPClient, id string, deadline time.Duration, done func(types.Session) bool) (types.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		s, err := client.Session(ctx, id)
		if err == nil && done(s) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return s, err
			}
			return s, fmt.Errorf("%w: state %s after %s", errTimeout, s.State, deadline)
		case <-ticker.C:
		}
	}
}

// collectRenders pages through the render log after seq.
func collectRenders(ctx context.Context, client *HTTPClient, id string, after uint64) ([]types.Render, error) {
	var out []types.Render
	for {
		page, err := client.Renders(ctx, id, after, RenderPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < RenderPageSize {
			return out, nil
		}
		after = page[len(page)-1].Seq
	}
}

// displayFinalStats logs the run statistics.
func displayFinalStats(stats *Stats) {
	logger.Get().Info(context.Background(), "final statistics",
		logger.String("session", stats.SessionID),
		logger.Int("batchesSent", stats.BatchesSent),
		logger.Int("samplesSent", stats.SamplesSent),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("ignored", stats.Ignored),
		logger.Int("recordedEvents", stats.RecordedEvents),
		logger.Float64("recordedMs", stats.RecordedMs),
		logger.Int("renders", stats.Renders),
		logger.Int("passes", stats.Passes),
		logger.String("duration", stats.Duration.String()))
}
