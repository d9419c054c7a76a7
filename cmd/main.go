package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/okian/retake/internal/adapters/http/api"
	"github.com/okian/retake/internal/adapters/http/swagger"
	"github.com/okian/retake/internal/adapters/midi"
	app "github.com/okian/retake/internal/app"
	"github.com/okian/retake/internal/config"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Only the custom registry is served; drop the default collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	if err := bindMIDI(ctx, svc, cfg, log); err != nil {
		log.Error(ctx, "midi setup failed", logger.Error(err))
		return
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := newServer(ctx, cfg, svc)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// newService maps the configuration onto service options.
func newService(cfg *config.Config, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithTickInterval(cfg.TickInterval()),
		app.WithPlaybackMode(cfg.Mode()),
		app.WithLookahead(cfg.Lookahead()),
		app.WithThrottle(cfg.Throttle()),
		app.WithMaxEvents(cfg.MaxEvents),
		app.WithMaxDuration(cfg.MaxDuration()),
		app.WithAutoPlay(cfg.AutoPlay),
		app.WithLoop(cfg.Loop),
		app.WithMaxPasses(cfg.MaxPasses),
		app.WithMaxLoop(cfg.MaxLoop()),
		app.WithReferenceBPM(cfg.ReferenceBPM),
		app.WithCommandQueueSize(cfg.CommandQueueSize),
		app.WithRenderLogSize(cfg.RenderLogSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxSessions(cfg.MaxSessions),
		app.WithMIDIChannel(uint8(cfg.MIDIChannel)),
		app.WithStoreSettings(cfg.Store()),
	)
}

// newServer registers the API and its docs on a fresh mux.
func newServer(ctx context.Context, cfg *config.Config, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	swagger.Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// bindMIDI creates a default session wired to the configured MIDI ports.
// Nothing happens when no port is configured.
func bindMIDI(ctx context.Context, svc *app.Service, cfg *config.Config, log logger.Logger) error {
	if cfg.MIDIInPort == "" && cfg.MIDIOutPort == "" {
		return nil
	}
	ins, outs := midi.Ports()
	log.Info(ctx, "midi ports", logger.Any("in", ins), logger.Any("out", outs))

	var (
		in  drivers.In
		out midi.SendFunc
		err error
	)
	if cfg.MIDIInPort != "" {
		if in, err = midi.OpenIn(cfg.MIDIInPort); err != nil {
			return err
		}
	}
	if cfg.MIDIOutPort != "" {
		if out, err = midi.OpenOut(cfg.MIDIOutPort); err != nil {
			return err
		}
	}

	s, err := svc.CreateSession(ctx, types.SessionOptions{})
	if err != nil {
		return fmt.Errorf("create midi session: %w", err)
	}
	if err := svc.AttachMIDI(ctx, s.ID, in, out); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		midi.CloseDriver()
	}()
	log.Info(ctx, "midi bound to session", logger.String("session", s.ID))
	return nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes session and queue gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the gauges as a side effect.
			svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
