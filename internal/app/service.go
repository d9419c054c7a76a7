// Package service hosts record/playback sessions and the take store behind
// the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/adapters/mq/worker"
	"github.com/okian/retake/internal/adapters/repository"
	"github.com/okian/retake/internal/domain/capture"
	"github.com/okian/retake/internal/domain/clock"
	"github.com/okian/retake/internal/domain/dedupe"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/internal/domain/playback"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

// Service implements the API dependencies: it owns every session, the
// input deduper and the take store.
type Service struct {
	mu sync.RWMutex

	sessions map[string]*session
	store    repository.Store
	deduper  dedupe.Deduper

	// Session defaults
	tick          time.Duration
	mode          playback.Mode
	lookahead     time.Duration
	throttle      time.Duration
	maxEvents     int
	maxDuration   time.Duration
	autoPlay      bool
	loop          bool
	maxPasses     int
	maxLoop       time.Duration
	referenceBPM  float64
	queueSize     int
	renderLogSize int
	dedupeSize    int
	maxSessions   int
	midiChannel   uint8
	storeSettings repository.Settings

	// State
	started   bool
	startedAt time.Time
	runCtx    context.Context
	cancel    context.CancelFunc

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessions:      make(map[string]*session),
		tick:          worker.DefaultInterval,
		lookahead:     50 * time.Millisecond,
		throttle:      16 * time.Millisecond,
		maxEvents:     100_000,
		maxDuration:   10 * time.Minute,
		referenceBPM:  clock.DefaultReferenceBPM,
		queueSize:     256,
		renderLogSize: defaultRenderLogSize,
		dedupeSize:    dedupe.DefaultMaxSize,
		maxSessions:   64,
		logger:        nil, // replaced when the service starts
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the take store. Sessions created afterwards run until Stop
// even if ctx is cancelled earlier.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.store == nil {
		store, err := repository.Open(ctx, s.storeSettings, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return fmt.Errorf("open take store: %w", err)
		}
		s.store = store
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.startedAt = time.Now()
	s.started = true

	s.logger.Info(ctx, "service started",
		logger.String("store", s.store.Driver()),
		logger.String("mode", s.mode.String()),
		logger.Duration("tick", s.tick),
		logger.Int("maxSessions", s.maxSessions),
	)
	return nil
}

// Stop shuts every session down and closes the take store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id, sess := range s.sessions {
		if err := sess.close(ctx); err != nil {
			s.logger.Warn(ctx, "session shutdown failed", logger.String("session", id), logger.Error(err))
		}
		delete(s.sessions, id)
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing take store failed", logger.Error(err))
	}
	s.store = nil
	s.started = false
	metrics.UpdateActiveSessions(0)
	s.logger.Info(ctx, "service stopped")
}

// CreateSession starts a new session with its own engine and driver.
func (s *Service) CreateSession(ctx context.Context, opts types.SessionOptions) (types.Session, error) {
	mode := s.mode
	if opts.Mode != "" {
		m, err := playback.ParseMode(opts.Mode)
		if err != nil {
			return types.Session{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		mode = m
	}
	clockMode := clock.ModeInternal
	if opts.Clock != "" {
		m, err := clock.ParseMode(opts.Clock)
		if err != nil {
			return types.Session{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		clockMode = m
	}
	loop, autoPlay := s.loop, s.autoPlay
	if opts.Loop != nil {
		loop = *opts.Loop
	}
	if opts.AutoPlay != nil {
		autoPlay = *opts.AutoPlay
	}
	maxPasses := s.maxPasses
	if opts.MaxPasses != nil {
		if *opts.MaxPasses < 0 {
			return types.Session{}, fmt.Errorf("%w: max_passes must not be negative", ErrInvalidArgument)
		}
		maxPasses = *opts.MaxPasses
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return types.Session{}, ErrNotStarted
	}
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return types.Session{}, fmt.Errorf("%w: limit is %d", ErrTooManySessions, s.maxSessions)
	}

	id := uuid.NewString()
	log := s.logger.Named("session")
	sess := &session{
		id:       id,
		created:  time.Now(),
		internal: clock.NewInternal(),
		host:     clock.NewHost(s.referenceBPM),
		queue:    queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize)),
		renders:  newRenderLog(s.renderLogSize),
		output:   &midiOutput{},
		logger:   log,
	}
	active := clock.Clock(sess.internal)
	if clockMode == clock.ModeHost {
		active = sess.host
	}
	sess.engine = engine.New(playback.Fanout{sess.renders, sess.output},
		engine.WithClocks(sess.internal, sess.host),
		engine.WithClock(active),
		engine.WithMode(mode),
		engine.WithLookahead(s.lookahead),
		engine.WithLoop(loop),
		engine.WithMaxPasses(maxPasses),
		engine.WithMaxLoop(s.maxLoop),
		engine.WithAutoPlay(autoPlay),
		engine.WithRecorderOptions(
			capture.WithThrottle(s.throttle),
			capture.WithMaxEvents(s.maxEvents),
			capture.WithMaxDuration(s.maxDuration),
		),
		engine.WithNotify(sess.notice),
		engine.WithRejectHook(func(op engine.Op, from engine.State) {
			metrics.RecordRejectedTransition(op.String(), from.String())
		}),
		engine.WithLogger(log),
	)
	sess.clockMode.Store(uint32(clockMode))
	sess.driver = worker.NewDriver(sess.engine, sess.queue,
		worker.WithName("session-"+id[:8]),
		worker.WithInterval(s.tick),
		worker.WithResultHook(sess.result),
		worker.WithLogger(log),
	)
	go sess.driver.Run(s.runCtx)

	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.UpdateActiveSessions(count)
	s.logger.Info(ctx, "session created",
		logger.String("session", id),
		logger.String("mode", mode.String()),
		logger.String("clock", clockMode.String()),
		logger.Bool("loop", loop),
	)
	return s.view(ctx, sess)
}

// Sessions lists every session, oldest first.
func (s *Service) Sessions(ctx context.Context) ([]types.Session, error) {
	s.mu.RLock()
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].created.Before(list[j].created) })
	out := make([]types.Session, 0, len(list))
	for _, sess := range list {
		v, err := s.view(ctx, sess)
		if errors.Is(err, queue.ErrClosed) || errors.Is(err, queue.ErrStopped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Session reads one session.
func (s *Service) Session(ctx context.Context, id string) (types.Session, error) {
	sess, err := s.session(id)
	if err != nil {
		return types.Session{}, err
	}
	return s.view(ctx, sess)
}

// DeleteSession stops a session's playback and discards it.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	metrics.UpdateActiveSessions(count)
	if err := sess.close(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "session deleted", logger.String("session", id))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	stats, store, capacity := s.sessionStats()
	if store == nil {
		return stats
	}

	// The store may be remote; it is listed without holding the service lock.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if takes, err := store.List(ctx); err == nil {
		stats.Takes = len(takes)
	}

	metrics.UpdateActiveSessions(stats.Sessions)
	metrics.UpdateQueueSize(stats.QueuedCmds)
	metrics.UpdateQueueCapacity(capacity)
	if capacity > 0 {
		metrics.UpdateQueueUtilization(float64(stats.QueuedCmds) / float64(capacity))
	}
	return stats
}

// sessionStats copies the per-session counters under the read lock. The
// returned store is nil until the service is started.
func (s *Service) sessionStats() (types.Stats, repository.Store, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{Sessions: len(s.sessions)}
	if !s.started {
		return stats, nil, 0
	}
	stats.UptimeSeconds = time.Since(s.startedAt).Seconds()
	stats.StoreDriver = s.store.Driver()
	stats.DedupeEntries = s.deduper.Size()

	capacity := 0
	for _, sess := range s.sessions {
		switch sess.State() {
		case engine.StatePlaying:
			stats.Playing++
		case engine.StateRecording:
			stats.Recording++
		}
		stats.QueuedCmds += sess.queue.Len()
		capacity += sess.queue.Cap()
		stats.Renders += sess.renders.Total()
	}
	return stats, s.store, capacity
}

func (s *Service) session(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *Service) takeStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) view(ctx context.Context, sess *session) (types.Session, error) {
	res, err := sess.call(ctx, engine.Command{Op: engine.OpView})
	if err != nil {
		return types.Session{}, err
	}
	return sess.describe(res.View), nil
}
