// Package worker runs the goroutine that owns one engine. It interleaves
// queued commands with periodic ticks so the engine only ever sees one
// caller.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/retake/internal/adapters/mq/queue"
	"github.com/okian/retake/internal/domain/engine"
	"github.com/okian/retake/pkg/logger"
	"github.com/okian/retake/pkg/metrics"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 5 * time.Millisecond

// Engine is what a Driver drives.
type Engine interface {
	Dispatch(cmd engine.Command) engine.Result
}

// Queue is where a Driver receives commands from.
type Queue interface {
	Dequeue() <-chan queue.Request
}

// Driver is the single goroutine allowed to call into its Engine.
type Driver struct {
	engine   Engine
	queue    Queue
	interval time.Duration
	name     string
	onResult func(engine.Command, engine.Result)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewDriver returns a Driver for e fed by q. Call Run to start it.
func NewDriver(e Engine, q Queue, opts ...Option) *Driver {
	d := &Driver{
		engine:   e,
		queue:    q,
		interval: DefaultInterval,
		name:     "driver",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the engine until ctx is cancelled, Shutdown is called or the
// queue is closed. On the way out it stops the engine so nothing stays held
// and answers every queued request with queue.ErrStopped.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.done)
	defer d.exit()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	requests := d.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			d.handle(req)
		case <-ticker.C:
			d.tick()
		}
	}
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} { return d.done }

// Shutdown stops Run and waits for it to return.
func (d *Driver) Shutdown(ctx context.Context) error {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "driver shutdown timed out", logger.String("driver", d.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (d *Driver) handle(req queue.Request) {
	metrics.RecordQueueDequeue()
	metrics.RecordSessionCommand(req.Cmd.Op.String())

	res := d.engine.Dispatch(req.Cmd)
	if req.Cmd.Op == engine.OpInput {
		for _, out := range res.Outcomes {
			metrics.RecordSample(out.String())
		}
	}
	if res.Err != nil {
		d.logger.Debug(context.Background(), "command refused",
			logger.String("driver", d.name),
			logger.String("op", req.Cmd.Op.String()),
			logger.Error(res.Err),
		)
	}
	if d.onResult != nil {
		d.onResult(req.Cmd, res)
	}
	if req.Reply != nil {
		req.Reply <- res
	}
}

func (d *Driver) tick() {
	start := time.Now()
	d.engine.Dispatch(engine.Command{Op: engine.OpTick})
	metrics.RecordTickLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func (d *Driver) exit() {
	d.engine.Dispatch(engine.Command{Op: engine.OpStop})
	for {
		select {
		case req, ok := <-d.queue.Dequeue():
			if !ok {
				return
			}
			if req.Reply != nil {
				req.Reply <- engine.Result{Err: queue.ErrStopped}
			}
		default:
			return
		}
	}
}
