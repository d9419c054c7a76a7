// Package dedupe remembers which input batches a session has already
// applied, so a retried POST does not feed the same samples twice.
package dedupe

import (
	"context"
	"sync"
)

// DefaultMaxSize is how many batch keys a Deduper keeps by default.
const DefaultMaxSize = 4096

// Deduper records batch keys for at-most-once application.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records
	// it if not, in one step.
	SeenAndRecord(ctx context.Context, key string) bool

	// Forget drops key so the batch can be retried, for example after the
	// session queue refused it.
	Forget(ctx context.Context, key string)

	Size() int
}

// Key scopes a client batch id to one session.
func Key(session, batch string) string {
	return session + "/" + batch
}

// ring is a bounded Deduper. Once full, keys are overwritten in ring order,
// so the oldest key goes first unless Forget punched holes in the ring.
type ring struct {
	mu    sync.Mutex
	seen  map[string]int
	slots []string
	next  int
	count int
}

// NewInMemoryDeduper returns a bounded in-memory Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ring{}
	cfg := config{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSize <= 0 {
		cfg.maxSize = DefaultMaxSize
	}
	d.seen = make(map[string]int, cfg.maxSize)
	d.slots = make([]string, cfg.maxSize)
	return d
}

func (d *ring) SeenAndRecord(_ context.Context, key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.count == len(d.slots) {
		d.evict()
	}
	// skip slots freed by Forget
	for d.slots[d.next] != "" {
		d.next = (d.next + 1) % len(d.slots)
	}
	d.slots[d.next] = key
	d.seen[key] = d.next
	d.next = (d.next + 1) % len(d.slots)
	d.count++
	return false
}

func (d *ring) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	d.slots[slot] = ""
	d.count--
}

// evict frees the slot under the write cursor. The caller holds d.mu and
// the ring is full.
func (d *ring) evict() {
	old := d.slots[d.next]
	delete(d.seen, old)
	d.slots[d.next] = ""
	d.count--
}

func (d *ring) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
