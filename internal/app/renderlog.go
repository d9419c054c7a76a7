package service

import (
	"sync"
	"time"

	"github.com/okian/retake/internal/domain/model"
	"github.com/okian/retake/internal/domain/types"
	"github.com/okian/retake/pkg/metrics"
)

const defaultRenderLogSize = 1024

// renderLog is a ring of the most recent rendered events. It is written by
// the session driver and read by API handlers.
type renderLog struct {
	mu      sync.Mutex
	entries []types.Render
	next    int
	count   int
	seq     uint64
}

func newRenderLog(size int) *renderLog {
	if size <= 0 {
		size = defaultRenderLogSize
	}
	return &renderLog{entries: make([]types.Render, size)}
}

func (l *renderLog) Render(ev model.Event, at time.Duration) {
	metrics.RecordRender(ev.Kind.String(), ev.Interpolated)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.entries[l.next] = types.Render{
		Seq:   l.seq,
		AtMs:  types.Millis(at),
		Event: types.FromEvent(0, ev),
	}
	l.next = (l.next + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
}

// After returns up to limit entries with a sequence number above after,
// oldest first. Entries already overwritten are skipped.
func (l *renderLog) After(after uint64, limit int) []types.Render {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Render, 0)
	start := (l.next - l.count + len(l.entries)) % len(l.entries)
	for i := 0; i < l.count; i++ {
		r := l.entries[(start+i)%len(l.entries)]
		if r.Seq <= after {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Total is the number of events rendered so far.
func (l *renderLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
