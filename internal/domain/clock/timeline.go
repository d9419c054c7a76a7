package clock

import (
	"container/heap"
	"time"
)

// Timeline is the scheduling primitive used by lookahead playback. Entries
// fire only from Advance, on the goroutine that drives the engine, in
// (time, submission) order. It is not safe for concurrent use.
type Timeline struct {
	horizon time.Duration
	queue   entryQueue
	seq     uint64
}

// Handle identifies one scheduled entry.
type Handle struct {
	e  *entry
	tl *Timeline
}

type entry struct {
	at    time.Duration
	seq   uint64
	fn    func(at time.Duration)
	index int
	done  bool
}

// NewTimeline returns a timeline that fires entries up to horizon early.
// Time-stamped sinks receive the nominal time with each call.
func NewTimeline(horizon time.Duration) *Timeline {
	if horizon < 0 {
		horizon = 0
	}
	return &Timeline{horizon: horizon}
}

// Horizon returns how far ahead of now entries fire.
func (t *Timeline) Horizon() time.Duration { return t.horizon }

// At schedules fn to run at the given clock time.
func (t *Timeline) At(at time.Duration, fn func(at time.Duration)) *Handle {
	t.seq++
	e := &entry{at: at, seq: t.seq, fn: fn}
	heap.Push(&t.queue, e)
	return &Handle{e: e, tl: t}
}

// Cancel revokes the entry. It reports false when the entry already fired
// or was cancelled before.
func (h *Handle) Cancel() bool {
	if h == nil || h.e.done {
		return false
	}
	h.e.done = true
	if h.e.index >= 0 {
		heap.Remove(&h.tl.queue, h.e.index)
	}
	return true
}

// Pending reports whether the entry is still waiting.
func (h *Handle) Pending() bool { return h != nil && !h.e.done }

// When returns the nominal fire time.
func (h *Handle) When() time.Duration { return h.e.at }

// Advance fires every entry due at now plus the horizon and returns how
// many fired. Entries scheduled by a callback fire in the same call when
// they are already due.
func (t *Timeline) Advance(now time.Duration) int {
	limit := now + t.horizon
	fired := 0
	for t.queue.Len() > 0 {
		next := t.queue[0]
		if next.at > limit {
			break
		}
		heap.Pop(&t.queue)
		next.done = true
		fired++
		next.fn(next.at)
	}
	return fired
}

// Pending returns the number of entries waiting to fire.
func (t *Timeline) Pending() int { return t.queue.Len() }

// CancelAll revokes every pending entry.
func (t *Timeline) CancelAll() {
	for _, e := range t.queue {
		e.done = true
		e.index = -1
	}
	t.queue = t.queue[:0]
}

type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
