// Package clock provides the time sources engines are driven against and
// the cooperative timeline used for lookahead scheduling.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// Mode identifies a clock variant.
type Mode uint8

const (
	ModeInternal Mode = iota
	ModeHost
)

func (m Mode) String() string {
	if m == ModeHost {
		return "host"
	}
	return "internal"
}

// ParseMode maps "internal" or "host" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "internal":
		return ModeInternal, nil
	case "host", "host-synced", "hostsynced":
		return ModeHost, nil
	default:
		return ModeInternal, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Clock is a monotonic time source. Now never decreases for one clock.
type Clock interface {
	Now() time.Duration
	Mode() Mode
	// Epoch increments whenever the clock absorbed a discontinuity.
	// Schedulers compare it between ticks to know when to re-anchor.
	Epoch() uint64
	Snapshot() Snapshot
}

// Snapshot is the ephemeral view of a clock for one tick. It is never stored.
type Snapshot struct {
	Now        time.Duration
	BPM        float64
	HostSynced bool
}

// Internal is a free-running wall clock.
type Internal struct {
	origin time.Time
	now    func() time.Time
}

// NewInternal returns a clock whose zero is the moment of construction.
func NewInternal() *Internal {
	return NewInternalFrom(time.Now)
}

// NewInternalFrom builds an Internal clock over a custom time function.
func NewInternalFrom(now func() time.Time) *Internal {
	return &Internal{origin: now(), now: now}
}

// Now returns the time elapsed since construction. time.Time carries a
// monotonic reading, so wall clock adjustments do not move it backwards.
func (c *Internal) Now() time.Duration {
	d := c.now().Sub(c.origin)
	if d < 0 {
		return 0
	}
	return d
}

func (c *Internal) Mode() Mode    { return ModeInternal }
func (c *Internal) Epoch() uint64 { return 0 }

func (c *Internal) Snapshot() Snapshot {
	return Snapshot{Now: c.Now()}
}
