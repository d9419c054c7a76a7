package clock

import (
	"fmt"
	"sync"
	"time"
)

// DefaultReferenceBPM is the tempo at which one host beat equals 500ms of
// engine time.
const DefaultReferenceBPM = 120.0

// Host derives engine time from a host-provided beat position. One beat
// advances the clock by 60/referenceBPM seconds, so when the host speeds
// up, engine time runs faster and playback follows the tempo.
//
// A backward beat position is a discontinuity. Now holds its value, the
// epoch increments and the new beat position becomes the baseline.
type Host struct {
	mu sync.Mutex

	referenceBPM    float64
	bpm             float64
	beats           float64
	now             time.Duration
	started         bool
	epoch           uint64
	discontinuities uint64
	lastJump        error
}

// NewHost returns a host clock. A non-positive reference tempo falls back
// to DefaultReferenceBPM.
func NewHost(referenceBPM float64) *Host {
	if referenceBPM <= 0 {
		referenceBPM = DefaultReferenceBPM
	}
	return &Host{referenceBPM: referenceBPM, bpm: referenceBPM}
}

// Update feeds the host transport position and tempo. It reports whether
// the update was absorbed as a discontinuity.
func (h *Host) Update(beats, bpm float64) (bool, error) {
	if bpm <= 0 || bpm != bpm {
		return false, fmt.Errorf("%w: %v", ErrInvalidBPM, bpm)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.bpm = bpm
	if !h.started {
		h.started = true
		h.beats = beats
		return false, nil
	}

	delta := beats - h.beats
	h.beats = beats
	if delta < 0 {
		h.epoch++
		h.discontinuities++
		h.lastJump = fmt.Errorf("%w: beats %v -> %v at epoch %d", ErrDiscontinuity, beats-delta, beats, h.epoch)
		return true, nil
	}
	h.now += time.Duration(delta * 60 / h.referenceBPM * float64(time.Second))
	return false, nil
}

// Now returns accumulated engine time.
func (h *Host) Now() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *Host) Mode() Mode { return ModeHost }

func (h *Host) Epoch() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.epoch
}

// Discontinuities returns how many backward jumps were absorbed.
func (h *Host) Discontinuities() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.discontinuities
}

// LastDiscontinuity describes the most recent backward jump, or returns nil
// when none was absorbed. The error wraps ErrDiscontinuity.
func (h *Host) LastDiscontinuity() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastJump
}

// BPM returns the last tempo reported by the host.
func (h *Host) BPM() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bpm
}

// ReferenceBPM returns the tempo at which engine time matches wall time.
func (h *Host) ReferenceBPM() float64 { return h.referenceBPM }

func (h *Host) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{Now: h.now, BPM: h.bpm, HostSynced: true}
}

// Manual is a clock moved explicitly by its owner. Tests and hosts that
// already own a sample-accurate timeline use it.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	mode  Mode
	epoch uint64
}

// NewManual returns a manual clock starting at start that reports mode.
func NewManual(start time.Duration, mode Mode) *Manual {
	return &Manual{now: start, mode: mode}
}

// Advance moves the clock forward by d. Negative values are ignored.
func (m *Manual) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += d
	}
	return m.now
}

// Set moves the clock to t. Moving backwards is absorbed as a discontinuity.
func (m *Manual) Set(t time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t < m.now {
		m.epoch++
		return
	}
	m.now = t
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Mode() Mode { return m.mode }

func (m *Manual) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manual) Snapshot() Snapshot {
	return Snapshot{Now: m.Now(), HostSynced: m.mode == ModeHost}
}
