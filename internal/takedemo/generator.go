package takedemo

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/retake/internal/domain/types"
)

var errBadShape = errors.New("invalid take shape")

// major scale steps for the generated phrase.
var scale = []int{0, 2, 4, 5, 7, 9, 11, 12}

// Generate builds the batches for the configured take. Every batch gets a
// fresh batch id; offsets inside a batch are relative to the batch's due time.
func Generate(cfg *Config) ([]Batch, error) {
	if cfg.Samples <= 0 || cfg.StepMs <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: samples=%d step=%v batch=%d", errBadShape, cfg.Samples, cfg.StepMs, cfg.BatchSize)
	}
	var timed []timedSample
	switch cfg.Kind {
	case KindGesture:
		timed = gesture(cfg.Samples, cfg.StepMs)
	case KindPhrase:
		timed = phrase(cfg.Samples, cfg.StepMs)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", errBadShape, cfg.Kind)
	}
	return batch(timed, cfg.BatchSize), nil
}

type timedSample struct {
	at     float64
	sample types.Sample
}

// gesture draws a down, n moves along a sine sweep and an up.
func gesture(n int, step float64) []timedSample {
	phase := rand.Float64() * math.Pi
	point := func(i int) (float64, float64) {
		u := float64(i) / float64(n+1)
		return 0.1 + 0.8*u, 0.5 + 0.4*math.Sin(phase+2*math.Pi*u)
	}
	out := make([]timedSample, 0, n+2)
	for i := 0; i <= n+1; i++ {
		x, y := point(i)
		kind := "move"
		switch i {
		case 0:
			kind = "down"
		case n + 1:
			kind = "up"
		}
		out = append(out, timedSample{
			at:     float64(i) * step,
			sample: types.Sample{Kind: kind, X: ptr(round3(x)), Y: ptr(round3(y))},
		})
	}
	return out
}

// phrase plays n notes up the scale, each held for part of a step.
func phrase(n int, step float64) []timedSample {
	out := make([]timedSample, 0, 2*n)
	for i := 0; i < n; i++ {
		note := phraseRoot + scale[i%len(scale)] + 12*(i/len(scale))
		if note > 127 {
			note = 127
		}
		vel := round3(0.6 + 0.4*rand.Float64())
		start := float64(i) * step
		out = append(out,
			timedSample{at: start, sample: types.Sample{Kind: "note-on", Note: ptr(note), Velocity: ptr(vel)}},
			timedSample{at: start + step*phraseHoldFrac, sample: types.Sample{Kind: "note-off", Note: ptr(note)}},
		)
	}
	return out
}

func batch(timed []timedSample, size int) []Batch {
	batches := make([]Batch, 0, (len(timed)+size-1)/size)
	for start := 0; start < len(timed); start += size {
		end := min(start+size, len(timed))
		base := timed[start].at
		b := Batch{BatchID: uuid.NewString(), AtMs: base}
		for _, ts := range timed[start:end] {
			s := ts.sample
			s.OffsetMs = ts.at - base
			b.Samples = append(b.Samples, s)
		}
		batches = append(batches, b)
	}
	return batches
}

func ptr[T any](v T) *T { return &v }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
