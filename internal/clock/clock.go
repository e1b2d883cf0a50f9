// Package clock provides the drift-corrected playback clock used by sounds.
package clock

import (
	"sync"
	"time"
)

const (
	// HardResetThreshold is how far ahead of the authoritative time the
	// estimate may run before it is snapped back instead of slowed down.
	HardResetThreshold = 0.5
	decayKeep          = 0.95
	decayTake          = 0.05
)

// Source reports wall-clock time in seconds on a monotonic timeline.
type Source interface {
	Now() float64
}

// Wall is a Source backed by the process monotonic clock.
type Wall struct {
	start time.Time
}

func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

func (w *Wall) Now() float64 {
	return time.Since(w.start).Seconds()
}

// Manual is a Source that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now float64
}

func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manual) Advance(d float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
}

// Calibrated estimates the playback position as (now - base) * scale and is
// nudged towards authoritative samples by Correct. The zero value reads 0
// at every time; call Set before use.
//
// Scales are relative to the nominal rate given to Reset: a reset or hard
// snap restores scale to that rate, and the correction factors multiply it.
// At rate 1 the scale after a snap is exactly 1.0.
type Calibrated struct {
	base   float64
	scale  float64
	decavg float64
	rate   float64
}

// Set rebases the clock so it reads t at now, advancing at scale.
func (c *Calibrated) Set(now, t, scale float64) {
	c.scale = scale
	c.base = now - t/scale
}

// Reset rebases the clock to read t at now with the nominal rate and clears
// the error history. rate <= 0 is treated as 1.
func (c *Calibrated) Reset(now, t, rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	c.rate = rate
	c.decavg = 0
	c.Set(now, t, rate)
}

// At returns the estimated position at now.
func (c *Calibrated) At(now float64) float64 {
	return (now - c.base) * c.scale
}

func (c *Calibrated) Scale() float64 {
	return c.scale
}

// DecayingAverage returns the smoothed estimate-minus-truth error.
func (c *Calibrated) DecayingAverage() float64 {
	return c.decavg
}

func (c *Calibrated) nominal() float64 {
	if c.rate <= 0 {
		return 1.0
	}
	return c.rate
}

// Correct compares the clock against the authoritative position t at now.
// Large forward error is treated as a discontinuity and snaps the clock;
// anything else only changes the rate, so the estimate never jumps.
func (c *Calibrated) Correct(now, t float64) {
	cc := c.At(now)
	diff := cc - t
	c.decavg = c.decavg*decayKeep + diff*decayTake

	if diff > HardResetThreshold {
		c.Set(now, t, c.nominal())
		c.decavg = 0
		return
	}

	c.Set(now, cc, c.nominal()*correctionScale(diff, c.decavg))
}

func correctionScale(diff, decavg float64) float64 {
	scale := 1.0
	if decavg > 0.01 && diff > 0.01 {
		scale = 0.98
	}
	if decavg < -0.01 && diff < -0.01 {
		scale = 1.03
	}
	if decavg < -0.05 && diff < -0.05 {
		scale = 1.2
	}
	if decavg < -0.15 && diff < -0.15 {
		scale = 1.5
	}
	return scale
}
