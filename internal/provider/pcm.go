package provider

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM is an in-memory source of interleaved int16 samples.
type PCM struct {
	name     string
	channels int
	rate     int
	samples  []int16
}

// NewPCM creates a source over samples, which holds frames*channels values.
func NewPCM(name string, channels, rate int, samples []int16) *PCM {
	if channels < 1 {
		channels = 1
	}
	return &PCM{
		name:     name,
		channels: channels,
		rate:     rate,
		samples:  samples,
	}
}

// NewTone synthesises a mono sine wave of the given frequency and length.
func NewTone(freq float64, seconds float64, rate int) *PCM {
	frames := int(seconds * float64(rate))
	samples := make([]int16, frames)
	for i := range samples {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
		samples[i] = int16(v * 0.5 * math.MaxInt16)
	}
	return NewPCM(fmt.Sprintf("tone-%gHz.pcm", freq), 1, rate, samples)
}

func (p *PCM) Name() string { return p.name }

// Frames returns the number of sample frames in the source.
func (p *PCM) Frames() int {
	return len(p.samples) / p.channels
}

func (p *PCM) Open() (Cursor, error) {
	if p.rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d for %s", p.rate, p.name)
	}
	return &pcmCursor{src: p}, nil
}

type pcmCursor struct {
	src    *PCM
	pos    int
	closed bool
}

func (c *pcmCursor) Tell() float64 {
	return float64(c.pos) / float64(c.src.rate)
}

func (c *pcmCursor) Seek(t float64) error {
	if c.closed {
		return ErrClosed
	}
	pos := int(math.Round(t * float64(c.src.rate)))
	if pos < 0 {
		pos = 0
	}
	if frames := c.src.Frames(); pos > frames {
		pos = frames
	}
	c.pos = pos
	return nil
}

func (c *pcmCursor) Length() float64 {
	return float64(c.src.Frames()) / float64(c.src.rate)
}

func (c *pcmCursor) Channels() int { return c.src.channels }

func (c *pcmCursor) Rate() int { return c.src.rate }

func (c *pcmCursor) ReadSamples(n int, out []byte) error {
	if c.closed {
		return ErrClosed
	}
	ch := c.src.channels
	if len(out) < n*ch*2 {
		return fmt.Errorf("output too small: %d bytes for %d frames", len(out), n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < ch; j++ {
			var v int16
			if c.pos < c.src.Frames() {
				v = c.src.samples[c.pos*ch+j]
			}
			binary.LittleEndian.PutUint16(out[(i*ch+j)*2:], uint16(v))
		}
		if c.pos < c.src.Frames() {
			c.pos++
		}
	}
	return nil
}

func (c *pcmCursor) Close() error {
	c.closed = true
	return nil
}
