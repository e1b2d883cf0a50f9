package manager

import (
	"fmt"

	"github.com/glebovdev/soundq/internal/device"
	"github.com/glebovdev/soundq/internal/provider"
	"github.com/glebovdev/soundq/internal/sound"
	"github.com/rs/zerolog/log"
)

// The methods below are called by sounds with m.mu held.

func (m *Manager) MakeCurrent() device.Context { return m.ctx }

func (m *Manager) Volume() float64 { return m.opts.Volume }

func (m *Manager) PlayRate() float64 { return m.opts.PlayRate }

func (m *Manager) DistanceFactor() float64 { return m.opts.DistanceFactor }

func (m *Manager) DropOffFactor() float64 { return m.opts.DropOffFactor }

func (m *Manager) BufferingSeconds() float64 { return m.opts.BufferingSeconds }

func (m *Manager) Now() float64 { return m.clock.Now() }

// StartingSound takes a voice from the idle pool, or allocates one while
// the concurrent sound limit allows.
func (m *Manager) StartingSound(s *sound.Sound) device.VoiceID {
	if v, ok := m.playing[s]; ok {
		return v
	}

	var v device.VoiceID
	if n := len(m.idle); n > 0 {
		v = m.idle[n-1]
		m.idle = m.idle[:n-1]
	} else {
		if limit := m.opts.ConcurrentSoundLimit; limit > 0 && m.voices >= limit {
			log.Warn().Int("limit", limit).Str("sound", s.Name()).Msg("Concurrent sound limit reached")
			return device.NoVoice
		}
		var err error
		v, err = m.ctx.GenVoice()
		if err != nil {
			log.Error().Err(err).Str("sound", s.Name()).Msg("Failed to allocate voice")
			return device.NoVoice
		}
		m.voices++
	}

	m.playing[s] = v
	return v
}

// StoppingSound returns the sound's voice to the idle pool.
func (m *Manager) StoppingSound(s *sound.Sound) {
	v, ok := m.playing[s]
	if !ok {
		return
	}
	delete(m.playing, s)
	m.idle = append(m.idle, v)
}

// ReleaseSound forgets a closed sound.
func (m *Manager) ReleaseSound(s *sound.Sound) {
	m.StoppingSound(s)
	if id, ok := m.ids[s]; ok {
		delete(m.sounds, id)
		delete(m.ids, s)
	}
	delete(m.titles, s)
}

func (m *Manager) ThrowEvent(name string) {
	m.pending = append(m.pending, name)
}

// RequireData checks out the audio of src. Short assets are decoded once
// into a shared device buffer; long ones get a cursor of their own.
func (m *Manager) RequireData(src provider.Source) (*provider.Data, error) {
	name := src.Name()
	if d, ok := m.arena.Checkout(name); ok {
		return d, nil
	}

	c, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if m.opts.ForceStream || c.Length() > m.opts.PreloadThreshold {
		log.Debug().Str("asset", name).Float64("length", c.Length()).Msg("Streaming asset")
		return provider.NewStreamData(name, c), nil
	}
	defer c.Close()

	pcm, frames, err := provider.ReadAll(c)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	buf, err := m.ctx.GenBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate buffer: %w", err)
	}
	if err := m.ctx.BufferData(buf, device.FormatFor(c.Channels()), pcm, c.Rate()); err != nil {
		if derr := m.ctx.DeleteBuffer(buf); derr != nil {
			log.Debug().Err(derr).Msg("Failed to delete unfilled buffer")
		}
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}

	d := provider.NewSampleData(name, buf, c.Channels(), c.Rate(), c.Length())
	m.arena.Add(name, d)
	log.Debug().Str("asset", name).Int("frames", frames).Msg("Preloaded asset")
	return d, nil
}

// DecrementClientCount checks data back in. Stream cursors are closed,
// samples return to the arena.
func (m *Manager) DecrementClientCount(d *provider.Data) {
	if d == nil {
		return
	}
	switch d.Kind {
	case provider.KindStream:
		if err := d.Stream.Close(); err != nil {
			log.Debug().Err(err).Str("asset", d.Name).Msg("Failed to close stream")
		}
	case provider.KindSample:
		m.arena.Checkin(d.Name)
	}
}
