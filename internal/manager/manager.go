// Package manager owns every sound on one device. It hands out voices and
// shared asset data, and drives the periodic update tick.
package manager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/soundq/internal/cache"
	"github.com/glebovdev/soundq/internal/clock"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/glebovdev/soundq/internal/device"
	"github.com/glebovdev/soundq/internal/provider"
	"github.com/glebovdev/soundq/internal/sound"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrLoadFailed = errors.New("sound could not be loaded")
	ErrNotFound   = errors.New("no such sound")
	ErrShutdown   = errors.New("manager is shut down")
)

// Options are the manager-wide settings applied to every sound.
type Options struct {
	Volume           float64
	PlayRate         float64
	BufferingSeconds float64
	// PreloadThreshold is the longest asset, in seconds, that is decoded
	// fully into a shared buffer. Longer assets stream.
	PreloadThreshold float64
	// ForceStream streams every asset regardless of its length.
	ForceStream bool
	// CacheLimit is how many unused sample buffers are kept.
	CacheLimit int
	// ConcurrentSoundLimit caps the voices in use; 0 is unlimited.
	ConcurrentSoundLimit int
	DistanceFactor       float64
	DropOffFactor        float64
	UpdateInterval       time.Duration
}

// OptionsFromConfig maps the configuration file onto manager options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Volume:               cfg.MasterVolume(),
		PlayRate:             cfg.PlayRate,
		BufferingSeconds:     cfg.BufferingSeconds,
		PreloadThreshold:     cfg.PreloadThreshold,
		CacheLimit:           cfg.CacheLimit,
		ConcurrentSoundLimit: cfg.ConcurrentSoundLimit,
		DistanceFactor:       cfg.DistanceFactor,
		DropOffFactor:        cfg.DropOffFactor,
		UpdateInterval:       time.Duration(cfg.UpdateIntervalMs) * time.Millisecond,
	}
}

// Info is a point-in-time view of one sound.
type Info struct {
	ID             string
	Name           string
	Title          string
	Status         sound.Status
	Active         bool
	Time           float64
	Length         float64
	LoopsCompleted uint64
	PlayingLoops   sound.Repeats
	QueueDepth     int
	ClockScale     float64
}

// Manager implements sound.Manager. Sounds and their callbacks into the
// manager run under mu: public methods take it, the sound.Manager methods
// assume it is already held.
type Manager struct {
	mu    sync.Mutex
	opts  Options
	ctx   device.Context
	clock clock.Source
	arena *cache.Arena[*provider.Data]

	sounds  map[string]*sound.Sound
	ids     map[*sound.Sound]string
	titles  map[*sound.Sound]string
	playing map[*sound.Sound]device.VoiceID
	idle    []device.VoiceID
	voices  int

	pending []string
	onEvent func(name string)

	stopUpdates chan struct{}
	updatesDone chan struct{}
	closed      bool
}

var _ sound.Manager = (*Manager)(nil)

func New(ctx device.Context, clk clock.Source, opts Options) *Manager {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = time.Duration(config.DefaultUpdateIntervalMs) * time.Millisecond
	}
	if opts.PlayRate <= 0 {
		opts.PlayRate = config.DefaultPlayRate
	}
	m := &Manager{
		opts:    opts,
		ctx:     ctx,
		clock:   clk,
		sounds:  make(map[string]*sound.Sound),
		ids:     make(map[*sound.Sound]string),
		titles:  make(map[*sound.Sound]string),
		playing: make(map[*sound.Sound]device.VoiceID),
	}
	m.arena = cache.NewArena(opts.CacheLimit, m.evictSample)
	return m
}

// OnEvent registers the receiver of finished events. It is called outside
// the manager lock.
func (m *Manager) OnEvent(fn func(name string)) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

// NewSound loads src and registers a sound for it, returning its ID.
func (m *Manager) NewSound(src provider.Source, positional bool) (string, *sound.Sound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", nil, ErrShutdown
	}

	s := sound.New(m, src, positional)
	if s.Closed() {
		return "", nil, fmt.Errorf("failed to load %s: %w", src.Name(), ErrLoadFailed)
	}

	id := uuid.New().String()
	m.sounds[id] = s
	m.ids[s] = id
	m.titles[s] = provider.Title(src)

	log.Debug().Str("id", id).Str("sound", s.Name()).Float64("length", s.Length()).Msg("Sound created")
	return id, s, nil
}

// Sound returns the sound registered under id.
func (m *Manager) Sound(id string) (*sound.Sound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Do runs fn in the update context. Every Sound method outside of the
// manager's own tick must go through Do.
func (m *Manager) Do(fn func()) {
	m.mu.Lock()
	fn()
	events := m.takeEvents()
	m.mu.Unlock()

	m.dispatch(events)
}

// Update runs one tick over every playing sound.
func (m *Manager) Update() {
	m.mu.Lock()
	playing := make([]*sound.Sound, 0, len(m.playing))
	for s := range m.playing {
		playing = append(playing, s)
	}
	for _, s := range playing {
		s.Update()
	}
	events := m.takeEvents()
	m.mu.Unlock()

	m.dispatch(events)
}

// StartUpdates runs Update every UpdateInterval until StopUpdates or
// Shutdown.
func (m *Manager) StartUpdates() {
	m.mu.Lock()
	if m.stopUpdates != nil || m.closed {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopUpdates = stop
	m.updatesDone = done
	interval := m.opts.UpdateInterval
	m.mu.Unlock()

	go func() {
		updateTicker := time.NewTicker(interval)
		defer updateTicker.Stop()
		defer close(done)

		for {
			select {
			case <-stop:
				return
			case <-updateTicker.C:
				m.Update()
			}
		}
	}()
}

// StopUpdates stops the update loop and waits for the running tick.
func (m *Manager) StopUpdates() {
	m.mu.Lock()
	stop, done := m.stopUpdates, m.updatesDone
	m.stopUpdates, m.updatesDone = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// SetVolume changes the master volume and re-applies it to playing sounds.
func (m *Manager) SetVolume(volume float64) {
	m.Do(func() {
		m.opts.Volume = volume
		for s := range m.playing {
			s.SetVolume(s.Volume())
		}
	})
}

// Set3DDistanceFactor changes the distance scale and re-applies it.
func (m *Manager) Set3DDistanceFactor(factor float64) {
	m.Do(func() {
		m.opts.DistanceFactor = factor
		for s := range m.playing {
			s.Set3DMinDistance(s.MinDistance3D())
			s.Set3DMaxDistance(s.MaxDistance3D())
		}
	})
}

// Set3DDropOffFactor changes the rolloff scale and re-applies it.
func (m *Manager) Set3DDropOffFactor(factor float64) {
	m.Do(func() {
		m.opts.DropOffFactor = factor
		for s := range m.playing {
			s.Set3DDropOffFactor(s.DropOffFactor3D())
		}
	})
}

// Snapshot describes every registered sound.
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.sounds))
	for id, s := range m.sounds {
		infos = append(infos, Info{
			ID:             id,
			Name:           s.Name(),
			Title:          m.titles[s],
			Status:         s.Status(),
			Active:         s.Active(),
			Time:           s.Time(),
			Length:         s.Length(),
			LoopsCompleted: s.LoopsCompleted(),
			PlayingLoops:   s.PlayingLoops(),
			QueueDepth:     s.QueueDepth(),
			ClockScale:     s.ClockScale(),
		})
	}
	return infos
}

// Playing returns how many sounds hold a voice.
func (m *Manager) Playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.playing)
}

// Shutdown stops updates, closes every sound and frees device resources.
func (m *Manager) Shutdown() {
	m.StopUpdates()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true

	sounds := make([]*sound.Sound, 0, len(m.sounds))
	for _, s := range m.sounds {
		sounds = append(sounds, s)
	}
	for _, s := range sounds {
		s.Close()
	}
	m.arena.Clear()

	for _, v := range m.idle {
		if err := m.ctx.DeleteVoice(v); err != nil {
			log.Debug().Err(err).Uint32("voice", uint32(v)).Msg("Failed to delete voice")
		}
	}
	m.idle = nil
	m.voices = 0
	events := m.takeEvents()
	m.mu.Unlock()

	m.dispatch(events)
	log.Debug().Int("sounds", len(sounds)).Msg("Manager shut down")
}

func (m *Manager) takeEvents() []string {
	events := m.pending
	m.pending = nil
	return events
}

func (m *Manager) dispatch(events []string) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	fn := m.onEvent
	m.mu.Unlock()
	if fn == nil {
		return
	}
	for _, name := range events {
		fn(name)
	}
}

func (m *Manager) evictSample(name string, d *provider.Data) {
	if d.Kind != provider.KindSample {
		return
	}
	if err := m.ctx.DeleteBuffer(d.Sample); err != nil {
		log.Error().Err(err).Str("asset", name).Msg("Failed to delete sample buffer")
	}
}
