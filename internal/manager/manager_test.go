package manager

import (
	"errors"
	"testing"
	"time"

	"github.com/glebovdev/soundq/internal/clock"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/glebovdev/soundq/internal/device"
	"github.com/glebovdev/soundq/internal/provider"
	"github.com/glebovdev/soundq/internal/sound"
)

func testOptions() Options {
	return Options{
		Volume:           1,
		PlayRate:         1,
		BufferingSeconds: 3,
		PreloadThreshold: 10,
		CacheLimit:       4,
		DistanceFactor:   1,
		DropOffFactor:    1,
		UpdateInterval:   time.Millisecond,
	}
}

func newTestManager(opts Options) (*Manager, *device.Mock, *clock.Manual) {
	dev := device.NewMock()
	clk := &clock.Manual{}
	return New(dev, clk, opts), dev, clk
}

// shortAsset is a 10 s mono asset at 100 Hz.
func shortAsset() *provider.PCM {
	return provider.NewPCM("short.pcm", 1, 100, make([]int16, 1000))
}

// longAsset is a 30 s mono asset at 8 kHz, several chunks long.
func longAsset() *provider.PCM {
	return provider.NewPCM("long.pcm", 1, 8000, make([]int16, 240000))
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken.wav" }
func (brokenSource) Open() (provider.Cursor, error) {
	return nil, provider.ErrUnsupportedFormat
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Volume = 50
	cfg.UpdateIntervalMs = 40

	opts := OptionsFromConfig(cfg)

	if opts.Volume != 0.5 {
		t.Errorf("Volume = %v, want 0.5", opts.Volume)
	}
	if opts.UpdateInterval != 40*time.Millisecond {
		t.Errorf("UpdateInterval = %v, want 40ms", opts.UpdateInterval)
	}
	if opts.PreloadThreshold != config.DefaultPreloadThreshold {
		t.Errorf("PreloadThreshold = %v, want %v", opts.PreloadThreshold, config.DefaultPreloadThreshold)
	}
	if opts.CacheLimit != config.DefaultCacheLimit {
		t.Errorf("CacheLimit = %d, want %d", opts.CacheLimit, config.DefaultCacheLimit)
	}
}

func TestShortAssetsShareOneBuffer(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, a, err := m.NewSound(shortAsset(), false)
	if err != nil {
		t.Fatalf("NewSound() error = %v", err)
	}
	_, b, err := m.NewSound(shortAsset(), false)
	if err != nil {
		t.Fatalf("NewSound() error = %v", err)
	}

	m.Do(func() {
		a.Play()
		b.Play()
	})

	if dev.LiveBuffers() != 1 {
		t.Errorf("LiveBuffers() = %d, want 1 shared sample", dev.LiveBuffers())
	}
	qa, qb := dev.Queue(a.Voice()), dev.Queue(b.Voice())
	if len(qa) != 1 || len(qb) != 1 || qa[0] != qb[0] {
		t.Errorf("queues %v and %v should hold the same sample", qa, qb)
	}
	if a.Voice() == b.Voice() {
		t.Error("two playing sounds share a voice")
	}
	if m.Playing() != 2 {
		t.Errorf("Playing() = %d, want 2", m.Playing())
	}
}

func TestLongAssetsStream(t *testing.T) {
	tests := []struct {
		name   string
		force  bool
		src    func() *provider.PCM
		stream bool
	}{
		{"long asset", false, longAsset, true},
		{"short asset", false, shortAsset, false},
		{"forced stream", true, shortAsset, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.ForceStream = tt.force
			m, dev, _ := newTestManager(opts)

			_, s, err := m.NewSound(tt.src(), false)
			if err != nil {
				t.Fatalf("NewSound() error = %v", err)
			}
			m.Do(s.Play)

			queue := dev.Queue(s.Voice())
			if len(queue) == 0 {
				t.Fatal("nothing queued")
			}
			seen := make(map[device.BufferID]bool)
			for _, id := range queue {
				seen[id] = true
			}
			if tt.stream && len(seen) != len(queue) {
				t.Errorf("streamed queue %v reuses buffers", queue)
			}
			if !tt.stream && len(seen) != 1 {
				t.Errorf("sample queue %v should reuse one buffer", queue)
			}
		})
	}
}

func TestStreamQueueDepth(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, s, err := m.NewSound(longAsset(), false)
	if err != nil {
		t.Fatalf("NewSound() error = %v", err)
	}
	m.Do(s.Play)

	want := sound.TargetQueueDepth(3, 8000, 1)
	if got := len(dev.Queue(s.Voice())); got != want {
		t.Errorf("queued %d buffers, want %d", got, want)
	}
}

func TestNewSoundFailure(t *testing.T) {
	m, _, _ := newTestManager(testOptions())

	id, s, err := m.NewSound(brokenSource{}, false)
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("NewSound() error = %v, want ErrLoadFailed", err)
	}
	if id != "" || s != nil {
		t.Errorf("NewSound() = %q, %v, want nothing", id, s)
	}
	if len(m.Snapshot()) != 0 {
		t.Error("failed sound was registered")
	}
}

func TestSoundLookup(t *testing.T) {
	m, _, _ := newTestManager(testOptions())

	id, s, err := m.NewSound(shortAsset(), false)
	if err != nil {
		t.Fatalf("NewSound() error = %v", err)
	}

	got, err := m.Sound(id)
	if err != nil || got != s {
		t.Errorf("Sound(%q) = %v, %v, want the created sound", id, got, err)
	}
	if _, err := m.Sound("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Sound(missing) error = %v, want ErrNotFound", err)
	}

	m.Do(s.Close)
	if _, err := m.Sound(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("closed sound still registered, error = %v", err)
	}
}

func TestConcurrentSoundLimit(t *testing.T) {
	opts := testOptions()
	opts.ConcurrentSoundLimit = 1
	m, dev, _ := newTestManager(opts)

	_, first, _ := m.NewSound(shortAsset(), false)
	_, second, _ := m.NewSound(shortAsset(), false)

	m.Do(func() {
		first.Play()
		second.Play()
	})

	if second.Voice() != device.NoVoice {
		t.Error("second sound got a voice over the limit")
	}
	if second.Status() != sound.StatusReady {
		t.Errorf("second Status() = %v, want READY", second.Status())
	}

	m.Do(func() {
		first.Stop()
		second.Play()
	})

	if second.Voice() == device.NoVoice {
		t.Fatal("second sound did not get the released voice")
	}
	if dev.LiveVoices() != 1 {
		t.Errorf("LiveVoices() = %d, want 1 reused voice", dev.LiveVoices())
	}
}

func TestFinishedEventDispatch(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	var events []string
	m.OnEvent(func(name string) {
		// The manager lock is released before dispatch.
		_ = m.Snapshot()
		events = append(events, name)
	})

	_, s, _ := m.NewSound(shortAsset(), false)
	m.Do(func() {
		s.SetFinishedEvent("blip-done")
		s.Play()
	})

	dev.Consume(s.Voice(), 1)
	m.Update()

	if len(events) != 1 || events[0] != "blip-done" {
		t.Errorf("events = %v, want [blip-done]", events)
	}
	if m.Playing() != 0 {
		t.Errorf("Playing() = %d after finish, want 0", m.Playing())
	}
}

func TestCacheLimitZeroEvictsSamples(t *testing.T) {
	opts := testOptions()
	opts.CacheLimit = 0
	m, dev, _ := newTestManager(opts)

	_, s, _ := m.NewSound(shortAsset(), false)
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after load, want 0", dev.LiveBuffers())
	}

	m.Do(s.Play)
	if dev.LiveBuffers() != 1 {
		t.Errorf("LiveBuffers() = %d while playing, want 1", dev.LiveBuffers())
	}

	m.Do(s.Stop)
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d after stop, want 0", dev.LiveBuffers())
	}
}

func TestCachedSampleSurvivesStop(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, s, _ := m.NewSound(shortAsset(), false)
	m.Do(s.Play)
	m.Do(s.Stop)
	m.Do(s.Play)

	if dev.Calls("BufferData") != 1 {
		t.Errorf("BufferData called %d times, want 1", dev.Calls("BufferData"))
	}
}

func TestSetVolumeReapplies(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, s, _ := m.NewSound(shortAsset(), false)
	m.Do(func() {
		s.SetVolume(0.5)
		s.Play()
	})

	m.SetVolume(0.5)

	if gain, _ := dev.Float(s.Voice(), device.ParamGain); gain != 0.25 {
		t.Errorf("gain = %v, want 0.25", gain)
	}
}

func TestDistanceFactorsReapply(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, s, _ := m.NewSound(shortAsset(), true)
	m.Do(func() {
		s.Set3DMinDistance(2)
		s.Set3DDropOffFactor(0.5)
		s.Play()
	})

	m.Set3DDistanceFactor(3)
	m.Set3DDropOffFactor(4)

	if ref, _ := dev.Float(s.Voice(), device.ParamReferenceDistance); ref != 6 {
		t.Errorf("reference distance = %v, want 6", ref)
	}
	if rolloff, _ := dev.Float(s.Voice(), device.ParamRolloff); rolloff != 2 {
		t.Errorf("rolloff = %v, want 2", rolloff)
	}
}

func TestSnapshot(t *testing.T) {
	m, _, clk := newTestManager(testOptions())

	id, s, _ := m.NewSound(shortAsset(), false)
	m.Do(func() {
		s.SetLoopCount(2)
		s.Play()
	})
	clk.Advance(1)
	m.Update()

	infos := m.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("Snapshot() has %d entries, want 1", len(infos))
	}
	info := infos[0]
	if info.ID != id || info.Name != "short.pcm" || info.Title != "short.pcm" {
		t.Errorf("Snapshot() = %+v", info)
	}
	if info.Status != sound.StatusPlaying {
		t.Errorf("Status = %v, want PLAYING", info.Status)
	}
	if info.PlayingLoops.Count() != 2 || info.QueueDepth != 2 {
		t.Errorf("PlayingLoops=%v QueueDepth=%d, want 2 2", info.PlayingLoops, info.QueueDepth)
	}
	if info.Length != 10 {
		t.Errorf("Length = %v, want 10", info.Length)
	}
}

func TestShutdown(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	_, short, _ := m.NewSound(shortAsset(), false)
	_, long, _ := m.NewSound(longAsset(), false)
	m.Do(func() {
		short.Play()
		long.Play()
	})

	m.Shutdown()
	m.Shutdown()

	if !short.Closed() || !long.Closed() {
		t.Error("Shutdown() left sounds open")
	}
	if dev.LiveBuffers() != 0 {
		t.Errorf("LiveBuffers() = %d, want 0", dev.LiveBuffers())
	}
	if dev.LiveVoices() != 0 {
		t.Errorf("LiveVoices() = %d, want 0", dev.LiveVoices())
	}
	if _, _, err := m.NewSound(shortAsset(), false); !errors.Is(err, ErrShutdown) {
		t.Errorf("NewSound() after shutdown error = %v, want ErrShutdown", err)
	}
}

func TestStartUpdates(t *testing.T) {
	m, dev, _ := newTestManager(testOptions())

	done := make(chan string, 1)
	m.OnEvent(func(name string) { done <- name })

	_, s, _ := m.NewSound(shortAsset(), false)
	m.Do(func() {
		s.SetFinishedEvent("finished")
		s.Play()
	})
	voice := s.Voice()

	m.StartUpdates()
	m.StartUpdates()
	defer m.Shutdown()

	dev.Consume(voice, 1)

	select {
	case name := <-done:
		if name != "finished" {
			t.Errorf("event = %q, want finished", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update loop never finished the sound")
	}

	m.StopUpdates()
	m.StopUpdates()
}
