// Package sound implements a single playing sound on a buffer-queue device:
// it keeps the device queue fed from a sample or a stream, reclaims consumed
// buffers, and tracks the playback position with a drift-corrected clock.
//
// A Sound is not safe for concurrent use. Every method must be called from
// the owning manager's update context.
package sound

import (
	"math"
	"strconv"

	"github.com/glebovdev/soundq/internal/clock"
	"github.com/glebovdev/soundq/internal/device"
	"github.com/glebovdev/soundq/internal/provider"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMinDistance = 3.28
	DefaultMaxDistance = 1e9

	// infiniteLoopCount is the loop count at or above which a sound loops
	// forever.
	infiniteLoopCount = 1000000000
)

// Manager is the owner a Sound reports to. It hands out the device, the
// shared asset data and the voice, and receives lifecycle notifications.
type Manager interface {
	// MakeCurrent activates the device and returns it for the calls that follow.
	MakeCurrent() device.Context
	Volume() float64
	PlayRate() float64
	DistanceFactor() float64
	DropOffFactor() float64
	BufferingSeconds() float64
	// Now returns wall-clock seconds on the manager's timeline.
	Now() float64

	// StartingSound assigns a voice to s, or returns device.NoVoice if none
	// is available.
	StartingSound(s *Sound) device.VoiceID
	StoppingSound(s *Sound)
	ReleaseSound(s *Sound)

	RequireData(src provider.Source) (*provider.Data, error)
	DecrementClientCount(d *provider.Data)
	ThrowEvent(name string)
}

// Status is the coarse playback state reported to callers.
type Status int

const (
	StatusReady Status = iota
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusPlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// Repeats is how many times a sound plays in one activation.
type Repeats struct {
	n        uint64
	infinite bool
}

// Times returns a finite repetition count.
func Times(n uint64) Repeats { return Repeats{n: n} }

// Infinite returns an unbounded repetition count.
func Infinite() Repeats { return Repeats{infinite: true} }

func (r Repeats) IsInfinite() bool { return r.infinite }

// Count returns the finite count, or 0 for Infinite.
func (r Repeats) Count() uint64 {
	if r.infinite {
		return 0
	}
	return r.n
}

// Allows reports whether another repetition may start after completed ones.
func (r Repeats) Allows(completed uint64) bool {
	return r.infinite || completed < r.n
}

func (r Repeats) String() string {
	if r.infinite {
		return "infinite"
	}
	return strconv.FormatUint(r.n, 10)
}

// Sound is one playable instance of an audio asset.
type Sound struct {
	mgr        Manager
	src        provider.Source
	data       *provider.Data
	voice      device.VoiceID
	positional bool

	queue   []queuedBuffer
	scratch []byte

	name   string
	length float64

	volume   float64
	playRate float64

	loops        Repeats
	playingLoops Repeats
	// loopsQueued counts repetitions handed to the device in full;
	// loopsCompleted counts the ones the device has finished playing.
	loopsQueued    uint64
	loopsCompleted uint64
	playingRate    float64

	startTime   float64
	currentTime float64
	clock       clock.Calibrated

	active bool
	paused bool

	location device.Vec3
	velocity device.Vec3
	minDist  float64
	maxDist  float64
	dropOff  float64

	finishedEvent string

	log zerolog.Logger
}

// New binds a sound to src. The asset is checked out once to learn its
// length and channel layout, then released until the first Play.
func New(mgr Manager, src provider.Source, positional bool) *Sound {
	name := provider.Basename(src)
	s := &Sound{
		mgr:        mgr,
		src:        src,
		positional: positional,
		name:       name,
		volume:     1.0,
		playRate:   1.0,
		loops:      Times(1),
		active:     true,
		minDist:    DefaultMinDistance,
		maxDist:    DefaultMaxDistance,
		dropOff:    1.0,
		log:        log.With().Str("sound", name).Logger(),
	}

	if !s.requireData() {
		return s
	}
	s.length = s.data.Length
	if positional && s.data.Channels != 1 {
		s.log.Warn().Int("channels", s.data.Channels).Msg("Stereo sound will not be spatialized")
	}
	s.releaseData()
	return s
}

func (s *Sound) requireData() bool {
	if s.data != nil {
		return true
	}
	data, err := s.mgr.RequireData(s.src)
	if err != nil {
		s.log.Error().Err(err).Msg("Could not load audio data")
		s.Close()
		return false
	}
	s.data = data
	return true
}

func (s *Sound) releaseData() {
	if s.data == nil {
		return
	}
	s.mgr.DecrementClientCount(s.data)
	s.data = nil
}

// Close disables the sound for good: playback stops, the asset is checked
// in and the manager forgets the sound. Further calls do nothing.
func (s *Sound) Close() {
	if s.mgr == nil {
		return
	}
	if s.voice != device.NoVoice {
		s.Stop()
	}
	s.releaseData()
	s.mgr.ReleaseSound(s)
	s.mgr = nil
	s.log.Debug().Msg("Sound released")
}

// Closed reports whether the sound has been torn down.
func (s *Sound) Closed() bool {
	return s.mgr == nil
}

// Play starts the sound from the offset set by SetTime, or from 0.
// An inactive sound only remembers that it was asked to play.
func (s *Sound) Play() {
	if s.mgr == nil {
		return
	}
	if !s.active {
		s.paused = true
		return
	}

	s.Stop()

	if !s.requireData() {
		return
	}
	s.voice = s.mgr.StartingSound(s)
	if s.voice == device.NoVoice {
		s.log.Warn().Msg("No voice available, not playing")
		s.releaseData()
		return
	}

	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetRelative(s.voice, !s.positional), "set relative")

	s.SetVolume(s.volume)
	s.Set3DMinDistance(s.minDist)
	s.Set3DMaxDistance(s.maxDist)
	s.Set3DDropOffFactor(s.dropOff)
	s.Set3DAttributes(s.Attributes3D())

	s.playingLoops = s.loops
	s.loopsQueued = 0
	s.loopsCompleted = 0

	rate := s.playRate * s.mgr.PlayRate()
	s.log.Debug().Float64("rate", rate).Float64("start", s.startTime).Msg("Playing")
	s.errcheck(ctx.SetFloat(s.voice, device.ParamPitch, rate), "set pitch")
	s.playingRate = rate

	if s.data.Kind == provider.KindSample {
		s.pushFreshBuffers(ctx)
		if s.mgr == nil {
			return
		}
		s.errcheck(ctx.SetFloat(s.voice, device.ParamSecOffset, s.startTime), "set offset")
		if len(s.queue) > 0 {
			s.queue[0].timeOffset = s.startTime
		}
		s.restartStalledAudio(ctx)
	} else {
		cursor := s.data.Stream
		if cursor.Tell() != s.startTime {
			if err := cursor.Seek(s.startTime); err != nil {
				s.log.Error().Err(err).Msg("Could not seek stream")
			}
		}
		s.pushFreshBuffers(ctx)
		if s.mgr == nil {
			return
		}
		s.restartStalledAudio(ctx)
	}

	s.clock.Reset(s.mgr.Now(), s.startTime, s.playingRate)
	s.currentTime = s.startTime
	s.startTime = 0
}

// Stop halts playback and gives back the voice and the asset.
func (s *Sound) Stop() {
	if s.mgr == nil {
		return
	}

	if s.voice != device.NoVoice {
		ctx := s.mgr.MakeCurrent()
		s.errcheck(ctx.Stop(s.voice), "stop voice")
		s.errcheck(ctx.DetachBuffers(s.voice), "detach buffers")
		for _, qb := range s.queue {
			if !s.data.IsSample(qb.buffer) {
				s.errcheck(ctx.DeleteBuffer(qb.buffer), "delete buffer")
			}
		}
		s.queue = s.queue[:0]
	}

	s.mgr.StoppingSound(s)
	s.voice = device.NoVoice
	s.releaseData()
}

func (s *Sound) finished() {
	s.Stop()
	s.currentTime = s.length
	if s.finishedEvent != "" && s.mgr != nil {
		s.mgr.ThrowEvent(s.finishedEvent)
	}
}

// Update runs one tick of a playing sound: it reclaims consumed buffers,
// refills the queue, restarts a stalled voice and caches the position.
// A sound whose queue has drained finishes.
func (s *Sound) Update() {
	if s.mgr == nil || s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()

	s.pullUsedBuffers(ctx)
	if s.mgr == nil {
		return
	}
	s.pushFreshBuffers(ctx)
	if s.mgr == nil {
		return
	}
	s.restartStalledAudio(ctx)
	s.cacheTime(s.mgr.Now())

	if s.voice == device.NoVoice || len(s.queue) == 0 {
		s.finished()
	}
}

func (s *Sound) cacheTime(now float64) {
	if s.length <= 0 {
		s.currentTime = 0
		return
	}
	t := s.clock.At(now)
	if !s.playingLoops.IsInfinite() && t >= s.length*float64(s.playingLoops.Count()) {
		s.currentTime = s.length
		return
	}
	s.currentTime = math.Mod(t, s.length)
}

// Status reports PLAYING while the sound holds a voice with queued audio,
// as of the last Update.
func (s *Sound) Status() Status {
	if s.voice == device.NoVoice || len(s.queue) == 0 {
		return StatusReady
	}
	return StatusPlaying
}

// SetActive mutes or unmutes the sound. Deactivating a looping sound
// remembers it was playing; reactivating it plays it again from the start.
func (s *Sound) SetActive(active bool) {
	if s.active == active {
		return
	}
	s.active = active
	if active {
		if s.paused && s.loops.IsInfinite() {
			s.paused = false
			s.Play()
		}
		return
	}
	if s.Status() == StatusPlaying {
		if s.loops.IsInfinite() {
			s.paused = true
		}
		s.Stop()
	}
}

func (s *Sound) Active() bool { return s.active }

// Paused reports whether the sound is waiting to resume on SetActive(true).
func (s *Sound) Paused() bool { return s.paused }

// SetLoop switches between infinite looping and a single play.
func (s *Sound) SetLoop(loop bool) {
	if loop {
		s.SetLoopCount(0)
	} else {
		s.SetLoopCount(1)
	}
}

func (s *Sound) Loop() bool { return s.loops.IsInfinite() }

// SetLoopCount sets how many times the next Play repeats the sound.
// 0 loops forever.
func (s *Sound) SetLoopCount(n uint64) {
	if s.mgr == nil {
		return
	}
	if n == 0 || n >= infiniteLoopCount {
		s.loops = Infinite()
		return
	}
	s.loops = Times(n)
}

// LoopCount returns the requested loop count, 0 meaning forever.
func (s *Sound) LoopCount() uint64 { return s.loops.Count() }

// SetTime sets the offset the next Play starts from.
func (s *Sound) SetTime(t float64) { s.startTime = t }

// Time returns the playback position within the sound as of the last Update.
func (s *Sound) Time() float64 {
	if s.mgr == nil {
		return 0
	}
	return s.currentTime
}

func (s *Sound) SetPlayRate(rate float64) { s.playRate = rate }

func (s *Sound) PlayRate() float64 { return s.playRate }

func (s *Sound) Length() float64 { return s.length }

func (s *Sound) Name() string { return s.name }

func (s *Sound) SetFinishedEvent(name string) { s.finishedEvent = name }

func (s *Sound) FinishedEvent() string { return s.finishedEvent }

// QueueDepth returns the number of buffers queued on the device.
func (s *Sound) QueueDepth() int { return len(s.queue) }

// LoopsCompleted returns how many repetitions have finished playing since
// the last Play.
func (s *Sound) LoopsCompleted() uint64 { return s.loopsCompleted }

// PlayingLoops is the repetition count fixed by the last Play.
func (s *Sound) PlayingLoops() Repeats { return s.playingLoops }

func (s *Sound) ClockScale() float64 { return s.clock.Scale() }

// Voice returns the device voice held by the sound, if any.
func (s *Sound) Voice() device.VoiceID { return s.voice }

func (s *Sound) errcheck(err error, op string) {
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Msg("Device call failed")
	}
}
