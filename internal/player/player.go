// Package player implements the buffer-queue device on the speaker: every
// voice plays its queued PCM through a resampler and a volume stage, and
// all voices are mixed into one speaker stream.
package player

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/glebovdev/soundq/internal/device"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	SpeakerBufferSize = time.Millisecond * 50
	ResampleQuality   = 4

	// drainFrames is how long, in output frames at ratio 1, a voice keeps
	// feeding the mixer after its queue ran dry. The resampler reads ahead
	// of what it has played and needs this to flush.
	drainFrames = 1024
)

type pcmBuffer struct {
	samples [][2]float64
	rate    beep.SampleRate
	// queued counts the voice queues holding this buffer.
	queued int
}

type voice struct {
	queue     []device.BufferID
	processed int
	pos       int
	state     device.VoiceState

	gain     float64
	pitch    float64
	refDist  float64
	maxDist  float64
	rolloff  float64
	position device.Vec3
	velocity device.Vec3
	relative bool

	// pendingOffset is a start offset in seconds applied on the next Play.
	pendingOffset float64
	hasOffset     bool

	resampler *beep.Resampler
	volume    *effects.Volume
	draining  int
}

// Device plays voices on the speaker. All methods and the speaker's pull
// serialize on one mutex.
type Device struct {
	mu      sync.Mutex
	format  beep.Format
	mixer   beep.Mixer
	buffers map[device.BufferID]*pcmBuffer
	voices  map[device.VoiceID]*voice

	nextBuffer device.BufferID
	nextVoice  device.VoiceID
}

var _ device.Context = (*Device)(nil)

// NewDevice initializes the speaker at sampleRate and starts mixing.
func NewDevice(sampleRate beep.SampleRate) (*Device, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if err := initSpeaker(sampleRate); err != nil {
		return nil, err
	}

	d := newDevice(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2})
	speaker.Play(d)
	return d, nil
}

func initSpeaker(sampleRate beep.SampleRate) error {
	err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize))
	if err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", sampleRate, SpeakerBufferSize)
	return nil
}

func newDevice(format beep.Format) *Device {
	return &Device{
		format:  format,
		buffers: make(map[device.BufferID]*pcmBuffer),
		voices:  make(map[device.VoiceID]*voice),
	}
}

// Close stops the speaker output.
func (d *Device) Close() {
	speaker.Clear()
	log.Debug().Msg("Speaker stopped")
}

// Format returns the output format.
func (d *Device) Format() beep.Format { return d.format }

func (d *Device) GenBuffer() (device.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextBuffer++
	d.buffers[d.nextBuffer] = &pcmBuffer{}
	return d.nextBuffer, nil
}

func (d *Device) BufferData(id device.BufferID, format device.Format, pcm []byte, rate int) error {
	channels := format.Channels()
	if len(pcm)%(2*channels) != 0 || rate <= 0 {
		return device.ErrInvalidFormat
	}
	samples := decodePCM16(pcm, channels)

	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return device.ErrUnknownBuffer
	}
	if b.queued > 0 {
		return device.ErrBufferInUse
	}
	b.samples = samples
	b.rate = beep.SampleRate(rate)
	return nil
}

func decodePCM16(pcm []byte, channels int) [][2]float64 {
	frames := len(pcm) / (2 * channels)
	out := make([][2]float64, frames)
	for i := range out {
		off := i * 2 * channels
		left := float64(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 32768
		right := left
		if channels > 1 {
			right = float64(int16(binary.LittleEndian.Uint16(pcm[off+2:]))) / 32768
		}
		out[i] = [2]float64{left, right}
	}
	return out
}

func (d *Device) DeleteBuffer(id device.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return device.ErrUnknownBuffer
	}
	if b.queued > 0 {
		return device.ErrBufferInUse
	}
	delete(d.buffers, id)
	return nil
}

func (d *Device) GenVoice() (device.VoiceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextVoice++
	d.voices[d.nextVoice] = &voice{
		state:   device.VoiceInitial,
		gain:    1,
		pitch:   1,
		refDist: 1,
		maxDist: math.MaxFloat64,
		rolloff: 1,
	}
	return d.nextVoice, nil
}

func (d *Device) DeleteVoice(v device.VoiceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	d.detach(vc)
	delete(d.voices, v)
	return nil
}

func (d *Device) detach(vc *voice) {
	for _, id := range vc.queue {
		if b, ok := d.buffers[id]; ok {
			b.queued--
		}
	}
	vc.queue = nil
	vc.processed = 0
	vc.pos = 0
}

func (d *Device) QueueBuffer(v device.VoiceID, id device.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	b, ok := d.buffers[id]
	if !ok {
		return device.ErrUnknownBuffer
	}
	b.queued++
	vc.queue = append(vc.queue, id)
	return nil
}

func (d *Device) UnqueueBuffer(v device.VoiceID) (device.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.NoBuffer, device.ErrUnknownVoice
	}
	if vc.processed == 0 {
		return device.NoBuffer, device.ErrNotProcessed
	}
	id := vc.queue[0]
	vc.queue = vc.queue[1:]
	vc.processed--
	if b, ok := d.buffers[id]; ok {
		b.queued--
	}
	return id, nil
}

func (d *Device) DetachBuffers(v device.VoiceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	if vc.state == device.VoicePlaying {
		return device.ErrVoiceNotIdle
	}
	d.detach(vc)
	return nil
}

func (d *Device) Play(v device.VoiceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}

	switch vc.state {
	case device.VoicePlaying:
		return nil
	case device.VoicePaused:
		vc.state = device.VoicePlaying
		return nil
	}

	vc.processed = 0
	vc.pos = 0
	if vc.hasOffset {
		d.seek(vc, vc.pendingOffset)
		vc.hasOffset = false
	}
	d.startChain(vc)
	vc.state = device.VoicePlaying
	return nil
}

// startChain builds a fresh resampler and volume stage over the voice queue.
func (d *Device) startChain(vc *voice) {
	feed := &queueFeed{dev: d, voice: vc}
	vc.resampler = beep.ResampleRatio(ResampleQuality, d.ratio(vc), feed)
	vc.volume = &effects.Volume{
		Streamer: vc.resampler,
		Base:     2,
	}
	vc.draining = 0
	d.applyGain(vc)
}

func (d *Device) Stop(v device.VoiceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	vc.state = device.VoiceStopped
	vc.processed = len(vc.queue)
	vc.pos = 0
	vc.draining = 0
	vc.hasOffset = false
	return nil
}

func (d *Device) State(v device.VoiceID) (device.VoiceState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.VoiceInitial, device.ErrUnknownVoice
	}
	return vc.state, nil
}

func (d *Device) SetFloat(v device.VoiceID, p device.Param, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	if math.IsNaN(value) || value < 0 {
		return device.ErrInvalidValue
	}

	switch p {
	case device.ParamGain:
		vc.gain = value
	case device.ParamPitch:
		if value == 0 {
			return device.ErrInvalidValue
		}
		vc.pitch = value
		if vc.resampler != nil {
			vc.resampler.SetRatio(d.ratio(vc))
		}
	case device.ParamReferenceDistance:
		vc.refDist = value
	case device.ParamMaxDistance:
		vc.maxDist = value
	case device.ParamRolloff:
		vc.rolloff = value
	case device.ParamSecOffset:
		if vc.state == device.VoicePlaying || vc.state == device.VoicePaused {
			d.seek(vc, value)
		} else {
			vc.pendingOffset = value
			vc.hasOffset = true
		}
	default:
		return device.ErrInvalidValue
	}
	d.applyGain(vc)
	return nil
}

func (d *Device) SetVector(v device.VoiceID, p device.Param, value device.Vec3) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	switch p {
	case device.ParamPosition:
		vc.position = value
	case device.ParamVelocity:
		vc.velocity = value
	default:
		return device.ErrInvalidValue
	}
	d.applyGain(vc)
	return nil
}

func (d *Device) SetRelative(v device.VoiceID, relative bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc, ok := d.voices[v]
	if !ok {
		return device.ErrUnknownVoice
	}
	vc.relative = relative
	d.applyGain(vc)
	return nil
}

// seek positions the voice t seconds into its unplayed queue, counting the
// buffers it skips as processed.
func (d *Device) seek(vc *voice, t float64) {
	vc.pos = 0
	remaining := t
	for vc.processed < len(vc.queue) {
		b := d.buffers[vc.queue[vc.processed]]
		if b == nil || b.rate <= 0 {
			vc.processed++
			continue
		}
		frames := int(remaining * float64(b.rate))
		if frames < len(b.samples) {
			vc.pos = frames
			return
		}
		remaining -= float64(len(b.samples)) / float64(b.rate)
		vc.processed++
	}
}

// ratio is the resampling step for the voice's current buffer.
func (d *Device) ratio(vc *voice) float64 {
	rate := d.format.SampleRate
	if vc.processed < len(vc.queue) {
		if b := d.buffers[vc.queue[vc.processed]]; b != nil && b.rate > 0 {
			rate = b.rate
		}
	}
	return resampleRatio(vc.pitch, rate, d.format.SampleRate)
}

func resampleRatio(pitch float64, bufferRate, outputRate beep.SampleRate) float64 {
	if outputRate <= 0 {
		return pitch
	}
	return pitch * float64(bufferRate) / float64(outputRate)
}

func (d *Device) applyGain(vc *voice) {
	if vc.volume == nil {
		return
	}
	g := vc.gain
	if !vc.relative {
		g *= attenuation(vc.position, vc.refDist, vc.maxDist, vc.rolloff)
	}
	if g <= 0 {
		vc.volume.Silent = true
		vc.volume.Volume = 0
		return
	}
	vc.volume.Silent = false
	vc.volume.Volume = math.Log2(g)
}

// attenuation is the inverse distance clamped model with the listener at
// the origin.
func attenuation(pos device.Vec3, ref, max, rolloff float64) float64 {
	dist := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if max < ref {
		max = ref
	}
	dist = math.Max(dist, ref)
	dist = math.Min(dist, max)
	denom := ref + rolloff*(dist-ref)
	if denom <= 0 {
		return 1
	}
	return ref / denom
}

// Stream mixes every playing voice. It always fills samples so the speaker
// keeps running when nothing plays.
func (d *Device) Stream(samples [][2]float64) (n int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mixer.Clear()
	for _, vc := range d.voices {
		if vc.volume == nil {
			continue
		}
		if vc.state == device.VoicePlaying || vc.draining > 0 {
			d.mixer.Add(vc.volume)
		}
	}
	for i := range samples {
		samples[i] = [2]float64{}
	}
	if d.mixer.Len() > 0 {
		d.mixer.Stream(samples)
	}

	for _, vc := range d.voices {
		if vc.state != device.VoicePlaying && vc.draining > 0 {
			vc.draining -= len(samples)
			if vc.draining <= 0 {
				vc.draining = 0
				vc.volume = nil
				vc.resampler = nil
			}
		}
	}
	return len(samples), true
}

func (d *Device) Err() error { return nil }

// queueFeed streams a voice's queued buffers at their own rate. Once the
// queue runs dry the voice stops and the feed pads with silence.
type queueFeed struct {
	dev   *Device
	voice *voice
}

func (f *queueFeed) Stream(samples [][2]float64) (n int, ok bool) {
	vc := f.voice
	filled := 0
	for filled < len(samples) && vc.state == device.VoicePlaying && vc.processed < len(vc.queue) {
		b := f.dev.buffers[vc.queue[vc.processed]]
		if b == nil || vc.pos >= len(b.samples) {
			vc.processed++
			vc.pos = 0
			continue
		}
		c := copy(samples[filled:], b.samples[vc.pos:])
		filled += c
		vc.pos += c
	}

	if vc.state == device.VoicePlaying && vc.processed >= len(vc.queue) {
		vc.state = device.VoiceStopped
		vc.pos = 0
		ratio := f.dev.ratio(vc)
		if ratio <= 0 {
			ratio = 1
		}
		vc.draining = int(drainFrames / ratio)
		if vc.draining < 1 {
			vc.draining = 1
		}
	}

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (f *queueFeed) Err() error { return nil }
