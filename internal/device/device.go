// Package device defines the buffer-queue audio device boundary used by sounds.
//
// A Context is the "current" device: callers obtain one from their manager
// before touching buffers or voices, and every device call goes through it.
package device

import (
	"errors"
	"fmt"
)

// BufferID identifies a block of PCM data uploaded to the device.
type BufferID uint32

// VoiceID identifies a playback voice (a source) on the device.
type VoiceID uint32

const (
	// NoBuffer is the invalid buffer handle.
	NoBuffer BufferID = 0
	// NoVoice is the invalid voice handle.
	NoVoice VoiceID = 0
)

var (
	ErrNotProcessed   = errors.New("no processed buffers")
	ErrUnknownBuffer  = errors.New("unknown buffer")
	ErrUnknownVoice   = errors.New("unknown voice")
	ErrBufferInUse    = errors.New("buffer is queued on a voice")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidFormat  = errors.New("invalid buffer format")
	ErrVoiceNotIdle   = errors.New("voice is playing")
	ErrOutOfResources = errors.New("out of device resources")
)

// Format is the sample layout of a buffer.
type Format int

const (
	FormatMono16 Format = iota
	FormatStereo16
)

// FormatFor returns the PCM16 format for a channel count.
func FormatFor(channels int) Format {
	if channels > 1 {
		return FormatStereo16
	}
	return FormatMono16
}

// Channels returns the number of interleaved channels in the format.
func (f Format) Channels() int {
	if f == FormatStereo16 {
		return 2
	}
	return 1
}

func (f Format) String() string {
	switch f {
	case FormatMono16:
		return "MONO16"
	case FormatStereo16:
		return "STEREO16"
	default:
		return "UNKNOWN"
	}
}

// VoiceState mirrors the playback state the device reports for a voice.
type VoiceState int

const (
	VoiceInitial VoiceState = iota
	VoicePlaying
	VoicePaused
	VoiceStopped
)

func (s VoiceState) String() string {
	switch s {
	case VoiceInitial:
		return "INITIAL"
	case VoicePlaying:
		return "PLAYING"
	case VoicePaused:
		return "PAUSED"
	case VoiceStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Param selects a voice property for SetFloat / SetVector.
type Param int

const (
	ParamGain Param = iota
	ParamPitch
	ParamReferenceDistance
	ParamMaxDistance
	ParamRolloff
	ParamSecOffset
	ParamPosition
	ParamVelocity
)

func (p Param) String() string {
	switch p {
	case ParamGain:
		return "gain"
	case ParamPitch:
		return "pitch"
	case ParamReferenceDistance:
		return "reference_distance"
	case ParamMaxDistance:
		return "max_distance"
	case ParamRolloff:
		return "rolloff"
	case ParamSecOffset:
		return "sec_offset"
	case ParamPosition:
		return "position"
	case ParamVelocity:
		return "velocity"
	default:
		return fmt.Sprintf("param(%d)", int(p))
	}
}

// Vec3 is a position or velocity in device coordinates (Y up, Z towards the viewer).
type Vec3 struct {
	X, Y, Z float64
}

// Context is the device capability a sound uses for all buffer and voice work.
type Context interface {
	GenBuffer() (BufferID, error)
	// BufferData uploads little-endian PCM16 data into a buffer.
	BufferData(id BufferID, format Format, pcm []byte, rate int) error
	DeleteBuffer(id BufferID) error

	GenVoice() (VoiceID, error)
	DeleteVoice(v VoiceID) error

	QueueBuffer(v VoiceID, id BufferID) error
	// UnqueueBuffer removes the oldest consumed buffer from the voice queue.
	// It returns ErrNotProcessed when the device has not finished any buffer.
	UnqueueBuffer(v VoiceID) (BufferID, error)
	// DetachBuffers drops every buffer from an idle voice's queue.
	DetachBuffers(v VoiceID) error

	Play(v VoiceID) error
	Stop(v VoiceID) error
	State(v VoiceID) (VoiceState, error)

	SetFloat(v VoiceID, p Param, value float64) error
	SetVector(v VoiceID, p Param, value Vec3) error
	// SetRelative places the voice relative to the listener instead of the world.
	SetRelative(v VoiceID, relative bool) error
}
