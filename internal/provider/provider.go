// Package provider defines where a sound's PCM comes from: a fully decoded
// sample uploaded once to the device, or a cursor streamed chunk by chunk.
package provider

import (
	"errors"
	"math"
	"path/filepath"

	"github.com/glebovdev/soundq/internal/device"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrClosed            = errors.New("cursor is closed")
)

// Cursor is a seekable reader of interleaved little-endian PCM16 audio.
// Times are in seconds within the asset.
type Cursor interface {
	Tell() float64
	Seek(t float64) error
	Length() float64
	Channels() int
	Rate() int
	// ReadSamples fills out with n sample frames (n*Channels()*2 bytes).
	// Frames past the end of the asset are written as silence.
	ReadSamples(n int, out []byte) error
	Close() error
}

// Source is an audio asset that can be opened into fresh cursors.
type Source interface {
	// Name identifies the asset; sources with the same name share sample data.
	Name() string
	Open() (Cursor, error)
}

// Basename returns the file part of a source name.
func Basename(src Source) string {
	return filepath.Base(src.Name())
}

// Titled is implemented by sources that carry a display title.
type Titled interface {
	Title() string
}

// Title returns the display title of src, or its basename.
func Title(src Source) string {
	if t, ok := src.(Titled); ok {
		if title := t.Title(); title != "" {
			return title
		}
	}
	return Basename(src)
}

// Kind tags which payload of Data is valid.
type Kind int

const (
	KindSample Kind = iota
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindSample:
		return "SAMPLE"
	case KindStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Data is the checked-out audio of one asset. For KindSample, Sample is a
// device buffer holding the whole asset and may be shared by many sounds;
// for KindStream, Stream is a cursor owned by exactly one sound.
type Data struct {
	Kind     Kind
	Name     string
	Sample   device.BufferID
	Stream   Cursor
	Channels int
	Rate     int
	Length   float64
}

// NewSampleData describes a fully uploaded asset.
func NewSampleData(name string, buf device.BufferID, channels, rate int, length float64) *Data {
	return &Data{
		Kind:     KindSample,
		Name:     name,
		Sample:   buf,
		Channels: channels,
		Rate:     rate,
		Length:   length,
	}
}

// NewStreamData wraps a cursor for streaming playback.
func NewStreamData(name string, c Cursor) *Data {
	return &Data{
		Kind:     KindStream,
		Name:     name,
		Stream:   c,
		Channels: c.Channels(),
		Rate:     c.Rate(),
		Length:   c.Length(),
	}
}

// IsSample reports whether buf is this data's shared sample buffer.
func (d *Data) IsSample(buf device.BufferID) bool {
	return d != nil && d.Kind == KindSample && buf != device.NoBuffer && buf == d.Sample
}

// ReadAll decodes the remainder of a cursor into one PCM16 block and
// returns it with its frame count.
func ReadAll(c Cursor) ([]byte, int, error) {
	start := c.Tell()
	frames := int(math.Round((c.Length() - start) * float64(c.Rate())))
	if frames < 0 {
		frames = 0
	}
	out := make([]byte, frames*c.Channels()*2)
	if frames == 0 {
		return out, 0, nil
	}
	if err := c.ReadSamples(frames, out); err != nil {
		return nil, 0, err
	}
	// Drop the padding when the data ended before the advertised length.
	if got := int(math.Round((c.Tell() - start) * float64(c.Rate()))); got >= 0 && got < frames {
		frames = got
		out = out[:frames*c.Channels()*2]
	}
	return out, frames, nil
}
