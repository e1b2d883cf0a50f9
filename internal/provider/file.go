package provider

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/glebovdev/soundq/internal/api"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const decodeChunkFrames = 4096

// File is a Source backed by an mp3 or wav file on disk or at an http(s) URL.
// Remote files are fetched once and kept decoded in a beep.Buffer.
type File struct {
	path    string
	fetcher *api.Client

	mu     sync.Mutex
	remote *beep.Buffer
	title  string
	tagged bool
}

// NewFile creates a file source. fetcher may be nil for local paths.
func NewFile(path string, fetcher *api.Client) *File {
	return &File{path: path, fetcher: fetcher}
}

func (f *File) Name() string { return f.path }

// Title returns the title tag of the file, falling back to its name
// without extension. Remote files report their tag once they have been opened.
func (f *File) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.tagged && !api.IsRemote(f.path) {
		f.tagged = true
		if file, err := os.Open(f.path); err == nil {
			f.title = readTitle(file)
			file.Close()
		}
	}
	if f.title == "" {
		base := filepath.Base(stripQuery(f.path))
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return f.title
}

func readTitle(r io.ReadSeeker) string {
	m, err := tag.ReadFrom(r)
	if err != nil {
		log.Debug().Err(err).Msg("No tags in audio file")
		return ""
	}
	if m.Artist() != "" && m.Title() != "" {
		return m.Artist() + " - " + m.Title()
	}
	return m.Title()
}

func (f *File) Open() (Cursor, error) {
	if api.IsRemote(f.path) {
		return f.openRemote()
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	streamer, format, err := decode(f.path, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return NewBeepCursor(streamer, format), nil
}

func (f *File) openRemote() (Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.remote == nil {
		if f.fetcher == nil {
			return nil, fmt.Errorf("no HTTP client configured for %s", f.path)
		}
		body, err := f.fetcher.Fetch(f.path)
		if err != nil {
			return nil, err
		}
		if f.title == "" {
			f.title = readTitle(bytes.NewReader(body))
		}
		streamer, format, err := decode(f.path, nopCloser{bytes.NewReader(body)})
		if err != nil {
			return nil, err
		}
		buffer := beep.NewBuffer(format)
		buffer.Append(streamer)
		if err := streamer.Err(); err != nil {
			streamer.Close()
			return nil, fmt.Errorf("failed to decode %s: %w", f.path, err)
		}
		streamer.Close()
		f.remote = buffer
		log.Debug().Str("url", f.path).Int("frames", buffer.Len()).Msg("Remote asset decoded")
	}

	streamer := f.remote.Streamer(0, f.remote.Len())
	return NewBeepCursor(seekNopCloser{streamer}, f.remote.Format()), nil
}

func decode(name string, rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(stripQuery(name)))
	switch ext {
	case ".mp3":
		s, format, err := mp3.Decode(rc)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode MP3: %w", err)
		}
		return s, format, nil
	case ".wav":
		oc := &onceCloser{ReadSeekCloser: rc}
		s, format, err := wav.Decode(oc)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode WAV: %w", err)
		}
		return closeWith{s, oc}, format, nil
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

type seekNopCloser struct {
	beep.StreamSeeker
}

func (seekNopCloser) Close() error { return nil }

type onceCloser struct {
	io.ReadSeekCloser
	once sync.Once
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() { o.err = o.ReadSeekCloser.Close() })
	return o.err
}

// closeWith makes sure the underlying reader is closed with the decoder.
type closeWith struct {
	beep.StreamSeekCloser
	rc io.Closer
}

func (c closeWith) Close() error {
	err := c.StreamSeekCloser.Close()
	if cerr := c.rc.Close(); err == nil {
		err = cerr
	}
	return err
}

// BeepCursor adapts a beep.StreamSeekCloser to Cursor, converting the
// float samples back to PCM16.
type BeepCursor struct {
	s        beep.StreamSeekCloser
	format   beep.Format
	channels int
	scratch  [][2]float64
	closed   bool
	// end is the frame where decoding actually ran out, -1 until then.
	end int
}

func NewBeepCursor(s beep.StreamSeekCloser, format beep.Format) *BeepCursor {
	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}
	return &BeepCursor{
		s:        s,
		format:   format,
		channels: channels,
		scratch:  make([][2]float64, decodeChunkFrames),
		end:      -1,
	}
}

func (c *BeepCursor) Tell() float64 {
	return float64(c.s.Position()) / float64(c.format.SampleRate)
}

func (c *BeepCursor) Seek(t float64) error {
	if c.closed {
		return ErrClosed
	}
	pos := int(math.Round(t * float64(c.format.SampleRate)))
	if pos < 0 {
		pos = 0
	}
	if frames := c.frames(); pos > frames {
		pos = frames
	}
	if err := c.s.Seek(pos); err != nil {
		return fmt.Errorf("failed to seek to %.3fs: %w", t, err)
	}
	return nil
}

// Length is the advertised length, cut short once a read has found the
// data to end earlier.
func (c *BeepCursor) Length() float64 {
	return float64(c.frames()) / float64(c.format.SampleRate)
}

func (c *BeepCursor) frames() int {
	if c.end >= 0 && c.end < c.s.Len() {
		return c.end
	}
	return c.s.Len()
}

func (c *BeepCursor) Channels() int { return c.channels }

func (c *BeepCursor) Rate() int { return int(c.format.SampleRate) }

func (c *BeepCursor) ReadSamples(n int, out []byte) error {
	if c.closed {
		return ErrClosed
	}
	frame := c.channels * 2
	if len(out) < n*frame {
		return fmt.Errorf("output too small: %d bytes for %d frames", len(out), n)
	}

	filled := 0
	for filled < n {
		want := n - filled
		if want > len(c.scratch) {
			want = len(c.scratch)
		}
		got, ok := c.s.Stream(c.scratch[:want])
		for i := 0; i < got; i++ {
			putFrame(out[(filled+i)*frame:], c.scratch[i], c.channels)
		}
		filled += got
		if !ok || got == 0 {
			break
		}
	}

	if filled < n {
		c.end = c.s.Position()
	}

	// Pad past the end with silence.
	for i := filled * frame; i < n*frame; i++ {
		out[i] = 0
	}
	return c.s.Err()
}

func (c *BeepCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.s.Close()
}

func putFrame(dst []byte, sample [2]float64, channels int) {
	if channels == 1 {
		putSample(dst, (sample[0]+sample[1])/2)
		return
	}
	putSample(dst, sample[0])
	putSample(dst[2:], sample[1])
}

func putSample(dst []byte, v float64) {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	s := int16(v * math.MaxInt16)
	dst[0] = byte(s)
	dst[1] = byte(uint16(s) >> 8)
}
