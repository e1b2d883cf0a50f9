package sound

import (
	"errors"
	"math"

	"github.com/glebovdev/soundq/internal/device"
	"github.com/glebovdev/soundq/internal/provider"
)

const (
	// ChunkBytes is the size of one streamed buffer.
	ChunkBytes = 65536
	// maxSampleRepeats caps how many copies of a static sample are queued at once.
	maxSampleRepeats = 100
	// maxCursorRead caps a single stream read, in seconds of audio.
	maxCursorRead = 60.0
	minQueueDepth = 3
)

type queuedBuffer struct {
	buffer     device.BufferID
	loopIndex  uint64
	timeOffset float64
}

// TargetQueueDepth returns how many stream chunks are kept queued to cover
// bufferingSeconds of audio at the given rate and channel count.
func TargetQueueDepth(bufferingSeconds float64, rate, channels int) int {
	if channels < 1 {
		channels = 1
	}
	space := float64(ChunkBytes / (channels * 2))
	depth := int(bufferingSeconds*float64(rate)/space) + 1
	if depth < minQueueDepth {
		depth = minQueueDepth
	}
	return depth
}

func (s *Sound) queueBuffer(ctx device.Context, buf device.BufferID, loopIndex uint64, timeOffset float64) {
	if err := ctx.QueueBuffer(s.voice, buf); err != nil {
		s.log.Error().Err(err).Msg("Could not load sample buffer into the queue")
		if !s.data.IsSample(buf) {
			s.errcheck(ctx.DeleteBuffer(buf), "delete rejected buffer")
		}
		s.Close()
		return
	}
	s.queue = append(s.queue, queuedBuffer{
		buffer:     buf,
		loopIndex:  loopIndex,
		timeOffset: timeOffset,
	})
}

func (s *Sound) makeBuffer(ctx device.Context, samples, channels, rate int, pcm []byte) device.BufferID {
	buf, err := ctx.GenBuffer()
	if err != nil {
		s.log.Error().Err(err).Msg("Could not allocate a device buffer")
		s.Close()
		return device.NoBuffer
	}

	if err := ctx.BufferData(buf, device.FormatFor(channels), pcm[:samples*channels*2], rate); err != nil {
		s.log.Error().Err(err).Msg("Could not fill device buffer with data")
		s.errcheck(ctx.DeleteBuffer(buf), "delete unfilled buffer")
		s.Close()
		return device.NoBuffer
	}
	return buf
}

// readStreamData fills out with stream audio, rewinding the cursor for
// every repetition that remains. It returns the number of sample frames written.
func (s *Sound) readStreamData(out []byte) int {
	cursor := s.data.Stream
	length := cursor.Length()
	channels := cursor.Channels()
	rate := cursor.Rate()
	frame := channels * 2
	space := len(out) / frame
	fill := 0

	for space > 0 && s.playingLoops.Allows(s.loopsQueued) {
		t := cursor.Tell()
		remain := length - t
		if remain > maxCursorRead {
			remain = maxCursorRead
		}
		samples := int(remain * float64(rate))
		if samples <= 0 {
			if length <= 0 {
				break
			}
			s.loopsQueued++
			if err := cursor.Seek(0); err != nil {
				s.log.Error().Err(err).Msg("Could not rewind stream")
				break
			}
			continue
		}
		if samples > space {
			samples = space
		}
		if err := cursor.ReadSamples(samples, out[fill*frame:]); err != nil {
			s.log.Error().Err(err).Msg("Could not read stream")
			break
		}
		// A decoder may run dry before the length it advertised. Only the
		// frames the cursor moved over count; its position is the real end.
		if got := int(math.Round((cursor.Tell() - t) * float64(rate))); got < samples {
			if got < 0 {
				got = 0
			}
			samples = got
			length = t + float64(got)/float64(rate)
			if length < s.length {
				s.length = length
			}
			s.log.Debug().Float64("end", length).Msg("Stream ended early")
		}
		s.log.Debug().Float64("at", t).Int("samples", samples).Msg("Streaming")
		fill += samples
		space -= samples
	}
	return fill
}

func (s *Sound) pushFreshBuffers(ctx device.Context) {
	if s.data.Kind == provider.KindSample {
		for s.playingLoops.Allows(s.loopsQueued) && len(s.queue) < maxSampleRepeats {
			s.queueBuffer(ctx, s.data.Sample, s.loopsQueued, 0)
			if s.mgr == nil {
				return
			}
			s.loopsQueued++
		}
		return
	}

	cursor := s.data.Stream
	channels := cursor.Channels()
	rate := cursor.Rate()
	fillTo := TargetQueueDepth(s.mgr.BufferingSeconds(), rate, channels)
	if s.scratch == nil {
		s.scratch = make([]byte, ChunkBytes)
	}

	for s.playingLoops.Allows(s.loopsQueued) && len(s.queue) < fillTo {
		loopIndex := s.loopsQueued
		timeOffset := cursor.Tell()
		samples := s.readStreamData(s.scratch)
		if samples == 0 {
			break
		}
		buf := s.makeBuffer(ctx, samples, channels, rate, s.scratch)
		if s.mgr == nil {
			return
		}
		s.queueBuffer(ctx, buf, loopIndex, timeOffset)
		if s.mgr == nil {
			return
		}
	}
}

// pullUsedBuffers reclaims every buffer the device has finished with. The
// start time of each new queue head corrects the clock.
func (s *Sound) pullUsedBuffers(ctx device.Context) {
	for len(s.queue) > 0 {
		buf, err := ctx.UnqueueBuffer(s.voice)
		if err != nil {
			if !errors.Is(err, device.ErrNotProcessed) {
				s.errcheck(err, "unqueue buffer")
			}
			return
		}
		if s.queue[0].buffer != buf {
			s.log.Error().
				Uint32("expected", uint32(s.queue[0].buffer)).
				Uint32("got", uint32(buf)).
				Msg("Corruption in stream queue")
			s.Close()
			return
		}
		popped := s.queue[0]
		s.queue = s.queue[1:]
		s.countCompleted(popped)
		if len(s.queue) > 0 {
			head := s.queue[0]
			s.clock.Correct(s.mgr.Now(), head.timeOffset+float64(head.loopIndex)*s.length)
		}
		if !s.data.IsSample(buf) {
			s.errcheck(ctx.DeleteBuffer(buf), "delete buffer")
		}
	}
}

// countCompleted advances loopsCompleted after popped has been played.
// A sample buffer is always one whole repetition; a stream repetition is
// done once the queue head belongs to a later one, or nothing is left.
func (s *Sound) countCompleted(popped queuedBuffer) {
	var done uint64
	switch {
	case s.data.IsSample(popped.buffer):
		done = popped.loopIndex + 1
	case len(s.queue) > 0:
		done = s.queue[0].loopIndex
	default:
		done = s.loopsQueued
	}
	if done > s.loopsCompleted {
		s.loopsCompleted = done
	}
}

func (s *Sound) restartStalledAudio(ctx device.Context) {
	if len(s.queue) == 0 {
		return
	}
	state, err := ctx.State(s.voice)
	if err != nil {
		s.errcheck(err, "query state")
		return
	}
	if state != device.VoicePlaying {
		s.errcheck(ctx.Play(s.voice), "play voice")
	}
}
