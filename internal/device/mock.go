package device

import (
	"sync"
)

// MockBuffer is the mock's record of an uploaded buffer.
type MockBuffer struct {
	Format Format
	Rate   int
	Bytes  int
	queued int
}

type mockVoice struct {
	queue     []BufferID
	processed int
	state     VoiceState
	floats    map[Param]float64
	vectors   map[Param]Vec3
	relative  bool
}

// Mock is an in-memory Context for tests. The device never consumes buffers
// on its own; tests advance playback with Consume.
type Mock struct {
	mu         sync.Mutex
	nextBuffer BufferID
	nextVoice  VoiceID
	buffers    map[BufferID]*MockBuffer
	voices     map[VoiceID]*mockVoice
	calls      map[string]int

	// FailGenBuffer, FailBufferData and FailQueue are returned by the
	// matching call while set.
	FailGenBuffer  error
	FailBufferData error
	FailQueue      error
	// QueueLimit rejects QueueBuffer once a voice holds that many buffers.
	QueueLimit int
	// CorruptUnqueue, when set, is reported by the next UnqueueBuffer
	// instead of the real head.
	CorruptUnqueue BufferID
}

func NewMock() *Mock {
	return &Mock{
		buffers: make(map[BufferID]*MockBuffer),
		voices:  make(map[VoiceID]*mockVoice),
		calls:   make(map[string]int),
	}
}

func (m *Mock) record(name string) {
	m.calls[name]++
}

// Calls returns how many times the named method has been called.
func (m *Mock) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls returns the number of Context calls made so far.
func (m *Mock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *Mock) GenBuffer() (BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GenBuffer")

	if m.FailGenBuffer != nil {
		return NoBuffer, m.FailGenBuffer
	}
	m.nextBuffer++
	m.buffers[m.nextBuffer] = &MockBuffer{}
	return m.nextBuffer, nil
}

func (m *Mock) BufferData(id BufferID, format Format, pcm []byte, rate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("BufferData")

	if m.FailBufferData != nil {
		return m.FailBufferData
	}
	b, ok := m.buffers[id]
	if !ok {
		return ErrUnknownBuffer
	}
	if len(pcm)%(2*format.Channels()) != 0 {
		return ErrInvalidFormat
	}
	b.Format = format
	b.Rate = rate
	b.Bytes = len(pcm)
	return nil
}

func (m *Mock) DeleteBuffer(id BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteBuffer")

	b, ok := m.buffers[id]
	if !ok {
		return ErrUnknownBuffer
	}
	if b.queued > 0 {
		return ErrBufferInUse
	}
	delete(m.buffers, id)
	return nil
}

func (m *Mock) GenVoice() (VoiceID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GenVoice")

	m.nextVoice++
	m.voices[m.nextVoice] = &mockVoice{
		floats:  make(map[Param]float64),
		vectors: make(map[Param]Vec3),
	}
	return m.nextVoice, nil
}

func (m *Mock) DeleteVoice(v VoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteVoice")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	m.detach(mv)
	delete(m.voices, v)
	return nil
}

func (m *Mock) detach(mv *mockVoice) {
	for _, id := range mv.queue {
		if b, ok := m.buffers[id]; ok {
			b.queued--
		}
	}
	mv.queue = nil
	mv.processed = 0
}

func (m *Mock) QueueBuffer(v VoiceID, id BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("QueueBuffer")

	if m.FailQueue != nil {
		return m.FailQueue
	}
	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	b, ok := m.buffers[id]
	if !ok {
		return ErrUnknownBuffer
	}
	if m.QueueLimit > 0 && len(mv.queue) >= m.QueueLimit {
		return ErrOutOfResources
	}
	b.queued++
	mv.queue = append(mv.queue, id)
	return nil
}

func (m *Mock) UnqueueBuffer(v VoiceID) (BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UnqueueBuffer")

	mv, ok := m.voices[v]
	if !ok {
		return NoBuffer, ErrUnknownVoice
	}
	if mv.processed == 0 {
		return NoBuffer, ErrNotProcessed
	}
	id := mv.queue[0]
	mv.queue = mv.queue[1:]
	mv.processed--
	if b, ok := m.buffers[id]; ok {
		b.queued--
	}
	if m.CorruptUnqueue != NoBuffer {
		id = m.CorruptUnqueue
		m.CorruptUnqueue = NoBuffer
	}
	return id, nil
}

func (m *Mock) DetachBuffers(v VoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DetachBuffers")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	if mv.state == VoicePlaying || mv.state == VoicePaused {
		return ErrVoiceNotIdle
	}
	m.detach(mv)
	return nil
}

func (m *Mock) Play(v VoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Play")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	if mv.state == VoiceStopped {
		mv.processed = 0
	}
	if len(mv.queue) == 0 {
		mv.state = VoiceStopped
		return nil
	}
	mv.state = VoicePlaying
	return nil
}

func (m *Mock) Stop(v VoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	mv.state = VoiceStopped
	mv.processed = len(mv.queue)
	return nil
}

func (m *Mock) State(v VoiceID) (VoiceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("State")

	mv, ok := m.voices[v]
	if !ok {
		return VoiceInitial, ErrUnknownVoice
	}
	return mv.state, nil
}

func (m *Mock) SetFloat(v VoiceID, p Param, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetFloat")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	if p == ParamPitch && value <= 0 {
		return ErrInvalidValue
	}
	mv.floats[p] = value
	return nil
}

func (m *Mock) SetVector(v VoiceID, p Param, value Vec3) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetVector")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	mv.vectors[p] = value
	return nil
}

func (m *Mock) SetRelative(v VoiceID, relative bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetRelative")

	mv, ok := m.voices[v]
	if !ok {
		return ErrUnknownVoice
	}
	mv.relative = relative
	return nil
}

// Consume marks up to n more queued buffers as played. A playing voice
// that runs out of pending buffers stops, like a real device on underrun.
func (m *Mock) Consume(v VoiceID, n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	mv, ok := m.voices[v]
	if !ok {
		return 0
	}
	pending := len(mv.queue) - mv.processed
	if n > pending {
		n = pending
	}
	mv.processed += n
	if mv.processed == len(mv.queue) && mv.state == VoicePlaying {
		mv.state = VoiceStopped
	}
	return n
}

// SetState forces a voice state, e.g. to simulate a stalled device.
func (m *Mock) SetState(v VoiceID, state VoiceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mv, ok := m.voices[v]; ok {
		mv.state = state
	}
}

// Queue returns a copy of the voice's queued buffer handles, oldest first.
func (m *Mock) Queue(v VoiceID) []BufferID {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.voices[v]
	if !ok {
		return nil
	}
	out := make([]BufferID, len(mv.queue))
	copy(out, mv.queue)
	return out
}

// Float returns the last value set for a scalar parameter.
func (m *Mock) Float(v VoiceID, p Param) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.voices[v]
	if !ok {
		return 0, false
	}
	value, ok := mv.floats[p]
	return value, ok
}

// Vector returns the last value set for a vector parameter.
func (m *Mock) Vector(v VoiceID, p Param) (Vec3, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.voices[v]
	if !ok {
		return Vec3{}, false
	}
	value, ok := mv.vectors[p]
	return value, ok
}

func (m *Mock) Relative(v VoiceID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.voices[v]
	return ok && mv.relative
}

// Buffer returns the mock's record of a live buffer.
func (m *Mock) Buffer(id BufferID) (MockBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[id]
	if !ok {
		return MockBuffer{}, false
	}
	return *b, true
}

// LiveBuffers returns the number of buffers not yet deleted.
func (m *Mock) LiveBuffers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// LiveVoices returns the number of voices not yet deleted.
func (m *Mock) LiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}
