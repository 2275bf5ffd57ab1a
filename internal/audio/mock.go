package audio

import (
	"sync"
	"time"

	"github.com/llehouerou/ripple/internal/media"
)

var _ Sink = (*Mock)(nil)

// Mock is a test sink. Its clock advances with wall time while resumed but
// never past the audio enqueued so far, like a device that ran dry.
type Mock struct {
	mu        sync.Mutex
	params    media.AudioParams
	enqueued  [][]byte
	queuedSec float64
	played    float64
	since     time.Time
	running   bool
	paused    int
	resumed   int
	destroyed bool
}

// NewMock creates a running mock sink.
func NewMock(a media.AudioParams) *Mock {
	return &Mock{params: a, since: time.Now(), running: true}
}

// MockFactory records every sink it creates.
type MockFactory struct {
	mu    sync.Mutex
	sinks []*Mock
	Err   error
}

// New implements Factory.
func (f *MockFactory) New(a media.AudioParams) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	m := NewMock(a)
	f.sinks = append(f.sinks, m)
	return m, nil
}

// Sinks returns the sinks created so far.
func (f *MockFactory) Sinks() []*Mock {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Mock(nil), f.sinks...)
}

// Last returns the most recent sink, or nil.
func (f *MockFactory) Last() *Mock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sinks) == 0 {
		return nil
	}
	return f.sinks[len(f.sinks)-1]
}

func (m *Mock) advance() {
	if m.running {
		now := time.Now()
		m.played = min(m.played+now.Sub(m.since).Seconds(), m.queuedSec)
		m.since = now
	}
}

func (m *Mock) Enqueue(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.enqueued = append(m.enqueued, p)
	if fb := m.params.FrameBytes(); fb > 0 && m.params.SampleRate > 0 {
		m.queuedSec += float64(len(p)/fb) / float64(m.params.SampleRate)
	}
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.running = false
	m.paused++
}

func (m *Mock) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		m.running = true
		m.since = time.Now()
	}
	m.resumed++
}

func (m *Mock) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.running = false
	m.destroyed = true
}

func (m *Mock) ClockSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	return m.played
}

// Enqueued returns the buffers received.
func (m *Mock) Enqueued() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.enqueued...)
}

// Destroyed reports whether Destroy was called.
func (m *Mock) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// PauseCount returns the number of Pause calls.
func (m *Mock) PauseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// ResumeCount returns the number of Resume calls.
func (m *Mock) ResumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumed
}

// Params returns the format the sink was built for.
func (m *Mock) Params() media.AudioParams {
	return m.params
}
