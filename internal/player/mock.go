package player

import (
	"sync"
	"time"
)

var _ Interface = (*Mock)(nil)

// Mock is a test double for Controller. It follows the control state
// machine but runs no pipeline; tests drive reports with Report.
type Mock struct {
	mu        sync.Mutex
	state     State
	req       PlayRequest
	position  time.Duration
	duration  time.Duration
	playCalls []string
	seekCalls []int64
	playErr   Code
}

// NewMock creates an idle mock.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Play(req PlayRequest) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls = append(m.playCalls, req.URL)
	if m.playErr != CodeSuccess {
		return result(m.playErr)
	}
	switch m.state {
	case Pausing:
		m.state = Playing
	case Idle:
		m.req = req
		m.state = Playing
	}
	return result(CodeSuccess)
}

func (m *Mock) Pause() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Playing {
		return result(CodeNotPlaying)
	}
	m.state = Pausing
	return result(CodeSuccess)
}

func (m *Mock) Resume() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Pausing {
		return result(CodeNotPausing)
	}
	m.state = Playing
	return result(CodeSuccess)
}

func (m *Mock) Stop() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return result(CodeNotPlaying)
	}
	m.state = Idle
	m.position = 0
	return result(CodeSuccess)
}

func (m *Mock) SeekTo(ms int64) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return result(CodeNotPlaying)
	}
	m.seekCalls = append(m.seekCalls, ms)
	m.position = time.Duration(ms) * time.Millisecond
	return result(CodeSuccess)
}

func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{State: m.state, Position: m.position, Duration: m.duration}
	if m.state != Idle {
		snap.URL = m.req.URL
	}
	return snap
}

// Report delivers r to the current request's callback and, for a finished
// report, stops like the controller does.
func (m *Mock) Report(r Report) {
	m.mu.Lock()
	cb := m.req.OnReport
	if r.Kind == ReportFinished {
		m.state = Idle
	}
	m.mu.Unlock()
	if cb != nil {
		cb(r)
	}
}

// SetPlayError makes Play fail with code.
func (m *Mock) SetPlayError(code Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = code
}

// SetDuration sets the duration reported by Snapshot.
func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// PlayCalls returns the URLs passed to Play.
func (m *Mock) PlayCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.playCalls...)
}

// SeekCalls returns the positions passed to SeekTo.
func (m *Mock) SeekCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.seekCalls...)
}
