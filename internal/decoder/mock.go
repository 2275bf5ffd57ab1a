package decoder

import (
	"sync"

	"github.com/llehouerou/ripple/internal/media"
)

var _ Engine = (*Mock)(nil)

// Mock is a scripted Engine for tests.
type Mock struct {
	mu sync.Mutex

	initCode  Code
	openCode  Code
	closeCode Code
	seekCode  Code
	video     media.VideoParams
	audio     media.AudioParams
	packets   []media.Unit
	onSeek    func(ms int64, out Emitter)
	starved   bool

	out       Emitter
	totalSize int64
	fed       int
	calls     []RequestKind
	seeks     []int64
}

// NewMock creates a mock engine that succeeds at everything and has no
// packets to decode.
func NewMock() *Mock {
	return &Mock{totalSize: -1}
}

// SetCodes sets the results of Init, Open, Close and SeekTo.
func (m *Mock) SetCodes(initCode, openCode, closeCode, seekCode Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCode, m.openCode, m.closeCode, m.seekCode = initCode, openCode, closeCode, seekCode
}

// SetParams sets the parameters returned by a successful Open.
func (m *Mock) SetParams(v media.VideoParams, a media.AudioParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.video, m.audio = v, a
}

// SetPackets queues units; each DecodeOnePacket emits one, then CodeEOF.
func (m *Mock) SetPackets(units ...media.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append([]media.Unit(nil), units...)
}

// OnSeek installs a hook run by SeekTo, typically to emit RequestData.
func (m *Mock) OnSeek(fn func(ms int64, out Emitter)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSeek = fn
}

// Starve makes DecodeOnePacket report that it waits for data, as an engine
// does when the fed bytes run out before the end of the resource.
func (m *Mock) Starve(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starved = on
}

// Calls returns the engine calls made so far, as request kinds.
func (m *Mock) Calls() []RequestKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestKind(nil), m.calls...)
}

// Fed returns the total bytes received through SendData.
func (m *Mock) Fed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fed
}

// TotalSize returns the size passed to the last Init.
func (m *Mock) TotalSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSize
}

// Remaining returns the number of packets not decoded yet.
func (m *Mock) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

// Seeks returns the seek targets received.
func (m *Mock) Seeks() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.seeks...)
}

func (m *Mock) record(k RequestKind) {
	m.calls = append(m.calls, k)
}

func (m *Mock) Init(totalSize int64, out Emitter) Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ReqInit)
	m.totalSize = totalSize
	m.out = out
	return m.initCode
}

func (m *Mock) Uninit() Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ReqUninit)
	m.out = nil
	return CodeSuccess
}

func (m *Mock) Open() (media.VideoParams, media.AudioParams, Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ReqOpen)
	if m.openCode != CodeSuccess {
		return media.VideoParams{}, media.AudioParams{}, m.openCode
	}
	return m.video, m.audio, CodeSuccess
}

func (m *Mock) Close() Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(ReqClose)
	return m.closeCode
}

func (m *Mock) SendData(p []byte) Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fed += len(p)
	return CodeSuccess
}

func (m *Mock) DecodeOnePacket() Code {
	m.mu.Lock()
	if m.starved {
		m.mu.Unlock()
		return CodeInvalidState
	}
	if len(m.packets) == 0 {
		m.mu.Unlock()
		return CodeEOF
	}
	u := m.packets[0]
	m.packets = m.packets[1:]
	out := m.out
	m.mu.Unlock()

	if out == nil {
		return CodeInvalidState
	}
	if u.Kind == media.Video {
		out.EmitVideo(u.Payload, u.PTS)
	} else {
		out.EmitAudio(u.Payload, u.PTS)
	}
	return CodeSuccess
}

func (m *Mock) SeekTo(ms int64, _ bool) Code {
	m.mu.Lock()
	m.record(ReqSeekTo)
	m.seeks = append(m.seeks, ms)
	hook, out, code := m.onSeek, m.out, m.seekCode
	m.mu.Unlock()

	if hook != nil && out != nil {
		hook(ms, out)
	}
	return code
}
