package mp3engine

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/media"
)

type emitted struct {
	audio    [][]byte
	pts      []float64
	requests [][2]int64
}

func (e *emitted) EmitVideo([]byte, float64) {}

func (e *emitted) EmitAudio(p []byte, pts float64) {
	e.audio = append(e.audio, p)
	e.pts = append(e.pts, pts)
}

func (e *emitted) RequestData(offset, available int64) {
	e.requests = append(e.requests, [2]int64{offset, available})
}

// silentFrameLen is 144 * 128000 / 44100 for an unpadded frame.
const silentFrameLen = 417

// silence builds n MPEG-1 layer III frames, 128 kbit/s 44.1 kHz stereo,
// whose side info and main data are all zero.
func silence(n int) []byte {
	frame := make([]byte, silentFrameLen)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return bytes.Repeat(frame, n)
}

func newEngine(t *testing.T) (*Engine, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, zerolog.Nop()), fs
}

func opened(t *testing.T, file []byte, total int64) (*Engine, *emitted) {
	t.Helper()
	e, _ := newEngine(t)
	out := &emitted{}
	require.Equal(t, decoder.CodeSuccess, e.Init(total, out))
	require.Equal(t, decoder.CodeSuccess, e.SendData(file))
	video, audio, code := e.Open()
	require.Equal(t, decoder.CodeSuccess, code)
	assert.Zero(t, video.DurationMs)
	assert.Equal(t, media.AudioParams{SampleFormat: media.S16, Channels: 2, SampleRate: 44100}, audio)
	return e, out
}

func TestOpen_RejectsNonMPEG(t *testing.T) {
	e, _ := newEngine(t)
	require.Equal(t, decoder.CodeSuccess, e.Init(4096, &emitted{}))
	e.SendData(make([]byte, 4096))
	_, _, code := e.Open()
	assert.Equal(t, decoder.CodeInvalidData, code)
}

func TestOpen_BeforeInit(t *testing.T) {
	e, _ := newEngine(t)
	_, _, code := e.Open()
	assert.Equal(t, decoder.CodeInvalidState, code)
	assert.Equal(t, decoder.CodeInvalidState, e.DecodeOnePacket())
	assert.Equal(t, decoder.CodeInvalidState, e.SeekTo(0, false))
}

func TestDecode_PacketsUntilEOF(t *testing.T) {
	file := silence(20)
	e, out := opened(t, file, int64(len(file)))

	code := decoder.CodeSuccess
	for range 100 {
		if code = e.DecodeOnePacket(); code != decoder.CodeSuccess {
			break
		}
	}
	assert.Equal(t, decoder.CodeEOF, code)
	require.NotEmpty(t, out.audio)
	for i, p := range out.audio {
		assert.Zero(t, len(p)%frameBytes)
		if i > 0 {
			assert.Greater(t, out.pts[i], out.pts[i-1])
		}
	}
	assert.Zero(t, out.pts[0])
}

func TestDecode_WaitsForData(t *testing.T) {
	file := silence(60)
	e, out := opened(t, file[:10*silentFrameLen], int64(len(file)))

	assert.Equal(t, decoder.CodeInvalidState, e.DecodeOnePacket())
	assert.Empty(t, out.audio)

	require.Equal(t, decoder.CodeSuccess, e.SendData(file[10*silentFrameLen:]))
	assert.Equal(t, decoder.CodeSuccess, e.DecodeOnePacket())
	assert.NotEmpty(t, out.audio)
}

func TestSeekTo_NeedsDecodedAudio(t *testing.T) {
	file := silence(20)
	e, _ := opened(t, file, int64(len(file)))
	assert.Equal(t, decoder.CodeInvalidParam, e.SeekTo(100, false))
}

func TestSeekTo_InsideCache(t *testing.T) {
	file := silence(40)
	e, out := opened(t, file, int64(len(file)))
	for range 5 {
		require.Equal(t, decoder.CodeSuccess, e.DecodeOnePacket())
	}

	require.Equal(t, decoder.CodeSuccess, e.SeekTo(100, false))
	require.Len(t, out.requests, 1)
	assert.Equal(t, int64(-1), out.requests[0][0])
	assert.Positive(t, out.requests[0][1])

	out.audio, out.pts = nil, nil
	require.Equal(t, decoder.CodeSuccess, e.DecodeOnePacket())
	require.NotEmpty(t, out.pts)
	assert.InDelta(t, 0.1, out.pts[0], 1e-9)
}

func TestSeekTo_OutsideCacheRestartsIt(t *testing.T) {
	file := silence(400)
	head := file[:40*silentFrameLen]
	e, out := opened(t, head, int64(len(file)))
	for range 5 {
		require.Equal(t, decoder.CodeSuccess, e.DecodeOnePacket())
	}

	// Ten seconds in is well past the forty cached frames.
	require.Equal(t, decoder.CodeSuccess, e.SeekTo(10_000, false))
	require.Len(t, out.requests, 1)
	pos := out.requests[0][0]
	assert.Greater(t, pos, int64(len(head)))
	assert.Zero(t, out.requests[0][1])
	assert.Equal(t, decoder.CodeInvalidState, e.DecodeOnePacket())

	require.Equal(t, decoder.CodeSuccess, e.SendData(file[pos:]))
	out.audio, out.pts = nil, nil
	require.Equal(t, decoder.CodeSuccess, e.DecodeOnePacket())
	require.NotEmpty(t, out.pts)
	assert.InDelta(t, 10.0, out.pts[0], 1e-9)
}

func TestUninit_RemovesCache(t *testing.T) {
	e, fs := newEngine(t)
	require.Equal(t, decoder.CodeSuccess, e.Init(100, &emitted{}))
	name := e.cache.Name()

	assert.Equal(t, decoder.CodeSuccess, e.Uninit())
	exists, err := afero.Exists(fs, name)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, decoder.CodeInvalidState, e.Uninit())
}
