// Package mp3engine is a decoding engine for MPEG audio resources, built on
// go-mp3. Fed bytes go to a file cache; the decoder pulls from it and is
// restarted at an estimated byte offset on seek.
package mp3engine

import (
	"errors"
	"io"

	"github.com/llehouerou/go-mp3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/media"
)

const (
	// go-mp3 always outputs 16-bit stereo.
	frameBytes = 4
	// One MPEG-1 layer III frame.
	packetSamples = 1152
	// Decoding waits until this much is cached ahead so that a frame is
	// never cut short by the end of the fed bytes.
	minAhead = 8 << 10
)

var _ decoder.Engine = (*Engine)(nil)

// Engine implements decoder.Engine.
type Engine struct {
	fs  afero.Fs
	log zerolog.Logger

	cache     afero.File
	out       decoder.Emitter
	totalSize int64

	// Bytes [cachedFrom, writePos) of the resource are in the cache.
	cachedFrom int64
	writePos   int64
	readPos    int64

	dec        *mp3.Decoder
	sampleRate int
	opened     bool

	// samples is the position of the next decoded sample. segBytes and
	// segSamples mark where the current decoder started, for the byte
	// rate estimate used by SeekTo.
	samples    int64
	segBytes   int64
	segSamples int64
	perSample  float64
}

// New creates an engine caching to fs.
func New(fs afero.Fs, logger zerolog.Logger) *Engine {
	return &Engine{fs: fs, log: logger, totalSize: -1}
}

func (e *Engine) Init(totalSize int64, out decoder.Emitter) decoder.Code {
	if out == nil {
		return decoder.CodeNullPointer
	}
	if e.cache != nil {
		e.release()
	}
	f, err := afero.TempFile(e.fs, "", "ripple-mp3-")
	if err != nil {
		e.log.Error().Err(err).Msg("create cache file")
		return decoder.CodeCacheOpen
	}
	e.cache = f
	e.out = out
	e.totalSize = totalSize
	e.cachedFrom, e.writePos, e.readPos = 0, 0, 0
	e.dec = nil
	e.opened = false
	e.samples, e.segBytes, e.segSamples, e.perSample = 0, 0, 0, 0
	return decoder.CodeSuccess
}

func (e *Engine) Uninit() decoder.Code {
	if e.cache == nil {
		return decoder.CodeInvalidState
	}
	e.release()
	return decoder.CodeSuccess
}

func (e *Engine) release() {
	name := e.cache.Name()
	if err := e.cache.Close(); err != nil {
		e.log.Warn().Err(err).Msg("close cache file")
	}
	if err := e.fs.Remove(name); err != nil {
		e.log.Warn().Err(err).Msg("remove cache file")
	}
	e.cache = nil
	e.out = nil
	e.dec = nil
	e.opened = false
}

func (e *Engine) SendData(p []byte) decoder.Code {
	if e.cache == nil {
		return decoder.CodeInvalidState
	}
	if len(p) == 0 {
		return decoder.CodeInvalidParam
	}
	if e.totalSize >= 0 {
		p = p[:lo.Clamp(e.totalSize-e.writePos, 0, int64(len(p)))]
	}
	n, err := e.cache.WriteAt(p, e.writePos)
	e.writePos += int64(n)
	if err != nil {
		e.log.Error().Err(err).Msg("write cache file")
		return decoder.CodeCacheOpen
	}
	return decoder.CodeSuccess
}

// complete reports whether the cache holds the resource up to its end.
func (e *Engine) complete() bool {
	return e.totalSize >= 0 && e.writePos >= e.totalSize
}

// cacheReader feeds the decoder from the cache. It reports io.EOF at the
// end of the cached bytes.
type cacheReader struct{ e *Engine }

func (r cacheReader) Read(p []byte) (int, error) {
	e := r.e
	if e.readPos >= e.writePos {
		return 0, io.EOF
	}
	p = p[:min(int64(len(p)), e.writePos-e.readPos)]
	n, err := e.cache.ReadAt(p, e.readPos)
	e.readPos += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}

// restart builds a decoder reading from readPos.
func (e *Engine) restart() error {
	dec, err := mp3.NewDecoder(cacheReader{e})
	if err != nil {
		return err
	}
	if dec.SampleRate() == 0 {
		return errors.New("mp3: invalid sample rate")
	}
	e.dec = dec
	return nil
}

func (e *Engine) Open() (media.VideoParams, media.AudioParams, decoder.Code) {
	if e.cache == nil {
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidState
	}
	if e.cachedFrom != 0 {
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidData
	}
	e.readPos = 0
	if err := e.restart(); err != nil {
		e.log.Debug().Err(err).Int64("cached", e.writePos).Msg("mp3 header")
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidData
	}
	e.sampleRate = e.dec.SampleRate()
	e.samples, e.segBytes, e.segSamples = 0, 0, 0
	e.opened = true

	audio := media.AudioParams{SampleFormat: media.S16, Channels: 2, SampleRate: e.sampleRate}
	e.log.Info().Stringer("audio", audio).Msg("mp3 opened")
	// Frames carry no total length; the duration stays unknown.
	return media.VideoParams{}, audio, decoder.CodeSuccess
}

func (e *Engine) Close() decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	e.opened = false
	e.dec = nil
	return decoder.CodeSuccess
}

func (e *Engine) DecodeOnePacket() decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	if !e.complete() && e.writePos-e.readPos < minAhead {
		return decoder.CodeInvalidState
	}
	if e.dec == nil {
		if err := e.restart(); err != nil {
			if e.complete() {
				return decoder.CodeEOF
			}
			e.log.Warn().Err(err).Int64("pos", e.readPos).Msg("mp3 resync")
			return decoder.CodeInvalidData
		}
	}

	buf := make([]byte, packetSamples*frameBytes)
	n, err := io.ReadFull(e.dec, buf)
	n -= n % frameBytes
	if n > 0 {
		pts := float64(e.samples) / float64(e.sampleRate)
		e.samples += int64(n / frameBytes)
		if decoded := e.samples - e.segSamples; decoded > 0 {
			e.perSample = float64(e.readPos-e.segBytes) / float64(decoded)
		}
		e.out.EmitAudio(buf[:n], pts)
	}
	switch {
	case err == nil:
		return decoder.CodeSuccess
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if n > 0 {
			return decoder.CodeSuccess
		}
		return decoder.CodeEOF
	default:
		e.log.Error().Err(err).Msg("mp3 decode")
		return decoder.CodeInvalidData
	}
}

// SeekTo restarts decoding at a byte offset estimated from the bytes
// consumed per sample so far. Nothing can be estimated before the first
// packet.
func (e *Engine) SeekTo(ms int64, _ bool) decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	if ms < 0 || e.perSample == 0 {
		return decoder.CodeInvalidParam
	}

	target := ms * int64(e.sampleRate) / 1000
	pos := e.segBytes + int64(float64(target-e.segSamples)*e.perSample)
	pos = max(pos, 0)
	if e.totalSize >= 0 {
		pos = min(pos, e.totalSize)
	}

	e.dec = nil
	e.readPos = pos
	e.samples = target
	e.segBytes, e.segSamples = pos, target
	if pos < e.cachedFrom || pos > e.writePos {
		e.cachedFrom = pos
		e.writePos = pos
		e.log.Debug().Int64("pos", pos).Msg("seek outside cache")
		e.out.RequestData(pos, 0)
	} else {
		e.log.Debug().Int64("pos", pos).Int64("cached", e.writePos-pos).Msg("seek inside cache")
		e.out.RequestData(-1, e.writePos-pos)
	}
	return decoder.CodeSuccess
}
