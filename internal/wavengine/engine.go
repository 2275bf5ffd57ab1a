// Package wavengine is a decoding engine for PCM WAV resources. Fed bytes
// are cached in a file so that seeking backwards never needs a refetch.
package wavengine

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/media"
)

// DefaultPacket is the audio duration emitted per decode step.
const DefaultPacket = 20 * time.Millisecond

var _ decoder.Engine = (*Engine)(nil)

// Engine implements decoder.Engine.
type Engine struct {
	fs     afero.Fs
	log    zerolog.Logger
	packet time.Duration

	cache     afero.File
	out       decoder.Emitter
	totalSize int64

	// Bytes [cachedFrom, writePos) of the resource are in the cache.
	cachedFrom int64
	writePos   int64
	readPos    int64

	hdr    header
	opened bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPacket sets the audio duration of one decoded unit.
func WithPacket(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.packet = d
		}
	}
}

// New creates an engine caching to fs. Pass afero.NewOsFs() in production.
func New(fs afero.Fs, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{fs: fs, log: logger, packet: DefaultPacket, totalSize: -1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Init(totalSize int64, out decoder.Emitter) decoder.Code {
	if out == nil {
		return decoder.CodeNullPointer
	}
	if e.cache != nil {
		e.release()
	}
	f, err := afero.TempFile(e.fs, "", "ripple-cache-")
	if err != nil {
		e.log.Error().Err(err).Msg("create cache file")
		return decoder.CodeCacheOpen
	}
	e.cache = f
	e.out = out
	e.totalSize = totalSize
	e.cachedFrom, e.writePos, e.readPos = 0, 0, 0
	e.opened = false
	e.log.Debug().Str("cache", f.Name()).Int64("size", totalSize).Msg("cache created")
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

func (e *Engine) Open() (media.VideoParams, media.AudioParams, decoder.Code) {
	if e.cache == nil {
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidState
	}
	if e.cachedFrom != 0 {
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidData
	}

	buf := make([]byte, e.writePos)
	if _, err := e.cache.ReadAt(buf, 0); err != nil {
		e.log.Error().Err(err).Msg("read cache file")
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeCacheOpen
	}
	h, err := parseHeader(buf)
	switch {
	case errors.Is(err, errFormat):
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidFormat
	case err != nil:
		return media.VideoParams{}, media.AudioParams{}, decoder.CodeInvalidData
	}

	if e.totalSize >= 0 {
		avail := max(e.totalSize-h.dataStart, 0)
		if h.dataLen < 0 || h.dataLen > avail {
			h.dataLen = avail
		}
	}
	e.hdr = h
	e.readPos = h.dataStart
	e.opened = true

	video := media.VideoParams{}
	if h.dataLen >= 0 {
		video.DurationMs = h.dataLen * 1000 / int64(h.byteRate)
	}
	e.log.Info().Stringer("audio", h.audio).Int64("duration_ms", video.DurationMs).Msg("wav opened")
	return video, h.audio, decoder.CodeSuccess
}

func (e *Engine) Close() decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	e.opened = false
	return decoder.CodeSuccess
}

func (e *Engine) dataEnd() int64 {
	if e.hdr.dataLen < 0 {
		return -1
	}
	return e.hdr.dataStart + e.hdr.dataLen
}

func (e *Engine) packetBytes() int64 {
	frames := int64(e.hdr.audio.SampleRate) * int64(e.packet) / int64(time.Second)
	return max(frames, 1) * int64(e.hdr.blockAlign)
}

func (e *Engine) DecodeOnePacket() decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	end := e.dataEnd()
	if end >= 0 && e.readPos >= end {
		return decoder.CodeEOF
	}

	n := e.packetBytes()
	if end >= 0 {
		n = min(n, end-e.readPos)
	}
	if e.readPos < e.cachedFrom || e.readPos+n > e.writePos {
		// Unbounded tail: take whatever whole frames are cached.
		if end < 0 {
			avail := e.writePos - e.readPos
			n = avail - avail%int64(e.hdr.blockAlign)
		}
		if n <= 0 || e.readPos < e.cachedFrom || e.readPos+n > e.writePos {
			return decoder.CodeInvalidState
		}
	}

	buf := make([]byte, n)
	if _, err := e.cache.ReadAt(buf, e.readPos); err != nil {
		e.log.Error().Err(err).Msg("read cache file")
		return decoder.CodeCacheOpen
	}
	pts := float64(e.readPos-e.hdr.dataStart) / float64(e.hdr.byteRate)
	e.readPos += n
	e.out.EmitAudio(buf, pts)
	return decoder.CodeSuccess
}

// SeekTo moves the read position. When the target lies outside the cached
// range the cache restarts there and RequestData asks for bytes from it;
// otherwise RequestData(-1, n) reports n cached bytes ahead.
func (e *Engine) SeekTo(ms int64, _ bool) decoder.Code {
	if !e.opened {
		return decoder.CodeInvalidState
	}
	end := e.dataEnd()
	if end < 0 {
		return decoder.CodeInvalidParam
	}
	if ms < 0 {
		return decoder.CodeInvalidParam
	}

	block := int64(e.hdr.blockAlign)
	rel := ms * int64(e.hdr.byteRate) / 1000
	rel -= rel % block
	pos := lo.Clamp(e.hdr.dataStart+rel, e.hdr.dataStart, end)

	e.readPos = pos
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
