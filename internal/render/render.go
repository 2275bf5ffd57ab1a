// Package render holds the video sinks driven by the player.
package render

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Renderer draws one planar YUV frame. Render is called from the player
// goroutine and must not block.
type Renderer interface {
	Render(frame []byte, width, height, yLength, uvLength int)
}

// Func adapts a function to Renderer.
type Func func(frame []byte, width, height, yLength, uvLength int)

// Render implements Renderer.
func (f Func) Render(frame []byte, width, height, yLength, uvLength int) {
	f(frame, width, height, yLength, uvLength)
}

// Stats counts rendered frames. It is the default target for audio-only
// playback and for tests.
type Stats struct {
	frames atomic.Int64
	bytes  atomic.Int64
	width  atomic.Int64
	height atomic.Int64
}

var _ Renderer = (*Stats)(nil)

func (s *Stats) Render(frame []byte, width, height, _, _ int) {
	s.frames.Add(1)
	s.bytes.Add(int64(len(frame)))
	s.width.Store(int64(width))
	s.height.Store(int64(height))
}

// Frames returns the number of frames rendered.
func (s *Stats) Frames() int64 { return s.frames.Load() }

// Bytes returns the total payload size rendered.
func (s *Stats) Bytes() int64 { return s.bytes.Load() }

// Size returns the dimensions of the last frame.
func (s *Stats) Size() (width, height int) {
	return int(s.width.Load()), int(s.height.Load())
}

// ErrShortFrame is recorded when a frame is smaller than its planes.
var ErrShortFrame = errors.New("frame shorter than its planes")

// YUVWriter writes raw I420 frames (Y, then U, then V) back to back, the
// layout ffplay reads with -f rawvideo -pixel_format yuv420p.
type YUVWriter struct {
	mu     sync.Mutex
	w      io.Writer
	frames int64
	err    error
}

var _ Renderer = (*YUVWriter)(nil)

// NewYUVWriter writes frames to w.
func NewYUVWriter(w io.Writer) *YUVWriter {
	return &YUVWriter{w: w}
}

// Render writes the frame's planes. After the first error every frame is
// dropped; Err reports it.
func (y *YUVWriter) Render(frame []byte, _, _, yLength, uvLength int) {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.err != nil {
		return
	}

	n := yLength + 2*uvLength
	if n <= 0 || len(frame) < n {
		y.err = fmt.Errorf("%w: have %d bytes, need %d", ErrShortFrame, len(frame), n)
		return
	}
	if _, err := y.w.Write(frame[:n]); err != nil {
		y.err = fmt.Errorf("write frame %d: %w", y.frames, err)
		return
	}
	y.frames++
}

// Frames returns the number of frames written.
func (y *YUVWriter) Frames() int64 {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.frames
}

// Err returns the first write error.
func (y *YUVWriter) Err() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.err
}
