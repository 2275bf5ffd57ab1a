package render

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Counts(t *testing.T) {
	var s Stats
	s.Render(make([]byte, 6), 2, 2, 4, 1)
	s.Render(make([]byte, 24), 4, 4, 16, 4)

	assert.Equal(t, int64(2), s.Frames())
	assert.Equal(t, int64(30), s.Bytes())
	w, h := s.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
}

func TestYUVWriter_WritesPlanesOnly(t *testing.T) {
	var buf bytes.Buffer
	y := NewYUVWriter(&buf)

	// 2x2 frame: 4 luma bytes and one byte per chroma plane, plus padding.
	frame := []byte{1, 2, 3, 4, 5, 6, 0xff, 0xff}
	y.Render(frame, 2, 2, 4, 1)

	require.NoError(t, y.Err())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, buf.Bytes())
	assert.Equal(t, int64(1), y.Frames())
}

func TestYUVWriter_ShortFrameStopsWriting(t *testing.T) {
	var buf bytes.Buffer
	y := NewYUVWriter(&buf)

	y.Render([]byte{1, 2}, 2, 2, 4, 1)
	y.Render([]byte{1, 2, 3, 4, 5, 6}, 2, 2, 4, 1)

	assert.ErrorIs(t, y.Err(), ErrShortFrame)
	assert.Zero(t, buf.Len())
	assert.Zero(t, y.Frames())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestYUVWriter_WriteError(t *testing.T) {
	y := NewYUVWriter(failWriter{})
	y.Render(make([]byte, 6), 2, 2, 4, 1)
	assert.ErrorContains(t, y.Err(), "disk full")
}

func TestFunc_Adapts(t *testing.T) {
	var got int
	var r Renderer = Func(func(_ []byte, w, _, _, _ int) { got = w })
	r.Render(nil, 7, 1, 0, 0)
	assert.Equal(t, 7, got)
}
