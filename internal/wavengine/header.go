package wavengine

import (
	"bytes"
	"errors"
	"io"

	"github.com/gopxl/beep/v2/wav"

	"github.com/llehouerou/ripple/internal/media"
)

var (
	errShort  = errors.New("header incomplete")
	errNotWav = errors.New("not a RIFF/WAVE resource")
	errFormat = errors.New("unsupported sample format")
)

// header is the part of a RIFF/WAVE resource needed to stream its samples.
type header struct {
	audio      media.AudioParams
	blockAlign int
	byteRate   int
	dataStart  int64
	dataLen    int64 // -1 when the writer left the size open
}

// countingReader tracks how far the wav decoder read and whether it ran
// out of input.
type countingReader struct {
	r   io.Reader
	n   int64
	eof bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if errors.Is(err, io.EOF) {
		c.eof = true
	}
	return n, err
}

// parseHeader reads the fmt and data chunk headers from buf. It returns
// errShort when buf ends before the data chunk starts.
func parseHeader(buf []byte) (header, error) {
	var h header
	cr := &countingReader{r: bytes.NewReader(buf)}
	s, format, err := wav.Decode(cr)
	if err != nil {
		switch {
		case cr.eof:
			return h, errShort
		case len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WAVE":
			return h, errFormat
		default:
			return h, errNotWav
		}
	}
	defer s.Close()

	var sf media.SampleFormat
	switch format.Precision {
	case 1:
		sf = media.U8
	case 2:
		sf = media.S16
	default:
		return h, errFormat
	}
	if format.SampleRate <= 0 {
		return h, errFormat
	}

	h.audio = media.AudioParams{SampleFormat: sf, Channels: format.NumChannels, SampleRate: int(format.SampleRate)}
	h.blockAlign = h.audio.FrameBytes()
	h.byteRate = h.audio.SampleRate * h.blockAlign
	// The decoder stops right after the data chunk size.
	h.dataStart = cr.n
	h.dataLen = int64(s.Len()) * int64(h.blockAlign)
	if h.dataLen <= 0 {
		h.dataLen = -1
	}
	return h, nil
}
