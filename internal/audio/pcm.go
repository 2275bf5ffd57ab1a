package audio

import (
	"encoding/binary"
	"math"

	"github.com/llehouerou/ripple/internal/media"
)

// decodePCM converts interleaved PCM to stereo float frames. Mono is copied
// to both channels; channels past the second are ignored. Trailing partial
// frames are dropped.
func decodePCM(p []byte, a media.AudioParams) [][2]float64 {
	width := a.SampleFormat.BytesPerSample()
	if width == 0 || a.Channels <= 0 {
		return nil
	}
	frameBytes := width * a.Channels
	frames := make([][2]float64, len(p)/frameBytes)
	for i := range frames {
		frame := p[i*frameBytes : (i+1)*frameBytes]
		left := sample(frame[:width], a.SampleFormat)
		right := left
		if a.Channels > 1 {
			right = sample(frame[width:2*width], a.SampleFormat)
		}
		frames[i] = [2]float64{left, right}
	}
	return frames
}

func sample(b []byte, f media.SampleFormat) float64 {
	switch f {
	case media.U8:
		return (float64(b[0]) - 128) / 128
	case media.S16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / (1 << 15)
	case media.S32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
	case media.F32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return 0
	}
}
