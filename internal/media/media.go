// Package media holds the decoded unit and the stream parameters negotiated
// when the decoding engine opens a resource.
package media

import "fmt"

// Kind tells audio units from video units.
type Kind uint8

const (
	Audio Kind = iota
	Video
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Unit is one decoded audio packet or video frame. The payload is owned by
// whoever holds the unit; it is never touched after being handed on.
type Unit struct {
	Kind    Kind
	PTS     float64 // seconds
	Payload []byte
}

// SampleFormat identifies the PCM layout of audio payloads.
type SampleFormat int

const (
	U8  SampleFormat = iota // 8-bit unsigned integer
	S16                     // 16-bit signed integer
	S32                     // 32-bit signed integer
	F32                     // 32-bit float
)

func (f SampleFormat) String() string {
	switch f {
	case U8:
		return "8bitInt"
	case S16:
		return "16bitInt"
	case S32:
		return "32bitInt"
	case F32:
		return "32bitFloat"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// BytesPerSample returns the size of one sample of one channel, or 0 for
// unknown formats.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case U8:
		return 1
	case S16:
		return 2
	case S32, F32:
		return 4
	default:
		return 0
	}
}

// Valid reports whether f is one of the known formats.
func (f SampleFormat) Valid() bool {
	return f.BytesPerSample() > 0
}

// VideoParams describes the video stream. Width and Height are zero for
// audio-only resources.
type VideoParams struct {
	DurationMs  int64
	PixelFormat int
	Width       int
	Height      int
}

// HasVideo reports whether the resource carries a picture.
func (v VideoParams) HasVideo() bool {
	return v.Width > 0 && v.Height > 0
}

// YLength is the luma plane size of one frame.
func (v VideoParams) YLength() int {
	return v.Width * v.Height
}

// UVLength is the size of each chroma plane of one 4:2:0 frame.
func (v VideoParams) UVLength() int {
	return (v.Width / 2) * (v.Height / 2)
}

// AudioParams describes the PCM produced by the engine.
type AudioParams struct {
	SampleFormat SampleFormat
	Channels     int
	SampleRate   int
}

// FrameBytes is the size of one interleaved sample frame.
func (a AudioParams) FrameBytes() int {
	return a.SampleFormat.BytesPerSample() * a.Channels
}

func (a AudioParams) String() string {
	return fmt.Sprintf("%s %dch %dHz", a.SampleFormat, a.Channels, a.SampleRate)
}
