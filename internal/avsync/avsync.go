// Package avsync releases buffered units to the output sinks, holding video
// back until the audio clock reaches its timestamp.
package avsync

import (
	"github.com/llehouerou/ripple/internal/framebuf"
	"github.com/llehouerou/ripple/internal/media"
)

// DefaultMaxPerTick bounds the units released by one display tick.
const DefaultMaxPerTick = 2

// Presenter is the output side of a drain pass.
type Presenter interface {
	// BeforeRelease runs before each unit is considered for release.
	BeforeRelease()
	// AudioClock returns the seconds of audio the sink has played.
	AudioClock() float64
	PlayAudio(u media.Unit)
	RenderVideo(u media.Unit)
}

// Engine holds the timeline anchor of the session.
type Engine struct {
	// BeginOffset is the media time at which the audio clock started, in seconds.
	BeginOffset float64
	MaxPerTick  int
}

// New returns an engine with DefaultMaxPerTick.
func New() *Engine {
	return &Engine{MaxPerTick: DefaultMaxPerTick}
}

// Now returns the media time given the audio clock.
func (e *Engine) Now(clock float64) float64 {
	return clock + e.BeginOffset
}

// VideoDue reports whether a video unit with the given PTS may be shown.
// A clock that has not started yet (now <= 0) releases video at once.
func (e *Engine) VideoDue(pts, clock float64) bool {
	now := e.Now(clock)
	return now <= 0 || pts-now <= 0
}

// Drain releases up to MaxPerTick units from the head of buf. Audio goes out
// unconditionally; a video head that is not yet due ends the pass.
func (e *Engine) Drain(buf *framebuf.Buffer, p Presenter) int {
	limit := e.MaxPerTick
	if limit <= 0 {
		limit = DefaultMaxPerTick
	}

	released := 0
	for released < limit {
		u, ok := buf.Head()
		if !ok {
			break
		}
		p.BeforeRelease()

		switch u.Kind {
		case media.Audio:
			buf.Pop()
			p.PlayAudio(u)
		case media.Video:
			if !e.VideoDue(u.PTS, p.AudioClock()) {
				return released
			}
			buf.Pop()
			p.RenderVideo(u)
		default:
			return released
		}
		released++
	}
	return released
}
