// Package audio plays decoded PCM and reports how much of it was heard.
package audio

import "github.com/llehouerou/ripple/internal/media"

// Sink is an audio output. Implementations are used from one goroutine but
// may play on another.
type Sink interface {
	// Enqueue appends PCM in the negotiated format. The sink owns p afterwards.
	Enqueue(p []byte)
	Pause()
	Resume()
	// Destroy stops output and drops queued audio. The sink is unusable after.
	Destroy()
	// ClockSeconds returns the duration of audio actually played.
	ClockSeconds() float64
}

// Factory builds a sink for a negotiated format.
type Factory func(media.AudioParams) (Sink, error)
