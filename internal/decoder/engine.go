package decoder

import "github.com/llehouerou/ripple/internal/media"

// Emitter receives engine output. It is only called from the goroutine that
// is calling into the Engine.
type Emitter interface {
	EmitVideo(payload []byte, pts float64)
	EmitAudio(payload []byte, pts float64)
	RequestData(offset, available int64)
}

// Engine is a decoding engine. Implementations need not be safe for
// concurrent use; the bridge calls them from one goroutine.
type Engine interface {
	// Init prepares the engine for a resource of totalSize bytes (-1 when
	// unbounded). Output goes to out until Uninit.
	Init(totalSize int64, out Emitter) Code
	Uninit() Code
	// Open parses the fed header. It fails until enough bytes are cached.
	Open() (media.VideoParams, media.AudioParams, Code)
	Close() Code
	SendData(p []byte) Code
	// DecodeOnePacket decodes at most one packet, emitting its units.
	DecodeOnePacket() Code
	SeekTo(ms int64, accurate bool) Code
}
