package decoder

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/mailbox"
	"github.com/llehouerou/ripple/internal/media"
)

// MinPollInterval bounds how fast the decode poll may tick.
const MinPollInterval = time.Millisecond

// Bridge owns an Engine and runs it on the goroutine calling Run.
type Bridge struct {
	engine Engine
	out    func(Event)
	inbox  *mailbox.Mailbox[Request]
	log    zerolog.Logger

	session       uint64
	chunkCapacity int
	ticker        *time.Ticker
	tick          <-chan time.Time
}

// NewBridge creates a bridge. out must not block; it is called from the
// decode goroutine.
func NewBridge(engine Engine, out func(Event), logger zerolog.Logger) *Bridge {
	return &Bridge{
		engine: engine,
		out:    out,
		inbox:  mailbox.New[Request](),
		log:    logger,
	}
}

// Send queues a request. It never blocks and returns false once Run exited.
func (b *Bridge) Send(r Request) bool {
	return b.inbox.Put(r)
}

// Run handles requests and decode ticks until ctx is cancelled. Requests
// queued at that point, typically Close and Uninit, are still handled.
func (b *Bridge) Run(ctx context.Context) {
	defer b.inbox.Close()
	defer b.stopPolling()

	for {
		select {
		case <-ctx.Done():
			b.process()
			return
		case <-b.inbox.Ready():
			b.process()
		case <-b.tick:
			// Requests queued behind the tick win, so a pause takes effect
			// before another packet is decoded.
			b.process()
			if b.tick != nil {
				b.decode()
			}
		}
	}
}

func (b *Bridge) process() {
	for _, r := range b.inbox.Drain() {
		b.handle(r)
	}
}

func (b *Bridge) handle(r Request) {
	b.session = r.Session

	switch r.Kind {
	case ReqInit:
		b.chunkCapacity = r.ChunkCapacity
		code := b.engine.Init(r.TotalSize, b)
		b.log.Info().Int64("size", r.TotalSize).Stringer("code", code).Msg("engine init")
		b.emit(Event{Kind: EvInitResult, Code: code})

	case ReqUninit:
		b.stopPolling()
		code := b.engine.Uninit()
		b.log.Info().Stringer("code", code).Msg("engine uninit")

	case ReqOpen:
		video, audio, code := b.engine.Open()
		b.log.Info().Stringer("code", code).Msg("engine open")
		b.emit(Event{Kind: EvOpenResult, Code: code, Video: video, Audio: audio})

	case ReqClose:
		b.stopPolling()
		code := b.engine.Close()
		b.log.Info().Stringer("code", code).Msg("engine close")
		b.emit(Event{Kind: EvCloseResult, Code: code})

	case ReqFeedData:
		b.feed(r.Data)

	case ReqStartDecoding:
		b.startPolling(r.PollInterval)

	case ReqPauseDecoding:
		b.stopPolling()

	case ReqSeekTo:
		code := b.engine.SeekTo(r.SeekMs, r.Accurate)
		b.log.Info().Int64("ms", r.SeekMs).Bool("accurate", r.Accurate).Stringer("code", code).Msg("engine seek")
		b.emit(Event{Kind: EvSeekResult, Code: code})

	default:
		b.log.Error().Int("kind", int(r.Kind)).Msg("unsupported request")
	}
}

func (b *Bridge) feed(data []byte) {
	capacity := b.chunkCapacity
	if capacity <= 0 {
		capacity = len(data)
	}
	for len(data) > 0 {
		n := min(capacity, len(data))
		if code := b.engine.SendData(data[:n]); code != CodeSuccess {
			b.log.Warn().Stringer("code", code).Int("bytes", n).Msg("engine rejected data")
		}
		data = data[n:]
	}
}

func (b *Bridge) decode() {
	code := b.engine.DecodeOnePacket()
	for code == CodeOldFrame {
		code = b.engine.DecodeOnePacket()
	}
	if code == CodeEOF {
		b.log.Info().Msg("decoding finished")
		b.stopPolling()
		b.emit(Event{Kind: EvDecodeFinished})
	}
}

func (b *Bridge) startPolling(interval time.Duration) {
	interval = max(interval, MinPollInterval)
	if b.ticker != nil {
		b.ticker.Reset(interval)
		return
	}
	b.ticker = time.NewTicker(interval)
	b.tick = b.ticker.C
}

func (b *Bridge) stopPolling() {
	if b.ticker != nil {
		b.ticker.Stop()
		b.ticker = nil
	}
	b.tick = nil
}

func (b *Bridge) emit(e Event) {
	e.Session = b.session
	b.out(e)
}

// EmitVideo implements Emitter.
func (b *Bridge) EmitVideo(payload []byte, pts float64) {
	b.emit(Event{Kind: EvVideoUnit, Unit: media.Unit{Kind: media.Video, PTS: pts, Payload: payload}})
}

// EmitAudio implements Emitter.
func (b *Bridge) EmitAudio(payload []byte, pts float64) {
	b.emit(Event{Kind: EvAudioUnit, Unit: media.Unit{Kind: media.Audio, PTS: pts, Payload: payload}})
}

// RequestData implements Emitter.
func (b *Bridge) RequestData(offset, available int64) {
	b.emit(Event{Kind: EvRequestData, Offset: offset, Available: available})
}
