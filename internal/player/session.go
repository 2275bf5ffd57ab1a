package player

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/ripple/internal/audio"
	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/download"
	"github.com/llehouerou/ripple/internal/media"
	"github.com/llehouerou/ripple/internal/metrics"
	"github.com/llehouerou/ripple/internal/source"
	"github.com/llehouerou/ripple/internal/transport"
)

// session is the state of one Play call. It is dropped on stop.
type session struct {
	id     uint64
	uuid   string
	req    PlayRequest
	ctx    context.Context
	cancel context.CancelFunc

	fetcher    transport.Fetcher
	desc       *source.Descriptor
	waitHeader int64
	unbounded  bool

	decoderState DecoderState
	decoding     bool
	buffering    bool
	failed       bool
	reported     bool

	seeking           bool
	justSeeked        bool
	seekReceived      int64
	seekWaitLen       float64
	seekResumePending bool

	firstAudio     bool
	streamReceived int64

	video    media.VideoParams
	audio    media.AudioParams
	sink     audio.Sink
	position time.Duration
}

func (c *Controller) play(req PlayRequest) Result {
	switch c.state {
	case Pausing:
		return c.resume(false)
	case Playing:
		return result(CodeSuccess)
	}

	desc, err := source.New(req.URL, c.opts.ChunkSize)
	if err != nil {
		c.log.Error().Err(err).Str("url", req.URL).Msg("play rejected")
		return result(CodeInvalidURL)
	}
	if req.Renderer == nil {
		return result(CodeNoRenderer)
	}

	var fetcher transport.Fetcher
	if req.Unbounded {
		if c.deps.Streamer == nil {
			return result(CodeNoDownloader)
		}
	} else {
		if c.deps.Transports == nil {
			return result(CodeNoDownloader)
		}
		if fetcher, err = c.deps.Transports.ForURL(req.URL); err != nil {
			c.log.Error().Err(err).Str("url", req.URL).Msg("no transport")
			return result(CodeNoDownloader)
		}
	}
	if c.bridge == nil {
		return result(CodeNoDecoder)
	}

	// A new session replaces any live session kept for resume.
	c.streamPause = nil
	c.sessions++
	s := &session{
		id:         c.sessions,
		uuid:       uuid.NewString(),
		req:        req,
		fetcher:    fetcher,
		desc:       desc,
		waitHeader: req.WaitHeaderBytes,
		unbounded:  req.Unbounded,
		firstAudio: true,
	}
	if s.waitHeader <= 0 {
		s.waitHeader = c.opts.WaitHeaderBytes
	}
	s.ctx, s.cancel = context.WithCancel(c.ctx)
	c.s = s
	c.log = c.deps.Logger.With().Str("session", s.uuid).Logger()

	c.sched.Reset()
	c.frames.Clear()
	c.av.BeginOffset = 0

	c.log.Info().Str("url", req.URL).Bool("unbounded", req.Unbounded).
		Int64("wait_header", s.waitHeader).Msg("play")
	c.setState(Playing)
	c.trackT.start(c.opts.TrackInterval)
	c.displayT.start(c.opts.DisplayInterval)
	c.startBuffering()

	if s.unbounded {
		c.onSize(sizeMsg{session: s.id, info: transport.SizeInfo{Size: source.Unbounded, Status: 200}})
		c.startStream(s)
	} else {
		id, ctx, url := s.id, s.ctx, req.URL
		go func() {
			info, err := fetcher.GetSize(ctx, url)
			c.inbox.Put(sizeMsg{session: id, info: info, err: err})
		}()
	}
	return result(CodeSuccess)
}

func (c *Controller) pause() Result {
	if c.s != nil && c.s.unbounded {
		return c.pauseStream()
	}
	if c.state != Playing {
		return result(CodeNotPlaying)
	}

	c.setState(Pausing)
	if c.s.sink != nil {
		c.s.sink.Pause()
	}
	c.pauseDecoding()
	c.trackT.stop()
	// Fetching keeps going to pre-buffer.
	return result(CodeSuccess)
}

// pauseStream tears a live session down and keeps its request for resume.
func (c *Controller) pauseStream() Result {
	if c.state != Playing {
		return result(CodeNotPlaying)
	}
	req := c.s.req
	c.log.Info().Msg("stop for live pause")
	c.stop("paused")
	c.streamPause = &req
	return result(CodeSuccess)
}

func (c *Controller) resume(fromSeek bool) Result {
	if c.state == Idle && c.streamPause != nil {
		return c.resumeStream()
	}
	if c.state != Pausing || c.s.unbounded {
		return result(CodeNotPausing)
	}

	s := c.s
	if !fromSeek && s.sink != nil && !s.buffering {
		s.sink.Resume()
	}
	c.setState(Playing)
	c.startDecoding()
	if !s.seeking {
		c.trackT.start(c.opts.TrackInterval)
	}
	return result(CodeSuccess)
}

func (c *Controller) resumeStream() Result {
	if c.state != Idle || c.streamPause == nil {
		return result(CodeNotPausing)
	}
	req := *c.streamPause
	c.streamPause = nil
	c.log.Info().Msg("replay for live resume")
	req.Unbounded = true
	return c.play(req)
}

// stop tears the session down. outcome labels the session metric.
func (c *Controller) stop(outcome string) Result {
	if c.state == Idle {
		return result(CodeNotPlaying)
	}
	s := c.s

	c.downloadT.stop()
	c.displayT.stop()
	c.trackT.stop()
	if s.buffering {
		c.observer.Buffering(false)
	}
	s.cancel()

	if s.sink != nil {
		s.sink.Destroy()
		s.sink = nil
	}
	// Teardown does not wait for earlier requests; the bridge handles them
	// in order and the engine tolerates Close after any of them.
	c.bridge.Send(decoder.Close(s.id))
	c.bridge.Send(decoder.Uninit(s.id))

	c.frames.Clear()
	c.sched.Reset()
	c.av.BeginOffset = 0
	metrics.BufferOccupancy.Set(0)
	metrics.IncSession(outcome)

	c.s = nil
	c.setState(Idle)
	c.observer.Position(0, 0)
	c.log.Info().Str("outcome", outcome).Msg("session stopped")
	c.log = c.deps.Logger
	return result(CodeSuccess)
}

func (c *Controller) seekTo(ms int64) Result {
	if c.state == Idle {
		return result(CodeNotPlaying)
	}
	s := c.s
	if s.unbounded {
		return result(CodeUnsupported)
	}
	// Before OpenResult the engine cannot answer with RequestData.
	if s.decoderState != DecoderReady && s.decoderState != DecoderFinished {
		return result(CodeNotReady)
	}
	ms = max(ms, 0)

	c.pause()
	c.downloadT.stop()
	c.sched.Stop()
	// Responses to fetches issued before the seek are stale from here on.
	c.sched.Invalidate()
	c.frames.Clear()
	metrics.BufferOccupancy.Set(0)

	c.bridge.Send(decoder.SeekTo(s.id, ms, c.opts.AccurateSeek))
	c.av.BeginOffset = float64(ms) / 1000
	if s.decoderState == DecoderFinished {
		s.decoderState = DecoderReady
	}

	s.seeking = true
	s.justSeeked = true
	s.seekReceived = 0
	s.seekResumePending = false
	s.position = time.Duration(ms) * time.Millisecond
	c.sched.SetUrgent(true)
	c.startBuffering()
	c.log.Info().Int64("ms", ms).Int64("seq", c.sched.Seq()).Msg("seek")
	return result(CodeSuccess)
}

func (c *Controller) onSize(m sizeMsg) {
	s := c.s
	if s == nil || m.session != s.id {
		return
	}

	status := m.info.Status
	if m.err != nil {
		status = transport.StatusOf(m.err)
	}
	c.log.Info().Int("status", status).Int64("size", m.info.Size).Msg("size response")
	if m.err != nil || status != 200 {
		if m.err != nil && errors.Is(m.err, context.Canceled) {
			return
		}
		c.fail(-1, status, "size request failed")
		return
	}

	s.desc.Size = m.info.Size
	c.bridge.Send(decoder.Init(s.id, s.desc.Size, s.desc.ChunkSize))
}

func (c *Controller) downloadOneChunk() {
	s := c.s
	if s == nil || s.failed {
		return
	}
	r, st := c.sched.Next(s.desc)
	switch st {
	case download.StatusOK:
	case download.StatusEndOfResource:
		c.log.Debug().Int64("offset", s.desc.Offset).Msg("reached resource end")
		c.downloadT.stop()
		return
	default:
		return
	}

	id, ctx, url, fetcher := s.id, s.ctx, s.desc.URL, s.fetcher
	c.log.Debug().Int64("start", r.Start).Int64("end", r.End).Int64("seq", r.Seq).Msg("fetch chunk")
	go func() {
		chunk, err := fetcher.FetchRange(ctx, url, r.Start, r.End, r.Seq)
		c.inbox.Put(chunkMsg{session: id, seq: r.Seq, chunk: chunk, err: err})
	}()
}

func (c *Controller) startDownload() {
	if c.s.unbounded {
		return
	}
	c.sched.Start()
	c.downloadT.start(c.sched.Interval())
}

func (c *Controller) onChunk(m chunkMsg) {
	s := c.s
	if s == nil || m.session != s.id {
		metrics.IncStale("chunk")
		return
	}

	if m.err != nil {
		c.sched.Fail(m.seq)
		if m.seq != c.sched.Seq() || errors.Is(m.err, context.Canceled) {
			return
		}
		c.log.Error().Err(m.err).Int64("seq", m.seq).Msg("chunk fetch failed")
		c.downloadT.stop()
		c.sched.Stop()
		c.report(Report{Kind: ReportError, Code: -1, Status: transport.StatusOf(m.err), Message: m.err.Error()})
		return
	}

	if !c.sched.Accept(m.chunk.Seq) {
		c.log.Debug().Int64("seq", m.chunk.Seq).Int64("current", c.sched.Seq()).Msg("stale chunk dropped")
		metrics.IncStale("chunk")
		return
	}
	if s.failed {
		return
	}

	data := m.chunk.Data
	if c.state == Pausing && s.seeking {
		s.seekReceived += int64(len(data))
		wait := min(float64(s.desc.Remaining()), s.seekWaitLen)
		if float64(s.seekReceived) >= wait && !s.seekResumePending {
			c.log.Info().Int64("received", s.seekReceived).Msg("seek buffer reached")
			s.seekResumePending = true
			c.inbox.Put(seekResumeMsg{session: s.id})
		}
	}

	s.desc.Advance(m.chunk.End)
	metrics.BytesFetched.Add(float64(len(data)))
	c.bridge.Send(decoder.FeedData(s.id, data))

	switch s.decoderState {
	case DecoderIdle:
		if s.desc.Offset >= s.waitHeader || s.desc.Complete() {
			c.openDecoder()
		}
		c.downloadOneChunk()
	case DecoderInitializing:
		c.downloadOneChunk()
	}

	if c.sched.Urgent() {
		c.downloadOneChunk()
	}
}

func (c *Controller) onSeekResume(m seekResumeMsg) {
	s := c.s
	if s == nil || m.session != s.id || !s.seekResumePending {
		return
	}
	s.seekResumePending = false
	if c.state == Pausing && s.seeking {
		c.resume(true)
	}
}

func (c *Controller) openDecoder() {
	c.log.Info().Int64("offset", c.s.desc.Offset).Msg("opening decoder")
	c.s.decoderState = DecoderInitializing
	c.bridge.Send(decoder.Open(c.s.id))
}

func (c *Controller) startStream(s *session) {
	id, ctx, url, chunk := s.id, s.ctx, s.desc.URL, s.desc.ChunkSize
	streamer := c.deps.Streamer
	go func() {
		err := streamer.Stream(ctx, url, chunk, func(p []byte) {
			c.inbox.Put(streamMsg{session: id, data: p})
		})
		c.inbox.Put(streamEndMsg{session: id, err: err})
	}()
}

func (c *Controller) onStreamData(m streamMsg) {
	s := c.s
	if s == nil || m.session != s.id || c.state != Playing {
		return
	}
	metrics.BytesFetched.Add(float64(len(m.data)))
	s.streamReceived += int64(len(m.data))
	c.bridge.Send(decoder.FeedData(s.id, m.data))

	if s.decoderState == DecoderIdle && s.streamReceived >= s.waitHeader {
		c.openDecoder()
	}
}

func (c *Controller) onStreamEnd(m streamEndMsg) {
	s := c.s
	if s == nil || m.session != s.id {
		return
	}
	if m.err != nil {
		c.log.Error().Err(m.err).Msg("live transfer failed")
		c.report(Report{Kind: ReportError, Code: -1, Status: transport.StatusOf(m.err), Message: m.err.Error()})
		return
	}
	c.log.Info().Int64("received", s.streamReceived).Msg("live transfer done")
}

func (c *Controller) onDecoderEvent(e decoder.Event) {
	s := c.s
	if s == nil || e.Session != s.id {
		switch e.Kind {
		case decoder.EvVideoUnit, decoder.EvAudioUnit:
			metrics.IncStale("unit")
		case decoder.EvCloseResult:
			c.log.Debug().Stringer("code", e.Code).Msg("decoder closed")
		}
		return
	}

	switch e.Kind {
	case decoder.EvInitResult:
		if e.Code != decoder.CodeSuccess {
			c.fail(int(e.Code), 0, "decoder init failed: "+e.Code.String())
			return
		}
		if !s.unbounded {
			c.downloadOneChunk()
		}

	case decoder.EvOpenResult:
		if e.Code != decoder.CodeSuccess {
			c.fail(int(e.Code), 0, "decoder open failed: "+e.Code.String())
			return
		}
		c.negotiate(e.Video, e.Audio)
		s.decoderState = DecoderReady
		c.log.Info().Msg("decoder ready")
		c.startDecoding()

	case decoder.EvVideoUnit, decoder.EvAudioUnit:
		c.bufferUnit(e.Unit)

	case decoder.EvDecodeFinished:
		c.pauseDecoding()
		s.decoderState = DecoderFinished
		c.log.Info().Int("buffered", c.frames.Len()).Msg("decoding finished")
		// Nothing more will arrive to lift the buffering state.
		if s.buffering {
			c.stopBuffering()
		}

	case decoder.EvRequestData:
		c.onRequestData(e.Offset, e.Available)

	case decoder.EvSeekResult:
		if e.Code != decoder.CodeSuccess {
			s.seeking = false
			s.justSeeked = false
			c.sched.SetUrgent(false)
			c.log.Error().Stringer("code", e.Code).Msg("seek failed")
			c.report(Report{Kind: ReportError, Code: int(e.Code), Message: "seek failed: " + e.Code.String()})
		}

	case decoder.EvCloseResult:
		if e.Code != decoder.CodeSuccess {
			c.log.Warn().Stringer("code", e.Code).Msg("decoder close failed")
		}
	}
}

// negotiate records the stream parameters and derives the pacing values.
func (c *Controller) negotiate(v media.VideoParams, a media.AudioParams) {
	s := c.s
	s.video, s.audio = v, a
	c.log.Info().
		Int64("duration_ms", v.DurationMs).Int("pix_fmt", v.PixelFormat).
		Int("width", v.Width).Int("height", v.Height).
		Stringer("audio", a).Msg("stream parameters")

	if !s.unbounded {
		byteRate := c.sched.Pace(s.desc.Size, v.DurationMs, c.opts.RateCoef, s.desc.ChunkSize)
		s.seekWaitLen = byteRate * c.opts.MaxBufferSeconds * c.opts.SeekWaitFactor
		if byteRate == 0 {
			// Unknown duration: wait for as much as the header took.
			s.seekWaitLen = float64(s.waitHeader)
		}
		c.log.Info().Float64("byte_rate", byteRate).Dur("chunk_interval", c.sched.Interval()).
			Float64("seek_wait", s.seekWaitLen).Msg("pacing")
		c.startDownload()
	}
	c.restartAudio()
}

func (c *Controller) restartAudio() {
	s := c.s
	if s.sink != nil {
		s.sink.Destroy()
		s.sink = nil
	}
	if c.deps.Audio == nil || !s.audio.SampleFormat.Valid() || s.audio.Channels <= 0 {
		return
	}
	sink, err := c.deps.Audio(s.audio)
	if err != nil {
		c.log.Error().Err(err).Stringer("audio", s.audio).Msg("audio sink unavailable")
		return
	}
	s.sink = sink
}

func (c *Controller) onRequestData(offset, available int64) {
	s := c.s
	if !s.justSeeked {
		c.log.Debug().Int64("offset", offset).Int64("available", available).Msg("request data ignored")
		return
	}
	c.log.Info().Int64("offset", offset).Int64("available", available).Msg("request data")
	s.justSeeked = false

	if offset == -1 {
		if available >= s.desc.Remaining() {
			c.log.Info().Msg("seek target cached")
			c.resume(false)
			return
		}
	} else if !s.desc.Align(offset) {
		c.log.Warn().Int64("offset", offset).Msg("request data offset out of range")
	}
	c.startDownload()
}

func (c *Controller) startDecoding() {
	interval := c.opts.DecodeInterval
	if c.sched.Urgent() {
		interval = 0
	}
	c.bridge.Send(decoder.StartDecoding(c.s.id, interval))
	c.s.decoding = true
}

func (c *Controller) pauseDecoding() {
	c.bridge.Send(decoder.PauseDecoding(c.s.id))
	c.s.decoding = false
}

func (c *Controller) bufferUnit(u media.Unit) {
	s := c.s
	if !s.decoding {
		metrics.IncStale("unit")
		return
	}
	c.frames.Push(u)
	metrics.BufferOccupancy.Set(c.frames.Occupancy())

	if c.frames.AboveHigh() || s.decoderState == DecoderFinished {
		c.pauseDecoding()
		if s.buffering {
			c.stopBuffering()
		}
	}
}

func (c *Controller) startBuffering() {
	s := c.s
	if s.buffering {
		return
	}
	s.buffering = true
	c.observer.Buffering(true)
	if c.state == Playing && s.sink != nil {
		s.sink.Pause()
	}
}

func (c *Controller) stopBuffering() {
	s := c.s
	s.buffering = false
	c.observer.Buffering(false)
	// After a seek the sink still holds old audio until it is rebuilt.
	if c.state == Playing && s.sink != nil && !s.seeking {
		s.sink.Resume()
	}
}

// report delivers r unless the session already reported.
func (c *Controller) report(r Report) {
	s := c.s
	if s.reported {
		return
	}
	s.reported = true
	if s.req.OnReport != nil {
		s.req.OnReport(r)
	}
}

// fail reports a fatal error and halts the pipeline; the caller decides
// when to stop.
func (c *Controller) fail(code, status int, msg string) {
	s := c.s
	c.log.Error().Int("code", code).Int("status", status).Msg(msg)
	s.failed = true
	c.downloadT.stop()
	c.sched.Stop()
	if s.decoding {
		c.pauseDecoding()
	}
	c.report(Report{Kind: ReportError, Code: code, Status: status, Message: msg})
}
