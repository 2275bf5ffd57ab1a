// Package player drives a progressive playback session: it paces chunk
// fetches, feeds the decode bridge, buffers decoded units and releases them
// to the audio and video sinks in sync with the audio clock.
//
// All session state is owned by the goroutine running Controller.Run.
// Control calls, fetch completions and decoder events reach it through one
// mailbox; timers are tickers selected on by the same goroutine.
package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/avsync"
	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/download"
	"github.com/llehouerou/ripple/internal/framebuf"
	"github.com/llehouerou/ripple/internal/mailbox"
	"github.com/llehouerou/ripple/internal/media"
	"github.com/llehouerou/ripple/internal/render"
	"github.com/llehouerou/ripple/internal/transport"
)

// PlayRequest starts a session.
type PlayRequest struct {
	URL      string
	Renderer render.Renderer
	// OnReport receives the one error or finished report of the session. It
	// runs on the controller goroutine and must not call the controller.
	OnReport        func(Report)
	WaitHeaderBytes int64 // 0 uses Options.WaitHeaderBytes
	Unbounded       bool  // live source, pulled continuously
}

// Snapshot is a read-only view of the controller, refreshed after every
// batch of events.
type Snapshot struct {
	State     State
	Decoder   DecoderState
	SessionID string
	URL       string
	Position  time.Duration
	Duration  time.Duration
	Buffered  float64 // seconds or units, see Options.MaxBufferUnits
	Buffering bool
	Seeking   bool
	Offset    int64
	Size      int64
	Video     media.VideoParams
	Audio     media.AudioParams
}

// Controller is the playback state machine. Create it with New and run it
// with Run; control methods block until Run has handled them.
type Controller struct {
	opts     Options
	deps     Deps
	observer Observer
	log      zerolog.Logger

	inbox  *mailbox.Mailbox[message]
	done   chan struct{}
	bridge *decoder.Bridge
	snap   atomic.Pointer[Snapshot]

	// Owned by the Run goroutine.
	ctx         context.Context
	state       State
	s           *session
	sessions    uint64
	streamPause *PlayRequest
	sched       *download.Scheduler
	frames      *framebuf.Buffer
	av          *avsync.Engine
	downloadT   loop
	displayT    loop
	trackT      loop
}

// New creates a controller. deps.Audio defaults to no audio output.
func New(deps Deps, opts Options) *Controller {
	opts = opts.withDefaults()

	c := &Controller{
		opts:     opts,
		deps:     deps,
		observer: deps.Observer,
		log:      deps.Logger,
		inbox:    mailbox.New[message](),
		done:     make(chan struct{}),
		sched:    download.NewWithInterval(opts.ChunkInterval),
		av:       avsync.New(),
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if opts.MaxBufferUnits > 0 {
		c.frames = framebuf.New(framebuf.Count, float64(opts.MaxBufferUnits))
	} else {
		c.frames = framebuf.New(framebuf.Time, opts.MaxBufferSeconds)
	}
	c.av.MaxPerTick = opts.DrainPerTick
	if deps.Engine != nil {
		c.bridge = decoder.NewBridge(deps.Engine, func(e decoder.Event) {
			c.inbox.Put(decodeMsg{e})
		}, deps.Logger.With().Str("executor", "decode").Logger())
	}
	c.snap.Store(&Snapshot{})
	return c
}

// Run processes control calls and session events until ctx is done. An
// active session is stopped before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	bridgeCtx, cancelBridge := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	if c.bridge != nil {
		wg.Go(func() { c.bridge.Run(bridgeCtx) })
	}

	defer func() {
		if c.state != Idle {
			c.stop("shutdown")
		}
		c.inbox.Close()
		cancelBridge()
		wg.Wait()
		c.publish()
		close(c.done)
	}()

	c.log.Debug().Msg("controller started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.inbox.Ready():
			for _, m := range c.inbox.Drain() {
				c.handle(m)
			}
		case <-c.downloadT.C():
			c.downloadOneChunk()
		case <-c.displayT.C():
			c.displayTick()
		case <-c.trackT.C():
			c.updateTrackTime()
		}
		c.publish()
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Play starts a session, resumes a paused one, or does nothing while
// playing.
func (c *Controller) Play(req PlayRequest) Result {
	return c.call(command{op: opPlay, play: req})
}

// Pause pauses presentation and decoding; fetching continues.
func (c *Controller) Pause() Result { return c.call(command{op: opPause}) }

// Resume restarts a paused session.
func (c *Controller) Resume() Result { return c.call(command{op: opResume}) }

// Stop ends the session and releases every resource it holds.
func (c *Controller) Stop() Result { return c.call(command{op: opStop}) }

// SeekTo moves playback to ms milliseconds.
func (c *Controller) SeekTo(ms int64) Result {
	return c.call(command{op: opSeek, ms: ms})
}

// State returns the current control state.
func (c *Controller) State() State { return c.snap.Load().State }

// Snapshot returns the latest published view.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

func (c *Controller) call(cmd command) Result {
	cmd.reply = make(chan Result, 1)
	if !c.inbox.Put(cmd) {
		return result(CodeClosed)
	}
	select {
	case r := <-cmd.reply:
		return r
	case <-c.done:
		select {
		case r := <-cmd.reply:
			return r
		default:
			return result(CodeClosed)
		}
	}
}

func (c *Controller) handle(m message) {
	switch m := m.(type) {
	case command:
		r := c.exec(m)
		// Callers read State right after the call returns.
		c.publish()
		m.reply <- r
	case sizeMsg:
		c.onSize(m)
	case chunkMsg:
		c.onChunk(m)
	case streamMsg:
		c.onStreamData(m)
	case streamEndMsg:
		c.onStreamEnd(m)
	case decodeMsg:
		c.onDecoderEvent(m.Event)
	case seekResumeMsg:
		c.onSeekResume(m)
	}
}

func (c *Controller) exec(cmd command) Result {
	var r Result
	switch cmd.op {
	case opPlay:
		r = c.play(cmd.play)
	case opPause:
		r = c.pause()
	case opResume:
		r = c.resume(false)
	case opStop:
		if c.state == Idle && c.streamPause != nil {
			c.streamPause = nil
			return result(CodeSuccess)
		}
		c.streamPause = nil
		r = c.stop("stopped")
	case opSeek:
		r = c.seekTo(cmd.ms)
	}
	if !r.OK() {
		c.log.Debug().Stringer("op", cmd.op).Stringer("result", r).Msg("control call rejected")
	}
	return r
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	c.log.Info().Stringer("from", prev).Stringer("to", s).Msg("player state")
	c.observer.StateChanged(prev, s)
}

func (c *Controller) publish() {
	snap := &Snapshot{State: c.state, Buffered: c.frames.Occupancy()}
	if s := c.s; s != nil {
		snap.Decoder = s.decoderState
		snap.SessionID = s.uuid
		snap.URL = s.req.URL
		snap.Position = s.position
		snap.Duration = time.Duration(s.video.DurationMs) * time.Millisecond
		snap.Buffering = s.buffering
		snap.Seeking = s.seeking
		snap.Offset = s.desc.Offset
		snap.Size = s.desc.Size
		snap.Video = s.video
		snap.Audio = s.audio
	}
	c.snap.Store(snap)
}

type op int

const (
	opPlay op = iota
	opPause
	opResume
	opStop
	opSeek
)

func (o op) String() string {
	switch o {
	case opPlay:
		return "play"
	case opPause:
		return "pause"
	case opResume:
		return "resume"
	case opStop:
		return "stop"
	case opSeek:
		return "seek"
	default:
		return "unknown"
	}
}

type message interface{}

type command struct {
	op    op
	play  PlayRequest
	ms    int64
	reply chan Result
}

type sizeMsg struct {
	session uint64
	info    transport.SizeInfo
	err     error
}

type chunkMsg struct {
	session uint64
	seq     int64
	chunk   transport.Chunk
	err     error
}

type streamMsg struct {
	session uint64
	data    []byte
}

type streamEndMsg struct {
	session uint64
	err     error
}

type decodeMsg struct {
	decoder.Event
}

type seekResumeMsg struct {
	session uint64
}

// loop is a restartable ticker whose channel is nil while stopped.
type loop struct {
	t *time.Ticker
}

func (l *loop) start(d time.Duration) {
	d = max(d, time.Millisecond)
	if l.t != nil {
		l.t.Reset(d)
		return
	}
	l.t = time.NewTicker(d)
}

func (l *loop) stop() {
	if l.t != nil {
		l.t.Stop()
		l.t = nil
	}
}

func (l *loop) active() bool { return l.t != nil }

func (l *loop) C() <-chan time.Time {
	if l.t == nil {
		return nil
	}
	return l.t.C
}
