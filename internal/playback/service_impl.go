package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/mailbox"
	"github.com/llehouerou/ripple/internal/player"
)

// Verify serviceImpl implements Service at compile time.
var _ Service = (*serviceImpl)(nil)

const recordTimeout = 5 * time.Second

type serviceImpl struct {
	mu sync.Mutex

	player player.Interface
	hub    *Hub
	rec    Recorder
	log    zerolog.Logger

	current    *Item
	opts       PlayOptions
	repeat     RepeatMode
	livePaused bool

	reports *mailbox.Mailbox[reportMsg]
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

type reportMsg struct {
	item   *Item
	report player.Report
}

// New creates a playback service driving p. hub must be the observer p was
// created with. rec may be nil to disable history.
func New(p player.Interface, hub *Hub, rec Recorder, logger zerolog.Logger) Service {
	s := &serviceImpl{
		player:  p,
		hub:     hub,
		rec:     rec,
		log:     logger,
		reports: mailbox.New[reportMsg](),
		done:    make(chan struct{}),
	}
	s.wg.Go(s.run)
	return s
}

// run handles session reports off the controller goroutine, so that it may
// call back into the player.
func (s *serviceImpl) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.reports.Ready():
			for _, m := range s.reports.Drain() {
				s.handleReport(m)
			}
		}
	}
}

// Play starts url. Playing the current resource again resumes it if paused;
// playing another one replaces it.
func (s *serviceImpl) Play(url string, opts PlayOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if cur := s.current; cur != nil {
		if cur.URL == url && !s.livePaused && s.player.State() != player.Idle {
			return s.check(errmsg.OpPlaybackStart, s.player.Play(player.PlayRequest{URL: url}))
		}
		s.stopLocked(history.OutcomeReplaced)
	}
	return s.startLocked(url, opts)
}

func (s *serviceImpl) startLocked(url string, opts PlayOptions) error {
	item := &Item{URL: url, Live: opts.Live, Started: time.Now()}
	r := s.player.Play(player.PlayRequest{
		URL:             url,
		Renderer:        opts.Renderer,
		WaitHeaderBytes: opts.WaitHeaderBytes,
		Unbounded:       opts.Live,
		OnReport: func(r player.Report) {
			s.reports.Put(reportMsg{item: item, report: r})
		},
	})
	if err := s.check(errmsg.OpPlaybackStart, r); err != nil {
		return err
	}

	if s.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		id, err := s.rec.Begin(ctx, history.Play{
			Session: s.player.Snapshot().SessionID,
			URL:     url,
			Live:    opts.Live,
		})
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("url", url).Msg(errmsg.Format(errmsg.OpHistoryRecord, err))
		}
		item.HistoryID = id
	}

	prev := s.current
	s.current = item
	s.opts = opts
	s.livePaused = false
	if prev == nil || prev.URL != url {
		s.hub.itemChanged(ItemChange{Previous: prev, Current: copyItem(item)})
	}
	s.log.Info().Str("url", url).Bool("live", opts.Live).Int64("history_id", item.HistoryID).Msg("playback started")
	return nil
}

func (s *serviceImpl) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(errmsg.OpPlaybackPause, s.player.Pause()); err != nil {
		return err
	}
	if s.current != nil && s.current.Live {
		s.livePaused = true
	}
	return nil
}

func (s *serviceImpl) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(errmsg.OpPlaybackResume, s.player.Resume()); err != nil {
		return err
	}
	s.livePaused = false
	return nil
}

func (s *serviceImpl) Toggle() error {
	if s.State() == StatePlaying {
		return s.Pause()
	}
	return s.Resume()
}

func (s *serviceImpl) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return s.check(errmsg.OpPlaybackStop, s.player.Stop())
	}
	s.stopLocked(history.OutcomeStopped)
	return nil
}

// stopLocked stops the player and closes the current history entry.
func (s *serviceImpl) stopLocked(outcome string) {
	snap := s.player.Snapshot()
	if r := s.player.Stop(); !r.OK() {
		s.log.Debug().Stringer("result", r).Msg("stop on idle player")
	}
	s.record(s.current, history.End{Outcome: outcome, Position: snap.Position, Duration: snap.Duration})
	s.current = nil
	s.livePaused = false
}

// Seek moves by delta from the current position, clamped to the resource.
func (s *serviceImpl) Seek(delta time.Duration) error {
	snap := s.player.Snapshot()
	target := snap.Position + delta
	if snap.Duration > 0 {
		target = lo.Clamp(target, 0, snap.Duration)
	}
	return s.SeekTo(max(target, 0))
}

func (s *serviceImpl) SeekTo(position time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(errmsg.OpPlaybackSeek, s.player.SeekTo(position.Milliseconds())); err != nil {
		return err
	}
	s.hub.Position(position, s.player.Snapshot().Duration)
	return nil
}

func (s *serviceImpl) handleReport(m reportMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, r := *m.item, m.report
	isCurrent := s.current == m.item
	snap := s.player.Snapshot()

	if r.Kind == player.ReportFinished {
		s.record(m.item, history.End{
			Outcome:  history.OutcomeFinished,
			Code:     r.Code,
			Message:  r.Message,
			Position: snap.Duration,
			Duration: snap.Duration,
		})
		repeated := isCurrent && !s.closed && s.repeat == RepeatOne
		s.hub.finished(FinishedEvent{Item: item, Repeated: repeated})
		if !isCurrent {
			return
		}
		if repeated {
			err := s.startLocked(item.URL, s.opts)
			if err == nil {
				return
			}
			s.log.Error().Err(err).Str("url", item.URL).Msg("repeat failed")
		}
		s.current = nil
		return
	}

	op := errmsg.OpPlaybackDecode
	if r.Code == -1 {
		op = errmsg.OpPlaybackFetch
	}
	msg := errmsg.FormatWith(op, item.URL, errors.New(r.Message))
	s.log.Error().Int("code", r.Code).Int("status", r.Status).Str("url", item.URL).Msg(msg)
	s.record(m.item, history.End{
		Outcome:  history.OutcomeFailed,
		Code:     r.Code,
		Status:   r.Status,
		Message:  r.Message,
		Position: snap.Position,
		Duration: snap.Duration,
	})
	s.hub.failed(ErrorEvent{Item: item, Report: r, Message: msg})

	// The controller halts on failure; the service ends the session.
	if isCurrent {
		s.player.Stop()
		s.current = nil
		s.livePaused = false
	}
}

// record closes the history entry of item, if any.
func (s *serviceImpl) record(item *Item, e history.End) {
	if s.rec == nil || item == nil || item.HistoryID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.rec.Finish(ctx, item.HistoryID, e); err != nil {
		s.log.Warn().Err(err).Int64("history_id", item.HistoryID).Msg(errmsg.Format(errmsg.OpHistoryRecord, err))
	}
}

func (s *serviceImpl) check(op errmsg.Op, r player.Result) error {
	if r.OK() {
		return nil
	}
	return &ResultError{Op: op, Result: r}
}

func (s *serviceImpl) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.livePaused {
		return StatePaused
	}
	return fromPlayer(s.player.State())
}

func (s *serviceImpl) IsPlaying() bool { return s.State() == StatePlaying }

func (s *serviceImpl) IsStopped() bool { return s.State() == StateStopped }

func (s *serviceImpl) IsPaused() bool { return s.State() == StatePaused }

// Position returns the current playback position.
func (s *serviceImpl) Position() time.Duration {
	return s.player.Snapshot().Position
}

// Duration returns the duration of the current resource, 0 if unknown.
func (s *serviceImpl) Duration() time.Duration {
	return s.player.Snapshot().Duration
}

// Current returns a copy of the current item, or nil.
func (s *serviceImpl) Current() *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItem(s.current)
}

func (s *serviceImpl) Player() player.Interface { return s.player }

func (s *serviceImpl) RepeatMode() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

func (s *serviceImpl) SetRepeatMode(mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = mode
}

// CycleRepeatMode switches Off -> One -> Off and returns the new mode.
func (s *serviceImpl) CycleRepeatMode() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repeat == RepeatOff {
		s.repeat = RepeatOne
	} else {
		s.repeat = RepeatOff
	}
	return s.repeat
}

func (s *serviceImpl) Subscribe() *Subscription {
	return s.hub.Subscribe()
}

// Close stops report handling and signals subscribers. It leaves the player
// running; an open history entry is closed as stopped.
func (s *serviceImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.reports.Close()

	s.mu.Lock()
	if s.current != nil {
		snap := s.player.Snapshot()
		s.record(s.current, history.End{Outcome: history.OutcomeStopped, Position: snap.Position, Duration: snap.Duration})
		s.current = nil
	}
	s.mu.Unlock()

	s.hub.Close()
	return nil
}

func copyItem(it *Item) *Item {
	if it == nil {
		return nil
	}
	c := *it
	return &c
}
