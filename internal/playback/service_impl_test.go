package playback

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/log"
	"github.com/llehouerou/ripple/internal/player"
	"github.com/llehouerou/ripple/internal/render"
)

const (
	testURLA = "http://host/a.wav"
	testURLB = "http://host/b.wav"
	testLive = "http://host/live"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, rec Recorder) (Service, *player.Mock) {
	t.Helper()
	p := player.NewMock()
	svc := New(p, NewHub(), rec, log.Nop())
	t.Cleanup(func() { svc.Close() })
	return svc, p
}

func opts() PlayOptions {
	return PlayOptions{Renderer: &render.Stats{}}
}

func TestService_State_ReflectsPlayer(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if svc.State() != StateStopped {
		t.Errorf("State() = %v, want Stopped", svc.State())
	}
	if err := svc.Play(testURLA, opts()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !svc.IsPlaying() {
		t.Errorf("State() = %v, want Playing", svc.State())
	}
	if err := svc.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !svc.IsPaused() {
		t.Errorf("State() = %v, want Paused", svc.State())
	}
}

func TestService_Play_RejectedReturnsResultError(t *testing.T) {
	svc, p := newTestService(t, nil)
	p.SetPlayError(player.CodeInvalidURL)

	err := svc.Play("nope", opts())

	var re *ResultError
	if !errors.As(err, &re) {
		t.Fatalf("Play() error = %v, want *ResultError", err)
	}
	if CodeOf(err) != player.CodeInvalidURL {
		t.Errorf("CodeOf = %d, want %d", CodeOf(err), player.CodeInvalidURL)
	}
	if re.Error() != "start playback: Invalid url" {
		t.Errorf("Error() = %q", re.Error())
	}
	if svc.Current() != nil {
		t.Error("Current() should be nil after a rejected play")
	}
}

func TestService_Play_SameURLResumes(t *testing.T) {
	svc, p := newTestService(t, nil)

	_ = svc.Play(testURLA, opts())
	_ = svc.Pause()
	if err := svc.Play(testURLA, opts()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if svc.State() != StatePlaying {
		t.Errorf("State() = %v, want Playing", svc.State())
	}
	if calls := p.PlayCalls(); len(calls) != 2 {
		t.Errorf("PlayCalls() = %v, want 2 calls", calls)
	}
}

func TestService_Play_OtherURLReplaces(t *testing.T) {
	store := openStore(t)
	svc, p := newTestService(t, store)
	sub := svc.Subscribe()

	_ = svc.Play(testURLA, opts())
	if err := svc.Play(testURLB, opts()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if cur := svc.Current(); cur == nil || cur.URL != testURLB {
		t.Fatalf("Current() = %+v, want %s", cur, testURLB)
	}
	if snap := p.Snapshot(); snap.URL != testURLB {
		t.Errorf("player URL = %q, want %q", snap.URL, testURLB)
	}

	first := <-sub.ItemChanged
	if first.Previous != nil || first.Current.URL != testURLA {
		t.Errorf("first ItemChanged = %+v", first)
	}
	second := <-sub.ItemChanged
	if second.Previous == nil || second.Previous.URL != testURLA || second.Current.URL != testURLB {
		t.Errorf("second ItemChanged = %+v", second)
	}

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[1].Outcome != history.OutcomeReplaced {
		t.Errorf("first play outcome = %q, want %q", entries[1].Outcome, history.OutcomeReplaced)
	}
	if entries[0].EndedAt != nil {
		t.Error("current play should still be open")
	}
}

func TestService_Stop_RecordsPosition(t *testing.T) {
	store := openStore(t)
	svc, _ := newTestService(t, store)

	_ = svc.Play(testURLA, opts())
	if err := svc.SeekTo(42 * time.Second); err != nil {
		t.Fatalf("SeekTo() error = %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if !svc.IsStopped() {
		t.Errorf("State() = %v, want Stopped", svc.State())
	}
	pos, err := store.LastPosition(context.Background(), testURLA)
	if err != nil {
		t.Fatalf("LastPosition failed: %v", err)
	}
	if pos != 42*time.Second {
		t.Errorf("LastPosition = %v, want 42s", pos)
	}
}

func TestService_Stop_WhenIdle(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if code := CodeOf(svc.Stop()); code != player.CodeNotPlaying {
		t.Errorf("CodeOf(Stop()) = %d, want %d", code, player.CodeNotPlaying)
	}
}

func TestService_Seek_ClampsToDuration(t *testing.T) {
	svc, p := newTestService(t, nil)
	p.SetDuration(time.Minute)
	_ = svc.Play(testURLA, opts())

	_ = svc.SeekTo(50 * time.Second)
	_ = svc.Seek(30 * time.Second)
	_ = svc.Seek(-5 * time.Minute)

	want := []int64{50000, 60000, 0}
	got := p.SeekCalls()
	if len(got) != len(want) {
		t.Fatalf("SeekCalls() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SeekCalls()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestService_Seek_EmitsPosition(t *testing.T) {
	svc, p := newTestService(t, nil)
	p.SetDuration(time.Minute)
	sub := svc.Subscribe()
	_ = svc.Play(testURLA, opts())

	_ = svc.SeekTo(10 * time.Second)

	select {
	case e := <-sub.PositionChanged:
		if e.Position != 10*time.Second || e.Duration != time.Minute {
			t.Errorf("PositionChanged = %+v", e)
		}
	default:
		t.Fatal("no PositionChanged after seek")
	}
}

func TestService_Toggle(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if code := CodeOf(svc.Toggle()); code != player.CodeNotPausing {
		t.Errorf("Toggle() while stopped: code = %d, want %d", code, player.CodeNotPausing)
	}

	_ = svc.Play(testURLA, opts())
	_ = svc.Toggle()
	if !svc.IsPaused() {
		t.Errorf("State() = %v, want Paused", svc.State())
	}
	_ = svc.Toggle()
	if !svc.IsPlaying() {
		t.Errorf("State() = %v, want Playing", svc.State())
	}
}

func TestService_LivePauseReportsPaused(t *testing.T) {
	svc, p := newTestService(t, nil)
	live := opts()
	live.Live = true

	_ = svc.Play(testLive, live)
	if err := svc.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	// The mock keeps Pausing; the flag is what makes the service say Paused
	// even when the controller went idle for the teardown.
	if !svc.IsPaused() {
		t.Errorf("State() = %v, want Paused", svc.State())
	}
	if err := svc.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if p.State() != player.Playing {
		t.Errorf("player state = %v, want Playing", p.State())
	}
}

func TestService_FinishedReport(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := openStore(t)
		svc, p := newTestService(t, store)
		p.SetDuration(time.Minute)
		sub := svc.Subscribe()

		_ = svc.Play(testURLA, opts())
		p.Report(player.Report{Kind: player.ReportFinished, Code: player.FinishedCode, Message: "Finished"})
		synctest.Wait()

		e := <-sub.Finished
		if e.Item.URL != testURLA || e.Repeated {
			t.Errorf("Finished = %+v", e)
		}
		if svc.Current() != nil {
			t.Error("Current() should be nil after finish")
		}

		entries, _ := store.Recent(context.Background(), 1)
		if len(entries) != 1 || entries[0].Outcome != history.OutcomeFinished {
			t.Fatalf("entries = %+v, want one finished play", entries)
		}
		if entries[0].Code != player.FinishedCode {
			t.Errorf("Code = %d, want %d", entries[0].Code, player.FinishedCode)
		}
	})
}

func TestService_RepeatOneReplays(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		svc, p := newTestService(t, nil)
		sub := svc.Subscribe()
		if mode := svc.CycleRepeatMode(); mode != RepeatOne {
			t.Fatalf("CycleRepeatMode() = %v, want One", mode)
		}

		_ = svc.Play(testURLA, opts())
		<-sub.ItemChanged
		p.Report(player.Report{Kind: player.ReportFinished, Code: player.FinishedCode, Message: "Finished"})
		synctest.Wait()

		if e := <-sub.Finished; !e.Repeated {
			t.Error("Finished.Repeated = false, want true")
		}
		if calls := p.PlayCalls(); len(calls) != 2 || calls[1] != testURLA {
			t.Errorf("PlayCalls() = %v, want a replay of %s", calls, testURLA)
		}
		if !svc.IsPlaying() {
			t.Errorf("State() = %v, want Playing", svc.State())
		}
		select {
		case e := <-sub.ItemChanged:
			t.Errorf("unexpected ItemChanged on repeat: %+v", e)
		default:
		}
	})
}

func TestService_ErrorReportStopsAndRecords(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := openStore(t)
		svc, p := newTestService(t, store)
		sub := svc.Subscribe()

		_ = svc.Play(testURLA, opts())
		p.Report(player.Report{Kind: player.ReportError, Code: -1, Status: 404, Message: "size request failed"})
		synctest.Wait()

		e := <-sub.Error
		want := "Failed to fetch media '" + testURLA + "': size request failed"
		if e.Message != want {
			t.Errorf("Message = %q, want %q", e.Message, want)
		}
		if e.Report.Status != 404 {
			t.Errorf("Status = %d, want 404", e.Report.Status)
		}
		if p.State() != player.Idle {
			t.Errorf("player state = %v, want Idle", p.State())
		}

		entries, _ := store.Recent(context.Background(), 1)
		if len(entries) != 1 || entries[0].Outcome != history.OutcomeFailed || entries[0].Status != 404 {
			t.Errorf("entries = %+v, want one failed play with status 404", entries)
		}
	})
}

func TestService_Close(t *testing.T) {
	store := openStore(t)
	p := player.NewMock()
	svc := New(p, NewHub(), store, log.Nop())
	sub := svc.Subscribe()
	_ = svc.Play(testURLA, opts())

	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Done")
	}
	if err := svc.Play(testURLB, opts()); !errors.Is(err, ErrClosed) {
		t.Errorf("Play() after Close = %v, want ErrClosed", err)
	}

	entries, _ := store.Recent(context.Background(), 1)
	if len(entries) != 1 || entries[0].Outcome != history.OutcomeStopped {
		t.Errorf("entries = %+v, want the open play closed as stopped", entries)
	}
}
