package notify

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/llehouerou/ripple/internal/log"
	"github.com/llehouerou/ripple/internal/playback"
	"github.com/llehouerou/ripple/internal/player"
	"github.com/llehouerou/ripple/internal/render"
)

// mockNotifier records notifications.
type mockNotifier struct {
	mu   sync.Mutex
	sent []Notification
	next uint32
}

func (m *mockNotifier) Notify(n Notification) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.sent = append(m.sent, n)
	return m.next, nil
}

func (m *mockNotifier) Close(uint32) error { return nil }

func (m *mockNotifier) notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://host/media/clip.wav", "clip.wav"},
		{"ws://host:8080/ws", "ws"},
		{"http://host/dir/a%20b.wav", "a b.wav"},
		{"http://radio.example", "radio.example"},
		{"http://radio.example/", "radio.example"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNowPlaying(t *testing.T) {
	n := NowPlaying(playback.Item{URL: "http://radio.example/stream", Live: true}, 7, 5*time.Second)

	if n.Title != "stream" {
		t.Errorf("Title = %q, want %q", n.Title, "stream")
	}
	if n.Body != "radio.example · live" {
		t.Errorf("Body = %q", n.Body)
	}
	if n.ReplacesID != 7 || n.Timeout != 5000 || n.Urgency != UrgencyLow {
		t.Errorf("unexpected notification %+v", n)
	}
}

func TestWatch_NotifiesItemsAndErrors(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := player.NewMock()
		svc := playback.New(p, playback.NewHub(), nil, log.Nop())
		defer svc.Close()
		mock := &mockNotifier{}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		sub := svc.Subscribe()
		go func() {
			Watch(ctx, mock, sub, time.Second, log.Nop())
			close(done)
		}()

		opts := playback.PlayOptions{Renderer: &render.Stats{}}
		_ = svc.Play("http://host/a.wav", opts)
		synctest.Wait()
		_ = svc.Play("http://host/b.wav", opts)
		synctest.Wait()
		p.Report(player.Report{Kind: player.ReportError, Code: -1, Status: 503, Message: "chunk request failed"})
		synctest.Wait()

		cancel()
		<-done

		sent := mock.notifications()
		if len(sent) != 3 {
			t.Fatalf("sent %d notifications, want 3: %+v", len(sent), sent)
		}
		if sent[0].Title != "a.wav" || sent[0].ReplacesID != 0 {
			t.Errorf("first = %+v", sent[0])
		}
		if sent[1].Title != "b.wav" || sent[1].ReplacesID != 1 {
			t.Errorf("second should replace the first: %+v", sent[1])
		}
		if sent[2].Urgency != UrgencyCritical || sent[2].Title != "Playback failed: b.wav" {
			t.Errorf("error notification = %+v", sent[2])
		}
	})
}

func TestWatch_ReturnsWhenSubscriptionCloses(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		hub := playback.NewHub()
		sub := hub.Subscribe()
		done := make(chan struct{})
		go func() {
			Watch(context.Background(), discard{}, sub, time.Second, log.Nop())
			close(done)
		}()

		hub.Close()
		<-done
	})
}
