//go:build linux

package notify

import (
	"os"
	"testing"
)

func requireSessionBus(t *testing.T) {
	t.Helper()
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no D-Bus session available")
	}
}

func TestBusNotifier_NotifyAndReplace(t *testing.T) {
	requireSessionBus(t)

	n, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	id, err := n.Notify(Notification{Title: "clip.wav", Body: "host", Timeout: 1000})
	if err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if id == 0 {
		t.Fatal("Notify() returned id 0")
	}

	again, err := n.Notify(Notification{Title: "other.wav", Timeout: 1000, ReplacesID: id})
	if err != nil {
		t.Fatalf("replacing Notify() error: %v", err)
	}
	if again != id {
		t.Errorf("replacement id = %d, want %d", again, id)
	}
	if err := n.Close(again); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
