//go:build !windows

package stderr

import (
	"bytes"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCapture_ForwardsLinesAndRestores(t *testing.T) {
	if err := Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if Original() == nil {
		t.Fatal("Original() = nil while capturing")
	}

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		Drain(zerolog.New(&buf))
		close(done)
	}()

	if _, err := syscall.Write(2, []byte("ALSA lib pcm.c: underrun occurred\n\n")); err != nil {
		t.Fatalf("write fd 2: %v", err)
	}
	// Give the scanner a moment before the pipe is closed.
	time.Sleep(50 * time.Millisecond)
	Stop()
	Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after Stop")
	}
	out := buf.String()
	if !strings.Contains(out, "underrun occurred") || !strings.Contains(out, `"source":"stderr"`) {
		t.Errorf("log output = %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("blank lines should be skipped, got %q", out)
	}
}

func TestLines_ClosedWhenNotCapturing(t *testing.T) {
	select {
	case _, ok := <-Lines():
		if ok {
			t.Error("Lines() delivered a value while not capturing")
		}
	case <-time.After(time.Second):
		t.Fatal("Lines() should be closed while not capturing")
	}
}
