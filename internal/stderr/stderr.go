//go:build !windows

// Package stderr captures file descriptor 2, so that messages printed by the
// native audio stack (ALSA, oto) reach the logger instead of garbling the
// terminal.
package stderr

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

var (
	mu       sync.Mutex
	origFile *os.File // fd 2 as it was before Start
	pipeW    *os.File
	lines    = closedLines()
)

func closedLines() chan string {
	ch := make(chan string)
	close(ch)
	return ch
}

// Start redirects fd 2 into a pipe. Captured lines are read from Lines. A
// second call while capturing does nothing.
func Start() error {
	mu.Lock()
	defer mu.Unlock()
	if origFile != nil {
		return nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	saved, err := syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("dup stderr: %w", err)
	}
	if err := syscall.Dup2(int(w.Fd()), int(os.Stderr.Fd())); err != nil {
		syscall.Close(saved)
		r.Close()
		w.Close()
		return fmt.Errorf("redirect stderr: %w", err)
	}

	origFile = os.NewFile(uintptr(saved), "stderr")
	pipeW = w
	lines = make(chan string, 100)
	go scan(r, lines)
	return nil
}

func scan(r *os.File, out chan<- string) {
	defer close(out)
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case out <- line:
		default:
			// Nobody is draining: drop rather than block the writer.
		}
	}
}

// Lines returns the captured lines. It is closed by Stop, and already closed
// when not capturing.
func Lines() <-chan string {
	mu.Lock()
	defer mu.Unlock()
	return lines
}

// Drain logs every captured line at warn level until Stop.
func Drain(logger zerolog.Logger) {
	for line := range Lines() {
		logger.Warn().Str("source", "stderr").Msg(line)
	}
}

// Original is the stderr in place before Start, or os.Stderr when not
// capturing. Log output must go there while capturing.
func Original() *os.File {
	mu.Lock()
	defer mu.Unlock()
	if origFile == nil {
		return os.Stderr
	}
	return origFile
}

// Stop restores fd 2.
func Stop() {
	mu.Lock()
	defer mu.Unlock()
	if origFile == nil {
		return
	}
	_ = syscall.Dup2(int(origFile.Fd()), int(os.Stderr.Fd()))
	_ = origFile.Close()
	origFile = nil

	// fd 2 no longer refers to the pipe, so this closes the last write end
	// and the scanner sees EOF.
	_ = pipeW.Close()
	pipeW = nil
}
