//go:build windows

// Package stderr is inert on Windows, whose audio backends do not print to
// the console.
package stderr

import (
	"os"

	"github.com/rs/zerolog"
)

func Start() error { return nil }

func Lines() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}

func Drain(zerolog.Logger) {}

func Original() *os.File { return os.Stderr }

func Stop() {}
