//go:build !linux

package mpris

import (
	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/playback"
)

// Adapter does nothing outside Linux.
type Adapter struct{}

// New returns an inert adapter.
func New(playback.Service, playback.PlayOptions, zerolog.Logger) (*Adapter, error) {
	return &Adapter{}, nil
}

func (a *Adapter) Close() error { return nil }
