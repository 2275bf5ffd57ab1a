package playback

import "github.com/llehouerou/ripple/internal/player"

// State is the coarse state shown to users. The controller's Pausing maps
// to Paused and everything that is not playing maps to Stopped.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

var stateNames = [...]string{"stopped", "playing", "paused"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsActive reports whether a resource is loaded.
func (s State) IsActive() bool { return s != StateStopped }

func fromPlayer(ps player.State) State {
	switch ps {
	case player.Playing:
		return StatePlaying
	case player.Pausing:
		return StatePaused
	}
	return StateStopped
}

// RepeatMode tells the service what to do when a resource finishes.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne            // replay the same URL
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	}
	return "unknown"
}
