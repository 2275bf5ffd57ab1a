package playback

import (
	"time"

	"github.com/llehouerou/ripple/internal/player"
)

// Item is the resource the service is playing.
type Item struct {
	HistoryID int64 // 0 when history is disabled
	URL       string
	Live      bool
	Started   time.Time
}

// StateChange is emitted when playback state changes.
type StateChange struct {
	Previous State
	Current  State
}

// BufferingChange is emitted when the buffering indicator should be shown
// or hidden.
type BufferingChange struct {
	Active bool
}

// PositionChange is emitted by the position update loop and on seek.
type PositionChange struct {
	Position time.Duration
	Duration time.Duration
}

// ItemChange is emitted when playback starts on a different resource.
// Repeating the same resource does not emit it.
type ItemChange struct {
	Previous *Item
	Current  *Item
}

// FinishedEvent is emitted when a resource plays to its end.
type FinishedEvent struct {
	Item     Item
	Repeated bool // playback restarted because of RepeatOne
}

// ErrorEvent is emitted when a session reports a failure.
type ErrorEvent struct {
	Item    Item
	Report  player.Report
	Message string // user-facing, see errmsg
}
