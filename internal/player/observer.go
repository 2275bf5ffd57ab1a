package player

import "time"

// Observer receives presentation updates for UI glue. Methods are called on
// the controller goroutine and must not block or call the controller.
type Observer interface {
	StateChanged(prev, cur State)
	Buffering(active bool)
	Position(pos, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}

func (nopObserver) Buffering(bool) {}

func (nopObserver) Position(time.Duration, time.Duration) {}
