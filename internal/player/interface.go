package player

// Interface is the control surface, for dependency injection and testing.
type Interface interface {
	Play(req PlayRequest) Result
	Pause() Result
	Resume() Result
	Stop() Result
	SeekTo(ms int64) Result
	State() State
	Snapshot() Snapshot
}

// Verify Controller implements Interface at compile time.
var _ Interface = (*Controller)(nil)
