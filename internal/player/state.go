package player

// State is the control state of the player.
//
//	┌──────────┐      play       ┌──────────┐
//	│   Idle   │ ───────────────▶│  Playing │
//	└──────────┘                 └──────────┘
//	     ▲                            │ ▲
//	     │ stop                 pause │ │ resume
//	     │                            ▼ │
//	     │                       ┌──────────┐
//	     └───────────────────────│ Pausing  │
//	                  stop       └──────────┘
//
// Playing also goes to Idle on stop or when playback finishes. Seeking
// passes through Pausing. Pausing a live source tears the session down to
// Idle and keeps its parameters for resume.
type State int

const (
	Idle State = iota
	Playing
	Pausing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Playing:
		return "Playing"
	case Pausing:
		return "Pausing"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a session exists (Playing or Pausing).
func (s State) IsActive() bool {
	return s == Playing || s == Pausing
}

// CanPause returns true if the state allows pausing.
func (s State) CanPause() bool {
	return s == Playing
}

// CanResume returns true if the state allows resuming.
func (s State) CanResume() bool {
	return s == Pausing
}

// DecoderState tracks the engine lifecycle within a session.
type DecoderState int

const (
	DecoderIdle DecoderState = iota
	DecoderInitializing
	DecoderReady
	DecoderFinished
)

func (d DecoderState) String() string {
	switch d {
	case DecoderIdle:
		return "Idle"
	case DecoderInitializing:
		return "Initializing"
	case DecoderReady:
		return "Ready"
	case DecoderFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}
