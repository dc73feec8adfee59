package session

// State is the recording/playback state of the session.
type State int32

const (
	Idle State = iota
	Recording
	Playingback
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Playingback:
		return "Playingback"
	default:
		return "Unknown"
	}
}
