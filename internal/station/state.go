package station

// State is a step of the capture transaction.
type State int32

const (
	Idle State = iota
	Capturing
	Deciding
	Dispatching
	Recording
	CaptureFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Deciding:
		return "deciding"
	case Dispatching:
		return "dispatching"
	case Recording:
		return "recording"
	case CaptureFailed:
		return "capture_failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
