package widget

// State enumerates the controller lifecycle. Idle, Recording and Thinking
// all imply a live media session; illegal combinations (recording while
// thinking, recording while disconnected) cannot be expressed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateRecording
	StateThinking
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateThinking:
		return "thinking"
	default:
		return "disconnected"
	}
}

// Connected reports whether the state implies a live media session.
func (s State) Connected() bool {
	switch s {
	case StateIdle, StateRecording, StateThinking:
		return true
	default:
		return false
	}
}
