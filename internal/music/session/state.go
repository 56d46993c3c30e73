package session

// State is the playback state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StatePlaying
	StatePaused
	StateErrorRecovering
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateErrorRecovering:
		return "error-recovering"
	default:
		return "unknown"
	}
}

// Active reports whether an entry occupies the current slot in this state.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// CloseReason records why a Session was torn down.
type CloseReason string

const (
	ReasonStopped      CloseReason = "stopped"
	ReasonIdle         CloseReason = "idle"
	ReasonDisconnected CloseReason = "disconnected"
	ReasonShutdown     CloseReason = "shutdown"
)
