package provision

// State is the provisioning session state.
type State int

const (
	// StateIdle is the initial state before credentials are sent.
	StateIdle State = iota
	// StateSendingCredentials covers the credential characteristic write.
	StateSendingCredentials
	// StateAwaitingJoin is the wait for the light to join WiFi, with both
	// detection channels (notification and poll) armed.
	StateAwaitingJoin
	// StateConfirming covers the confirmation write back to the light.
	StateConfirming
	// StateConfirmed is the terminal success state: confirmation sent and
	// the device record persisted.
	StateConfirmed
	// StateFailed is the terminal state for a session that got a response
	// but could not complete (credential write error, confirmation error).
	StateFailed
	// StateTimedOut is the terminal state for a session that never heard
	// back from the light within the deadline.
	StateTimedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSendingCredentials:
		return "sending_credentials"
	case StateAwaitingJoin:
		return "awaiting_join"
	case StateConfirming:
		return "confirming"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is finished in this state.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}
