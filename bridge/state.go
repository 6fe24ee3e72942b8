package bridge

import "strconv"

// State is the completion state of an Inbound bridge.
type State uint8

const (
	// Open accepts queued chunks.
	Open State = iota
	// QueuedComplete means the transport reported end of stream while chunks
	// may still be queued.
	QueuedComplete
	// SignaledComplete and SignaledError are terminal: the subscriber got its
	// single terminal signal.
	SignaledComplete
	SignaledError
	// Cancelled is terminal: the subscriber cancelled and gets nothing more.
	Cancelled
)

var stateNames = [...]string{
	Open:             "open",
	QueuedComplete:   "queued-complete",
	SignaledComplete: "signaled-complete",
	SignaledError:    "signaled-error",
	Cancelled:        "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

func (s State) Terminal() bool {
	return s == SignaledComplete || s == SignaledError || s == Cancelled
}

var transitions = [...][]State{
	Open:           {QueuedComplete, SignaledError, Cancelled},
	QueuedComplete: {SignaledComplete, SignaledError, Cancelled},
}

func (s State) canTransition(to State) bool {
	if int(s) >= len(transitions) {
		return false
	}
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}
