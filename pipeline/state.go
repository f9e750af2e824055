package pipeline

// State is the stage a change event reached.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateDecorated
	StateDiffed
	StateRecomputing
	StatePersisted
	StateDone
	StateRejected
	StateFailed
	// StateIgnored marks events of a type the pipeline does not handle.
	StateIgnored
)

var stateNames = [...]string{
	StateReceived:    "received",
	StateValidated:   "validated",
	StateDecorated:   "decorated",
	StateDiffed:      "diffed",
	StateRecomputing: "recomputing",
	StatePersisted:   "persisted",
	StateDone:        "done",
	StateRejected:    "rejected",
	StateFailed:      "failed",
	StateIgnored:     "ignored",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateRejected, StateFailed, StateIgnored:
		return true
	}
	return false
}
