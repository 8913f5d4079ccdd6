package autosave

// State is the autosave worker's current phase.
type State int32

const (
	Idle State = iota
	WaitingForRequest
	Delaying
	Copying
	Flattening
	Notifying
	Stopped
)

var stateNames = [...]string{
	Idle:              "idle",
	WaitingForRequest: "waiting",
	Delaying:          "delaying",
	Copying:           "copying",
	Flattening:        "flattening",
	Notifying:         "notifying",
	Stopped:           "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
