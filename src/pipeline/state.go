package pipeline

// State is the controller's position in a run.
type State int

const (
	Idle State = iota
	Selecting
	Capturing
	Enhancing
	Transcribing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Capturing:
		return "capturing"
	case Enhancing:
		return "enhancing"
	case Transcribing:
		return "transcribing"
	}
	return "unknown"
}

// next lists the legal forward transitions. Any state may return to Idle.
var next = map[State]State{
	Idle:      Selecting,
	Selecting: Capturing,
	Capturing: Enhancing,
	Enhancing: Transcribing,
}

// Observer is notified on every transition.
type Observer func(from, to State)
