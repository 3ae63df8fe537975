package arena

// State is the controller's lifecycle position.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateCompleted
	StateErrorTerminated
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateErrorTerminated:
		return "error_terminated"
	default:
		return "not_started"
	}
}

// Terminal reports whether the game has finished, either way.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrorTerminated
}
