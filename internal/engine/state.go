package engine

// State is a batch coordinator phase.
//
// Transitions are strictly sequential:
//
//	Idle → Planning → Fetching → Executing → Committing → Idle
//
// Any failure returns the coordinator to Idle with the batch discarded.
type State int32

const (
	StateIdle State = iota
	StatePlanning
	StateFetching
	StateExecuting
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateFetching:
		return "fetching"
	case StateExecuting:
		return "executing"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}
