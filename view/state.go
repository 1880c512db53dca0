package view

import "fmt"

// State tracks where a view is in its load cycle.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// allowedTransition validates the view load cycle: loads start from
// Unloaded, Ready or Failed (a failed view retries like an unloaded one),
// and a load either succeeds or fails.
func allowedTransition(from, to State) bool {
	switch from {
	case Unloaded, Failed:
		return to == Loading
	case Ready:
		return to == Loading
	case Loading:
		return to == Ready || to == Failed
	default:
		return false
	}
}
