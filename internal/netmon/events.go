package netmon

// OperState is the binary operational state of a link.
type OperState string

const (
	OperUp   OperState = "up"
	OperDown OperState = "down"
)

// ParseOperState maps any value other than "up" to OperDown.
func ParseOperState(s string) OperState {
	if s == string(OperUp) {
		return OperUp
	}
	return OperDown
}

type OperStatusEvent struct {
	InterfaceName string
	State         OperState

	// Baseline marks the state of a link that already existed when the
	// watcher started. It is not a transition.
	Baseline bool
	// Removed marks a link that disappeared from the system.
	Removed bool
}

// EventHandler receives watcher reports on the watcher's goroutine.
type EventHandler func(event OperStatusEvent)
