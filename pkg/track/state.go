// Package track implements disconnected change tracking over entity graphs.
// An application attaches a graph of entities to a Session, mutates it while
// detached from any backend, and later extracts the changed subgraph
// (GetChanges), replays backend results into the original graph
// (MergeChanges), or drives a persistence StateMachine from the recorded
// markers (ApplyChanges). Entities participate by embedding Tracking and
// registering a Descriptor that tells the engine how to traverse them.
package track

import "fmt"

// State describes the lifecycle marker an entity carries while it is tracked.
type State string

const (
	// StateUnchanged marks an entity that matches its persisted form.
	StateUnchanged State = "unchanged"
	// StateAdded marks an entity created while tracking was active.
	StateAdded State = "added"
	// StateModified marks an entity with at least one recorded property edit.
	StateModified State = "modified"
	// StateDeleted marks an entity removed from its collection and cached for
	// a later delete against the backend.
	StateDeleted State = "deleted"
)

// Valid reports whether s is one of the defined lifecycle markers.
func (s State) Valid() bool {
	switch s {
	case StateUnchanged, StateAdded, StateModified, StateDeleted:
		return true
	default:
		return false
	}
}

// ParseState converts a wire-format marker into a State.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("track: unknown state %q", raw)
	}
	return s, nil
}
