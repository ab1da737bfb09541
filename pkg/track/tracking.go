package track

import (
	"sort"

	"github.com/google/uuid"
)

// Trackable is the contract every tracked entity satisfies. Entities obtain
// the tracking surface by embedding Tracking; the unexported accessor seals
// the interface so only embedders can implement it.
type Trackable interface {
	// Kind returns the registry name of the entity's type.
	Kind() string
	// TrackingState returns the entity's current lifecycle marker.
	TrackingState() State
	// SetTrackingState overrides the lifecycle marker directly.
	SetTrackingState(State)
	// ModifiedProperties returns the recorded property names, sorted.
	ModifiedProperties() []string
	// SetModifiedProperties replaces the recorded property names.
	SetModifiedProperties([]string)
	// RecordPropertyChange notes a scalar edit while tracking is active.
	RecordPropertyChange(name string)
	// CorrelationID returns the engine-assigned identifier, or uuid.Nil when
	// the entity has not been assigned one yet.
	CorrelationID() uuid.UUID

	tracking() *Tracking
}

// Equatable lets the merge engine match entities by application identity when
// no correlation identifier is available. Implementations compare natural key
// fields and ignore tracking metadata.
type Equatable interface {
	EntityEquals(other Trackable) bool
}

// Tracking carries the per-entity change-tracking metadata. Embed it by value
// in an entity struct; the entity's pointer type then satisfies Trackable once
// it also defines Kind.
type Tracking struct {
	state     State
	modified  []string
	id        uuid.UUID
	container *Collection
	recording bool
}

func (t *Tracking) tracking() *Tracking { return t }

// TrackingState returns the current lifecycle marker. A zero Tracking reports
// StateUnchanged.
func (t *Tracking) TrackingState() State {
	if t.state == "" {
		return StateUnchanged
	}
	return t.state
}

// SetTrackingState overrides the lifecycle marker. Setting StateUnchanged
// also clears the recorded property names.
func (t *Tracking) SetTrackingState(s State) {
	t.state = s
	if s == StateUnchanged {
		t.modified = nil
	}
}

// ModifiedProperties returns a sorted copy of the recorded property names.
func (t *Tracking) ModifiedProperties() []string {
	if len(t.modified) == 0 {
		return nil
	}
	out := make([]string, len(t.modified))
	copy(out, t.modified)
	sort.Strings(out)
	return out
}

// SetModifiedProperties replaces the recorded property names with a deduped
// copy of names.
func (t *Tracking) SetModifiedProperties(names []string) {
	t.modified = nil
	for _, name := range names {
		if !containsString(t.modified, name) {
			t.modified = append(t.modified, name)
		}
	}
}

// RecordPropertyChange notes that the named scalar property was edited. The
// call is a no-op unless tracking is active for the entity. An unchanged
// entity is promoted to StateModified; a StateAdded or StateDeleted entity
// keeps its marker because insert and delete already subsume any edit.
func (t *Tracking) RecordPropertyChange(name string) {
	if name == "" || !t.recordingActive() {
		return
	}
	switch t.TrackingState() {
	case StateAdded, StateDeleted:
		return
	case StateUnchanged:
		t.state = StateModified
	}
	if !containsString(t.modified, name) {
		t.modified = append(t.modified, name)
	}
}

// CorrelationID returns the engine-assigned identifier, or uuid.Nil when none
// has been assigned. Identifiers are assigned at most once, by GetChanges or
// ApplyChanges, and are stable thereafter.
func (t *Tracking) CorrelationID() uuid.UUID { return t.id }

// recordingActive reports whether scalar edits should currently be recorded.
// Containment wins over the standalone flag so that suspending a collection
// silences every entity it owns.
func (t *Tracking) recordingActive() bool {
	if t.container != nil {
		return t.container.tracking
	}
	return t.recording
}

// ensureID assigns a fresh correlation identifier when none is present.
func (t *Tracking) ensureID() {
	if t.id == uuid.Nil {
		t.id = uuid.New()
	}
}

// restoreID reinstates a persisted correlation identifier during decode or
// merge backfill.
func (t *Tracking) restoreID(id uuid.UUID) { t.id = id }

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
