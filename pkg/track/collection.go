package track

import "fmt"

// Collection is an ordered, homogeneous container of tracked entities. While
// tracking is on it intercepts membership changes: additions mark the entity
// StateAdded and removals cache the entity as a pending delete instead of
// forgetting it. A zero Collection is not usable; construct with
// NewCollection or through an entity constructor.
type Collection struct {
	kind     string
	tracking bool
	items    []Trackable
	deleted  []Trackable
	session  *Session
}

// NewCollection returns an empty collection for entities of the given kind.
// Tracking starts off; attaching the graph to a Session turns it on.
func NewCollection(kind string) *Collection {
	return &Collection{kind: kind}
}

// Kind returns the entity kind this collection holds.
func (c *Collection) Kind() string { return c.kind }

// Tracking reports whether membership interception is active.
func (c *Collection) Tracking() bool { return c.tracking }

// SetTracking toggles membership interception.
func (c *Collection) SetTracking(on bool) { c.tracking = on }

// SuspendTracking turns interception off and returns a restore function that
// reinstates the previous setting. Intended for defer.
func (c *Collection) SuspendTracking() func() {
	prev := c.tracking
	c.tracking = false
	return func() { c.tracking = prev }
}

// Len returns the number of live elements.
func (c *Collection) Len() int { return len(c.items) }

// Items returns a copy of the live elements in insertion order.
func (c *Collection) Items() []Trackable {
	out := make([]Trackable, len(c.items))
	copy(out, c.items)
	return out
}

// CachedDeletes returns a copy of the entities removed while tracking was on,
// in removal order. They report StateDeleted and are surfaced by change
// aggregation even though live iteration no longer yields them.
func (c *Collection) CachedDeletes() []Trackable {
	out := make([]Trackable, len(c.deleted))
	copy(out, c.deleted)
	return out
}

// Add appends an entity. While tracking is on a fresh entity is marked
// StateAdded; an entity carrying a pre-marked state keeps it. Re-adding an
// entity that sits in the delete cache cancels the pending delete and
// restores it as StateUnchanged. When the collection belongs to a session the
// entity's subtree is wired in and its unchanged descendants are marked
// StateAdded alongside it, since they have never been persisted either; the
// whole call fails without mutating anything if the subtree reaches an
// unregistered kind.
func (c *Collection) Add(e Trackable) error {
	if e == nil {
		return InvalidArgumentError{Name: "entity", Reason: "must not be nil"}
	}
	if e.Kind() != c.kind {
		return InvalidArgumentError{Name: "entity", Reason: fmt.Sprintf("kind %q does not match collection kind %q", e.Kind(), c.kind)}
	}
	if indexOf(c.items, e) >= 0 {
		return InvalidArgumentError{Name: "entity", Reason: "already present in collection"}
	}
	if c.session != nil {
		if err := validateKinds(c.session.registry, e); err != nil {
			return err
		}
	}
	if c.tracking {
		if i := indexOf(c.deleted, e); i >= 0 {
			c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
			e.SetTrackingState(StateUnchanged)
			c.append(e)
			return nil
		}
	}
	fresh := e.TrackingState() == StateUnchanged
	c.append(e)
	if c.tracking && fresh {
		e.SetTrackingState(StateAdded)
		if c.session != nil {
			markSubtreeAdded(c.session.registry, e)
		}
	}
	return nil
}

// Remove takes an entity out of live membership and reports whether it was
// present. While tracking is on a StateAdded entity is discarded outright,
// anything else is marked StateDeleted and cached; with tracking off the
// entity is simply detached.
func (c *Collection) Remove(e Trackable) bool {
	if e == nil {
		return false
	}
	i := indexOf(c.items, e)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	if !c.tracking {
		e.tracking().container = nil
		return true
	}
	if e.TrackingState() == StateAdded {
		e.tracking().container = nil
		return true
	}
	e.SetTrackingState(StateDeleted)
	c.deleted = append(c.deleted, e)
	return true
}

// append attaches the entity to this collection and wires its subtree when a
// session is present.
func (c *Collection) append(e Trackable) {
	c.items = append(c.items, e)
	e.tracking().container = c
	if c.session != nil {
		c.session.wire(e, true)
	}
}

// replaceItems swaps live membership without interception. Used by the
// snapshot codec and the change pruner.
func (c *Collection) replaceItems(items []Trackable) {
	c.items = items
	for _, e := range items {
		e.tracking().container = c
	}
}

// replaceDeletes swaps the delete cache without interception.
func (c *Collection) replaceDeletes(deleted []Trackable) {
	c.deleted = deleted
	for _, e := range deleted {
		e.tracking().container = c
	}
}

// discardDeletes drops the delete cache. Used after a merge confirms the
// backend has performed the pending deletes.
func (c *Collection) discardDeletes() {
	for _, e := range c.deleted {
		e.tracking().container = nil
	}
	c.deleted = nil
}

func indexOf(list []Trackable, e Trackable) int {
	for i, v := range list {
		if v == e {
			return i
		}
	}
	return -1
}
