package track

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// MergeChanges folds a backend round-trip result into the tracked graph.
// Updated entities are matched to originals by correlation identifier when
// both sides carry one, otherwise by EntityEquals; matched originals take the
// updated scalar values without recording them as new edits and come out
// StateUnchanged with empty modified sets. Updated entities that match
// nothing are skipped silently. Once every root is merged the delete caches
// are purged, the backend having confirmed the pending deletes.
//
// Merging requires every kind reachable from the root kind to be registered
// and to implement Equatable; the call fails before touching the graph
// otherwise. Object identities in the original graph are preserved: values
// move, references do not.
func (s *Session) MergeChanges(updated []Trackable) error {
	return s.run(context.Background(), "merge_changes", func(context.Context) error {
		if updated == nil {
			return InvalidArgumentError{Name: "updated", Reason: "must not be nil"}
		}
		for _, kind := range s.registry.ReachableKinds(s.roots.kind) {
			if _, ok := s.registry.Descriptor(kind); !ok {
				return ConfigurationError{Kind: kind, Reason: "kind is not registered"}
			}
			if !s.registry.Equatable(kind) {
				return ConfigurationError{Kind: kind, Reason: "kind does not implement EntityEquals"}
			}
		}
		for _, upd := range updated {
			if upd == nil {
				return InvalidArgumentError{Name: "updated", Reason: "contains a nil entity"}
			}
			if upd.Kind() != s.roots.kind {
				return InvalidArgumentError{Name: "updated", Reason: fmt.Sprintf("kind %q does not match root kind %q", upd.Kind(), s.roots.kind)}
			}
		}
		for _, upd := range updated {
			orig := matchEntity(s.roots.items, upd)
			if orig == nil {
				s.logger.Debug("merge skipped unmatched entity", "kind", upd.Kind())
				continue
			}
			s.mergeNode(orig, upd, "", make(map[*Tracking]struct{}))
		}
		s.purgeDeletes()
		return nil
	})
}

// mergeNode merges one matched original/updated pair. Children merge before
// the parent accepts, so a parent is never marked clean while a child merge
// is still pending.
func (s *Session) mergeNode(orig, upd Trackable, parentKind string, path map[*Tracking]struct{}) {
	t := orig.tracking()
	if _, on := path[t]; on {
		return
	}
	d, ok := s.registry.Descriptor(orig.Kind())
	if !ok {
		return
	}
	path[t] = struct{}{}
	defer delete(path, t)

	for _, p := range d.References {
		if p.Kind == parentKind {
			continue
		}
		origRef := p.Get(orig)
		updRef := p.Get(upd)
		if origRef == nil || updRef == nil {
			continue
		}
		s.mergeNode(origRef, updRef, orig.Kind(), path)
	}
	for _, p := range d.Collections {
		if p.Kind == parentKind {
			continue
		}
		origCol := p.Get(orig)
		updCol := p.Get(upd)
		if origCol == nil || updCol == nil {
			continue
		}
		for _, updItem := range updCol.items {
			origItem := matchEntity(origCol.items, updItem)
			if origItem == nil {
				s.logger.Debug("merge skipped unmatched entity", "kind", updItem.Kind())
				continue
			}
			s.mergeNode(origItem, updItem, orig.Kind(), path)
		}
	}

	// Accept the updated values without recording them as fresh edits.
	restore := suspendRecording(orig)
	defer restore()
	if t.id == uuid.Nil && upd.CorrelationID() != uuid.Nil {
		t.restoreID(upd.CorrelationID())
	}
	for _, p := range d.Scalars {
		v := p.Get(upd)
		if isNilValue(v) {
			continue
		}
		if reflect.DeepEqual(p.Get(orig), v) {
			continue
		}
		p.Set(orig, v)
	}
	orig.SetTrackingState(StateUnchanged)
}

// matchEntity finds the original that corresponds to upd: first by shared
// correlation identifier, then by EntityEquals.
func matchEntity(originals []Trackable, upd Trackable) Trackable {
	if uid := upd.CorrelationID(); uid != uuid.Nil {
		for _, e := range originals {
			if e.CorrelationID() == uid {
				return e
			}
		}
	}
	for _, e := range originals {
		if eq, ok := e.(Equatable); ok && eq.EntityEquals(upd) {
			return e
		}
	}
	return nil
}

// suspendRecording silences change interception for one entity and returns
// the restore function. For contained entities that suspends the owning
// collection, which also parks membership interception for the scope.
func suspendRecording(e Trackable) func() {
	t := e.tracking()
	if t.container != nil {
		return t.container.SuspendTracking()
	}
	prev := t.recording
	t.recording = false
	return func() { t.recording = prev }
}

// purgeDeletes drops every delete cache in the graph, root collection
// included.
func (s *Session) purgeDeletes() {
	seen := make(map[*Tracking]struct{})
	var visit func(Trackable)
	visit = func(e Trackable) {
		if e == nil {
			return
		}
		t := e.tracking()
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		d, ok := s.registry.Descriptor(e.Kind())
		if !ok {
			return
		}
		for _, p := range d.References {
			visit(p.Get(e))
		}
		for _, p := range d.Collections {
			col := p.Get(e)
			if col == nil {
				continue
			}
			for _, item := range col.items {
				visit(item)
			}
			for _, del := range col.deleted {
				visit(del)
			}
			col.discardDeletes()
		}
	}
	for _, r := range s.roots.items {
		visit(r)
	}
	for _, del := range s.roots.deleted {
		visit(del)
	}
	s.roots.discardDeletes()
}

// isNilValue reports whether a scalar getter produced an absent value rather
// than a zero one.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}
