package track

import "context"

// StateMachine is the contract a persistence backend implements to receive
// change transitions. BeginInsert announces a StateAdded entity, MarkChanged
// a StateModified entity together with its recorded property names (nil or
// empty means every property), and MarkRemoved a StateDeleted entity.
// Implementations return errors verbatim; the driver never wraps them.
type StateMachine interface {
	BeginInsert(ctx context.Context, entity Trackable) error
	MarkChanged(ctx context.Context, entity Trackable, properties []string) error
	MarkRemoved(ctx context.Context, entity Trackable) error
}

// ApplyChanges walks the tracked graph in pre-order and translates each
// entity's state into the matching state-machine call: a parent's transition
// is issued before any of its children, live collection elements come before
// the collection's cached deletes, and every entity transitions at most once
// even when it is reachable along several paths. Unchanged entities are
// passed over. The walk stops at the first backend error and returns it
// unwrapped.
//
// Changed entities are assigned correlation identifiers on the way, so a
// backend can key its rows without knowing entity internals.
func (s *Session) ApplyChanges(ctx context.Context, sm StateMachine) error {
	return s.run(ctx, "apply_changes", func(ctx context.Context) error {
		if sm == nil {
			return InvalidArgumentError{Name: "machine", Reason: "must not be nil"}
		}
		seen := make(map[*Tracking]struct{})
		var apply func(node, parent Trackable) error
		apply = func(node, parent Trackable) error {
			if node == nil {
				return nil
			}
			t := node.tracking()
			if _, ok := seen[t]; ok {
				return nil
			}
			seen[t] = struct{}{}
			if err := s.transition(ctx, sm, node); err != nil {
				return err
			}
			d, ok := s.registry.Descriptor(node.Kind())
			if !ok {
				return nil
			}
			parentKind := ""
			if parent != nil {
				parentKind = parent.Kind()
			}
			for _, p := range d.References {
				if p.Kind == parentKind {
					continue
				}
				ref := p.Get(node)
				if ref == nil {
					continue
				}
				if err := apply(ref, node); err != nil {
					return err
				}
			}
			for _, p := range d.Collections {
				if p.Kind == parentKind {
					continue
				}
				col := p.Get(node)
				if col == nil {
					continue
				}
				for _, item := range col.items {
					if err := apply(item, node); err != nil {
						return err
					}
				}
				for _, del := range col.deleted {
					if err := apply(del, node); err != nil {
						return err
					}
				}
			}
			return nil
		}
		for _, r := range s.roots.items {
			if err := apply(r, nil); err != nil {
				return err
			}
		}
		for _, del := range s.roots.deleted {
			if err := apply(del, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Session) transition(ctx context.Context, sm StateMachine, node Trackable) error {
	switch node.TrackingState() {
	case StateAdded:
		node.tracking().ensureID()
		return sm.BeginInsert(ctx, node)
	case StateModified:
		node.tracking().ensureID()
		return sm.MarkChanged(ctx, node, node.ModifiedProperties())
	case StateDeleted:
		node.tracking().ensureID()
		return sm.MarkRemoved(ctx, node)
	default:
		return nil
	}
}
