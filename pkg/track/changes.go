package track

import "context"

// HasChanges reports whether any tracked entity deviates from the baseline.
// It short-circuits on the first pending delete or non-unchanged marker.
func (s *Session) HasChanges() bool {
	var has bool
	_ = s.run(context.Background(), "has_changes", func(context.Context) error {
		has = s.hasChanges()
		return nil
	})
	return has
}

func (s *Session) hasChanges() bool {
	if len(s.roots.deleted) > 0 {
		return true
	}
	changed := false
	visit := func(e, _ Trackable) bool {
		if e.TrackingState() != StateUnchanged {
			changed = true
			return false
		}
		return true
	}
	for _, r := range s.roots.items {
		if !walkGraph(s.registry, r, nil, true, visit) {
			break
		}
	}
	return changed
}

// GetChanges extracts the minimal changed subgraph as a detached clone. The
// result keeps every changed entity, the unchanged connectors linking them to
// a root, and all cached deletes; unchanged leaves are pruned out. The
// original graph is untouched apart from correlation identifiers assigned to
// changed entities that lacked one, so merge can match the clones back later.
func (s *Session) GetChanges() ([]Trackable, error) {
	var out []Trackable
	err := s.run(context.Background(), "get_changes", func(context.Context) error {
		s.ensureIdentifiers()
		clone, err := s.snapshotClone()
		if err != nil {
			return err
		}
		out = pruneToChanges(clone)
		detachGraph(s.registry, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ensureIdentifiers assigns a correlation identifier to every changed entity
// missing one. Assignment happens on the original graph, so both the original
// and any clone cut from it carry the same identifier.
func (s *Session) ensureIdentifiers() {
	visit := func(e, _ Trackable) bool {
		if e.TrackingState() != StateUnchanged {
			e.tracking().ensureID()
		}
		return true
	}
	for _, r := range s.roots.items {
		walkGraph(s.registry, r, nil, true, visit)
	}
	for _, d := range s.roots.deleted {
		d.tracking().ensureID()
		walkGraph(s.registry, d, nil, true, visit)
	}
}

// pruneToChanges trims the clone session to changed entities plus the
// unchanged connectors above them and returns the surviving roots. Cached
// deletes of the root collection come last, in removal order.
func pruneToChanges(clone *Session) []Trackable {
	kept := make([]Trackable, 0, len(clone.roots.items)+len(clone.roots.deleted))
	for _, r := range clone.roots.items {
		if pruneNode(clone.registry, r, nil) {
			kept = append(kept, r)
		}
	}
	kept = append(kept, clone.roots.deleted...)
	return kept
}

// pruneNode reports whether node must stay in the delta: it is changed, has a
// changed entity beneath it, or owns cached deletes. Pruned references are
// cleared and pruned collection members dropped, without interception.
func pruneNode(reg *Registry, node, parent Trackable) bool {
	path := make(map[*Tracking]struct{})
	var prune func(node, parent Trackable) bool
	prune = func(node, parent Trackable) bool {
		t := node.tracking()
		if _, on := path[t]; on {
			return false
		}
		keep := node.TrackingState() != StateUnchanged
		d, ok := reg.Descriptor(node.Kind())
		if !ok {
			return keep
		}
		path[t] = struct{}{}
		defer delete(path, t)
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
			if prune(ref, node) {
				keep = true
			} else {
				p.Set(node, nil)
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
			keptItems := make([]Trackable, 0, len(col.items))
			for _, item := range col.items {
				if prune(item, node) {
					keptItems = append(keptItems, item)
				} else {
					item.tracking().container = nil
				}
			}
			col.replaceItems(keptItems)
			if len(keptItems) > 0 || len(col.deleted) > 0 {
				keep = true
			}
		}
		return keep
	}
	return prune(node, parent)
}

// detachGraph releases a clone graph from its session: no interception, no
// recording, no session pointers. The delta handed to a caller is plain data
// until it is tracked again.
func detachGraph(reg *Registry, roots []Trackable) {
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
		t.recording = false
		d, ok := reg.Descriptor(e.Kind())
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
			col.session = nil
			col.tracking = false
			for _, item := range col.items {
				visit(item)
			}
			for _, del := range col.deleted {
				visit(del)
			}
		}
	}
	for _, r := range roots {
		r.tracking().container = nil
		visit(r)
	}
}
