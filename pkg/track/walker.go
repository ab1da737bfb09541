package track

// walkGraph traverses the graph below node in pre-order, calling visit with
// each entity and its traversal parent. Returning false from visit aborts the
// walk; walkGraph reports whether the walk ran to completion.
//
// Cycles are broken by kind, not identity: a reference or collection whose
// element kind equals the kind of the node one level up is skipped, which
// prunes parent back-references without bookkeeping. The approximation cuts
// same-kind chains one level early (a child's same-kind children are visited,
// grandchildren are not). A node already on the walk path is never re-entered,
// so cycles the kind guard does not cover still terminate. Walks that need
// exactly-once semantics over shared nodes keep their own seen set on top of
// this.
//
// When includeDeletes is set, each collection's cached deletes are visited
// after its live elements.
func walkGraph(reg *Registry, node, parent Trackable, includeDeletes bool, visit func(node, parent Trackable) bool) bool {
	path := make(map[*Tracking]struct{})
	var walk func(node, parent Trackable) bool
	walk = func(node, parent Trackable) bool {
		if node == nil {
			return true
		}
		t := node.tracking()
		if _, on := path[t]; on {
			return true
		}
		if !visit(node, parent) {
			return false
		}
		d, ok := reg.Descriptor(node.Kind())
		if !ok {
			return true
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
			if !walk(ref, node) {
				return false
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
				if !walk(item, node) {
					return false
				}
			}
			if includeDeletes {
				for _, del := range col.deleted {
					if !walk(del, node) {
						return false
					}
				}
			}
		}
		return true
	}
	return walk(node, parent)
}

// markSubtreeAdded promotes every unchanged entity owned below e to
// StateAdded. Ownership follows collections only; reference targets may
// already exist in the backend and keep their own markers. Entities carrying
// an explicit marker keep it.
func markSubtreeAdded(reg *Registry, e Trackable) {
	seen := make(map[*Tracking]struct{})
	var visit func(Trackable)
	visit = func(node Trackable) {
		if node == nil {
			return
		}
		t := node.tracking()
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		if node.TrackingState() == StateUnchanged {
			node.SetTrackingState(StateAdded)
		}
		d, ok := reg.Descriptor(node.Kind())
		if !ok {
			return
		}
		for _, p := range d.Collections {
			col := p.Get(node)
			if col == nil {
				continue
			}
			for _, item := range col.items {
				visit(item)
			}
		}
	}
	visit(e)
}

// validateKinds walks the identity graph below e and fails on the first kind
// missing from the registry. Unlike walkGraph it follows every edge exactly
// once by identity, so back-references cannot loop it.
func validateKinds(reg *Registry, e Trackable) error {
	seen := make(map[*Tracking]struct{})
	var visit func(Trackable) error
	visit = func(node Trackable) error {
		if node == nil {
			return nil
		}
		t := node.tracking()
		if _, ok := seen[t]; ok {
			return nil
		}
		seen[t] = struct{}{}
		d, ok := reg.Descriptor(node.Kind())
		if !ok {
			return ConfigurationError{Kind: node.Kind(), Reason: "kind is not registered"}
		}
		for _, p := range d.References {
			if err := visit(p.Get(node)); err != nil {
				return err
			}
		}
		for _, p := range d.Collections {
			col := p.Get(node)
			if col == nil {
				continue
			}
			for _, item := range col.items {
				if err := visit(item); err != nil {
					return err
				}
			}
			for _, del := range col.deleted {
				if err := visit(del); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(e)
}
