package track

import "sort"

// ScalarProperty exposes one scalar field of an entity to the engine. Name
// matches the field's JSON tag so snapshot payloads and recorded property
// names agree. Set routes through the entity's recording setter when one
// exists, which lets the merge engine suspend interception around a copy.
type ScalarProperty struct {
	Name string
	Get  func(Trackable) any
	Set  func(Trackable, any)
}

// ReferenceProperty exposes a single-entity association. Get must return an
// untyped nil when the reference is unset; Set clears the reference when
// called with nil.
type ReferenceProperty struct {
	Name string
	Kind string
	Get  func(Trackable) Trackable
	Set  func(Trackable, Trackable)
}

// CollectionProperty exposes a child collection. The constructor registered
// for the owning kind must pre-allocate the collection so Get never returns
// nil on a fresh entity.
type CollectionProperty struct {
	Name string
	Kind string
	Get  func(Trackable) *Collection
}

// Descriptor tells the engine how to construct and traverse one entity kind.
// Reference and collection fields must carry `json:"-"` tags on the entity
// struct; snapshot payloads hold scalar state only and graph shape travels
// through the descriptor.
type Descriptor struct {
	Kind        string
	New         func() Trackable
	Scalars     []ScalarProperty
	References  []ReferenceProperty
	Collections []CollectionProperty
}

// Scalar returns the scalar property with the given name.
func (d Descriptor) Scalar(name string) (ScalarProperty, bool) {
	for _, p := range d.Scalars {
		if p.Name == name {
			return p, true
		}
	}
	return ScalarProperty{}, false
}

// Reference returns the reference property with the given name.
func (d Descriptor) Reference(name string) (ReferenceProperty, bool) {
	for _, p := range d.References {
		if p.Name == name {
			return p, true
		}
	}
	return ReferenceProperty{}, false
}

// Collection returns the collection property with the given name.
func (d Descriptor) Collection(name string) (CollectionProperty, bool) {
	for _, p := range d.Collections {
		if p.Name == name {
			return p, true
		}
	}
	return CollectionProperty{}, false
}

// Registry maps entity kinds to their descriptors. A Registry is built once
// during setup and treated as read-only afterwards; it is safe for concurrent
// reads but registration is not synchronized.
type Registry struct {
	descriptors map[string]Descriptor
	equatable   map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		equatable:   make(map[string]bool),
	}
}

// Register validates and stores a descriptor. The constructor is probed once
// to verify it allocates collections and reports the declared kind, and to
// detect whether the kind supports identity matching via Equatable.
func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" {
		return ConfigurationError{Reason: "descriptor kind must not be empty"}
	}
	if d.New == nil {
		return ConfigurationError{Kind: d.Kind, Reason: "descriptor constructor must not be nil"}
	}
	if _, exists := r.descriptors[d.Kind]; exists {
		return ConfigurationError{Kind: d.Kind, Reason: "kind already registered"}
	}
	probe := d.New()
	if probe == nil {
		return ConfigurationError{Kind: d.Kind, Reason: "constructor returned nil"}
	}
	if probe.Kind() != d.Kind {
		return ConfigurationError{Kind: d.Kind, Reason: "constructor produced kind " + probe.Kind()}
	}
	names := make(map[string]bool)
	for _, p := range d.Scalars {
		if p.Name == "" || p.Get == nil || p.Set == nil {
			return ConfigurationError{Kind: d.Kind, Reason: "scalar property requires name, getter and setter"}
		}
		if names[p.Name] {
			return ConfigurationError{Kind: d.Kind, Reason: "duplicate property name " + p.Name}
		}
		names[p.Name] = true
	}
	for _, p := range d.References {
		if p.Name == "" || p.Kind == "" || p.Get == nil || p.Set == nil {
			return ConfigurationError{Kind: d.Kind, Reason: "reference property requires name, kind, getter and setter"}
		}
		if names[p.Name] {
			return ConfigurationError{Kind: d.Kind, Reason: "duplicate property name " + p.Name}
		}
		names[p.Name] = true
	}
	for _, p := range d.Collections {
		if p.Name == "" || p.Kind == "" || p.Get == nil {
			return ConfigurationError{Kind: d.Kind, Reason: "collection property requires name, kind and getter"}
		}
		if names[p.Name] {
			return ConfigurationError{Kind: d.Kind, Reason: "duplicate property name " + p.Name}
		}
		names[p.Name] = true
		col := p.Get(probe)
		if col == nil {
			return ConfigurationError{Kind: d.Kind, Reason: "constructor must allocate collection " + p.Name}
		}
		if col.Kind() != p.Kind {
			return ConfigurationError{Kind: d.Kind, Reason: "collection " + p.Name + " holds kind " + col.Kind()}
		}
	}
	r.descriptors[d.Kind] = d
	_, comparable := probe.(Equatable)
	r.equatable[d.Kind] = comparable
	return nil
}

// MustRegister registers a descriptor and panics on error. Intended for
// generated registration functions executed during init.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Descriptor returns the descriptor registered for kind.
func (r *Registry) Descriptor(kind string) (Descriptor, bool) {
	d, ok := r.descriptors[kind]
	return d, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Equatable reports whether the registered kind supports identity matching.
func (r *Registry) Equatable(kind string) bool {
	return r.equatable[kind]
}

// ReachableKinds returns every kind reachable from rootKind through the
// static descriptor graph, sorted. Kinds referenced by a descriptor but not
// themselves registered are included so callers can detect gaps before
// walking a live graph.
func (r *Registry) ReachableKinds(rootKind string) []string {
	seen := make(map[string]bool)
	queue := []string{rootKind}
	for len(queue) > 0 {
		kind := queue[0]
		queue = queue[1:]
		if seen[kind] {
			continue
		}
		seen[kind] = true
		d, ok := r.descriptors[kind]
		if !ok {
			continue
		}
		for _, p := range d.References {
			queue = append(queue, p.Kind)
		}
		for _, p := range d.Collections {
			queue = append(queue, p.Kind)
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ScalarValues captures the entity's scalar fields as a name-to-value map.
// Persistence backends use it to build row payloads without knowing concrete
// entity types.
func (r *Registry) ScalarValues(e Trackable) (map[string]any, error) {
	if e == nil {
		return nil, InvalidArgumentError{Name: "entity", Reason: "must not be nil"}
	}
	d, ok := r.Descriptor(e.Kind())
	if !ok {
		return nil, ConfigurationError{Kind: e.Kind(), Reason: "kind is not registered"}
	}
	out := make(map[string]any, len(d.Scalars))
	for _, p := range d.Scalars {
		out[p.Name] = p.Get(e)
	}
	return out, nil
}
