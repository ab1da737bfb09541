package track

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// snapshotVersion is bumped when the document layout changes incompatibly.
const snapshotVersion = 1

// snapshotDocument is the wire form of a session. Entities live in a flat
// node table and every edge is an index into it, which keeps shared nodes
// shared and cycles finite. Scalar state travels inside each node's payload
// using the entity's own JSON tags, so native field types survive the round
// trip without laundering through the descriptor.
type snapshotDocument struct {
	Version  int            `json:"version"`
	Kind     string         `json:"kind"`
	Tracking bool           `json:"tracking"`
	Roots    []int          `json:"roots"`
	Deleted  []int          `json:"deleted,omitempty"`
	Nodes    []snapshotNode `json:"nodes"`
}

type snapshotNode struct {
	Kind        string                        `json:"kind"`
	State       State                         `json:"state"`
	Modified    []string                      `json:"modified,omitempty"`
	ID          string                        `json:"id,omitempty"`
	Payload     json.RawMessage               `json:"payload"`
	Refs        map[string]int                `json:"refs,omitempty"`
	Collections map[string]snapshotCollection `json:"collections,omitempty"`
}

type snapshotCollection struct {
	Tracking bool  `json:"tracking"`
	Items    []int `json:"items"`
	Deleted  []int `json:"deleted,omitempty"`
}

// Marshal serializes the session graph, tracking metadata included, into a
// self-contained snapshot document. The output is deterministic for a given
// graph, so identical sessions marshal to identical bytes.
func (s *Session) Marshal() ([]byte, error) {
	var data []byte
	err := s.run(context.Background(), "marshal", func(context.Context) error {
		var err error
		data, err = s.encode()
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// RestoreSession rebuilds a session from a snapshot document. Entity states,
// modified property names, correlation identifiers, collection tracking flags
// and the delete caches all come back as marshaled; node sharing and cycles
// are reconstructed exactly.
func RestoreSession(reg *Registry, data []byte, opts ...Option) (*Session, error) {
	s, err := decodeSession(reg, data)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Clone returns an independent deep copy of the session by round-tripping it
// through the snapshot codec. Mutating the clone never touches the original.
func (s *Session) Clone() (*Session, error) {
	var clone *Session
	err := s.run(context.Background(), "clone", func(context.Context) error {
		var err error
		clone, err = s.snapshotClone()
		return err
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// snapshotClone is Clone without the operation wrapper, shared with
// GetChanges. The clone inherits the session's observability collaborators.
func (s *Session) snapshotClone() (*Session, error) {
	data, err := s.encode()
	if err != nil {
		return nil, err
	}
	clone, err := decodeSession(s.registry, data)
	if err != nil {
		return nil, err
	}
	clone.logger = s.logger
	clone.metrics = s.metrics
	clone.tracer = s.tracer
	clone.clock = s.clock
	return clone, nil
}

func (s *Session) encode() ([]byte, error) {
	doc := snapshotDocument{
		Version:  snapshotVersion,
		Kind:     s.roots.kind,
		Tracking: s.roots.tracking,
		Roots:    make([]int, 0, len(s.roots.items)),
		Nodes:    make([]snapshotNode, 0),
	}
	index := make(map[*Tracking]int)
	var assign func(e Trackable) (int, error)
	assign = func(e Trackable) (int, error) {
		t := e.tracking()
		if i, ok := index[t]; ok {
			return i, nil
		}
		d, ok := s.registry.Descriptor(e.Kind())
		if !ok {
			return 0, ConfigurationError{Kind: e.Kind(), Reason: "kind is not registered"}
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("track: encode %s: %w", e.Kind(), err)
		}
		node := snapshotNode{
			Kind:     e.Kind(),
			State:    e.TrackingState(),
			Modified: e.ModifiedProperties(),
			Payload:  payload,
		}
		if id := e.CorrelationID(); id != uuid.Nil {
			node.ID = id.String()
		}
		i := len(doc.Nodes)
		index[t] = i
		doc.Nodes = append(doc.Nodes, node)
		for _, p := range d.References {
			ref := p.Get(e)
			if ref == nil {
				continue
			}
			j, err := assign(ref)
			if err != nil {
				return 0, err
			}
			if doc.Nodes[i].Refs == nil {
				doc.Nodes[i].Refs = make(map[string]int)
			}
			doc.Nodes[i].Refs[p.Name] = j
		}
		for _, p := range d.Collections {
			col := p.Get(e)
			if col == nil {
				continue
			}
			sc := snapshotCollection{Tracking: col.tracking, Items: make([]int, 0, len(col.items))}
			for _, item := range col.items {
				j, err := assign(item)
				if err != nil {
					return 0, err
				}
				sc.Items = append(sc.Items, j)
			}
			for _, del := range col.deleted {
				j, err := assign(del)
				if err != nil {
					return 0, err
				}
				sc.Deleted = append(sc.Deleted, j)
			}
			if doc.Nodes[i].Collections == nil {
				doc.Nodes[i].Collections = make(map[string]snapshotCollection)
			}
			doc.Nodes[i].Collections[p.Name] = sc
		}
		return i, nil
	}
	for _, r := range s.roots.items {
		i, err := assign(r)
		if err != nil {
			return nil, err
		}
		doc.Roots = append(doc.Roots, i)
	}
	for _, del := range s.roots.deleted {
		i, err := assign(del)
		if err != nil {
			return nil, err
		}
		doc.Deleted = append(doc.Deleted, i)
	}
	return json.Marshal(doc)
}

func decodeSession(reg *Registry, data []byte) (*Session, error) {
	if reg == nil {
		return nil, InvalidArgumentError{Name: "registry", Reason: "must not be nil"}
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("track: decode snapshot: %w", err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("track: decode snapshot: unsupported version %d", doc.Version)
	}
	if _, ok := reg.Descriptor(doc.Kind); !ok {
		return nil, ConfigurationError{Kind: doc.Kind, Reason: "kind is not registered"}
	}

	entities := make([]Trackable, len(doc.Nodes))
	for i, n := range doc.Nodes {
		d, ok := reg.Descriptor(n.Kind)
		if !ok {
			return nil, ConfigurationError{Kind: n.Kind, Reason: "kind is not registered"}
		}
		e := d.New()
		if len(n.Payload) > 0 {
			if err := json.Unmarshal(n.Payload, e); err != nil {
				return nil, fmt.Errorf("track: decode node %d (%s): payload: %w", i, n.Kind, err)
			}
		}
		state, err := ParseState(string(n.State))
		if err != nil {
			return nil, fmt.Errorf("track: decode node %d (%s): %w", i, n.Kind, err)
		}
		e.SetTrackingState(state)
		if len(n.Modified) > 0 {
			e.SetModifiedProperties(n.Modified)
		}
		if n.ID != "" {
			id, err := uuid.Parse(n.ID)
			if err != nil {
				return nil, fmt.Errorf("track: decode node %d (%s): correlation id: %w", i, n.Kind, err)
			}
			e.tracking().restoreID(id)
		}
		entities[i] = e
	}

	for i, n := range doc.Nodes {
		e := entities[i]
		d, _ := reg.Descriptor(n.Kind)
		for name, j := range n.Refs {
			p, ok := d.Reference(name)
			if !ok {
				return nil, fmt.Errorf("track: decode node %d (%s): unknown reference %q", i, n.Kind, name)
			}
			targets, err := resolveNodes(entities, []int{j}, p.Kind)
			if err != nil {
				return nil, err
			}
			p.Set(e, targets[0])
		}
		for name, sc := range n.Collections {
			cp, ok := d.Collection(name)
			if !ok {
				return nil, fmt.Errorf("track: decode node %d (%s): unknown collection %q", i, n.Kind, name)
			}
			col := cp.Get(e)
			if col == nil {
				return nil, ConfigurationError{Kind: n.Kind, Reason: "constructor must allocate collection " + name}
			}
			items, err := resolveNodes(entities, sc.Items, cp.Kind)
			if err != nil {
				return nil, err
			}
			deleted, err := resolveNodes(entities, sc.Deleted, cp.Kind)
			if err != nil {
				return nil, err
			}
			col.replaceItems(items)
			col.replaceDeletes(deleted)
			col.tracking = sc.Tracking
		}
	}

	s := &Session{
		registry: reg,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		clock:    systemClock{},
	}
	s.roots = NewCollection(doc.Kind)
	s.roots.session = s
	s.roots.tracking = doc.Tracking
	rootItems, err := resolveNodes(entities, doc.Roots, doc.Kind)
	if err != nil {
		return nil, err
	}
	rootDeleted, err := resolveNodes(entities, doc.Deleted, doc.Kind)
	if err != nil {
		return nil, err
	}
	s.roots.replaceItems(rootItems)
	s.roots.replaceDeletes(rootDeleted)
	for _, r := range rootItems {
		s.wire(r, false)
	}
	for _, del := range rootDeleted {
		s.wire(del, false)
	}
	return s, nil
}

func resolveNodes(entities []Trackable, indices []int, kind string) ([]Trackable, error) {
	out := make([]Trackable, 0, len(indices))
	for _, j := range indices {
		if j < 0 || j >= len(entities) {
			return nil, fmt.Errorf("track: decode snapshot: node index %d out of range", j)
		}
		e := entities[j]
		if e.Kind() != kind {
			return nil, fmt.Errorf("track: decode snapshot: node %d holds kind %q, want %q", j, e.Kind(), kind)
		}
		out = append(out, e)
	}
	return out, nil
}
