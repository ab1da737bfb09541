package track

import (
	"fmt"
	"testing"
)

// Test fixture: a two-kind family domain. Parents hold children, children
// point back at their parent and may hold same-kind children of their own,
// which exercises back-reference pruning and same-kind chain cuts.
const (
	kindParent = "parent"
	kindChild  = "child"
)

type parentEntity struct {
	Tracking
	Name     string        `json:"name"`
	Region   string        `json:"region"`
	Children *Collection   `json:"-"`
	Favorite *childEntity  `json:"-"`
	Partner  *parentEntity `json:"-"`
}

func newParent() *parentEntity {
	return &parentEntity{Children: NewCollection(kindChild)}
}

func (p *parentEntity) Kind() string { return kindParent }

func (p *parentEntity) SetName(v string) {
	if p.Name == v {
		return
	}
	p.Name = v
	p.RecordPropertyChange("name")
}

func (p *parentEntity) SetRegion(v string) {
	if p.Region == v {
		return
	}
	p.Region = v
	p.RecordPropertyChange("region")
}

func (p *parentEntity) EntityEquals(other Trackable) bool {
	o, ok := other.(*parentEntity)
	return ok && o.Name == p.Name
}

type childEntity struct {
	Tracking
	Label    string        `json:"label"`
	Score    int           `json:"score"`
	Note     *string       `json:"note,omitempty"`
	Parent   *parentEntity `json:"-"`
	Children *Collection   `json:"-"`
}

func newChild() *childEntity {
	return &childEntity{Children: NewCollection(kindChild)}
}

func (c *childEntity) Kind() string { return kindChild }

func (c *childEntity) SetLabel(v string) {
	if c.Label == v {
		return
	}
	c.Label = v
	c.RecordPropertyChange("label")
}

func (c *childEntity) SetScore(v int) {
	if c.Score == v {
		return
	}
	c.Score = v
	c.RecordPropertyChange("score")
}

func (c *childEntity) SetNote(v *string) {
	if c.Note == nil && v == nil {
		return
	}
	if c.Note != nil && v != nil && *c.Note == *v {
		return
	}
	c.Note = v
	c.RecordPropertyChange("note")
}

func (c *childEntity) EntityEquals(other Trackable) bool {
	o, ok := other.(*childEntity)
	return ok && o.Label == c.Label
}

// plainChild reports the child kind without implementing Equatable. Used to
// exercise merge preconditions.
type plainChild struct {
	Tracking
	Label string `json:"label"`
}

func (c *plainChild) Kind() string { return kindChild }

func parentDescriptor() Descriptor {
	return Descriptor{
		Kind: kindParent,
		New:  func() Trackable { return newParent() },
		Scalars: []ScalarProperty{
			{
				Name: "name",
				Get:  func(e Trackable) any { return e.(*parentEntity).Name },
				Set:  func(e Trackable, v any) { e.(*parentEntity).SetName(v.(string)) },
			},
			{
				Name: "region",
				Get:  func(e Trackable) any { return e.(*parentEntity).Region },
				Set:  func(e Trackable, v any) { e.(*parentEntity).SetRegion(v.(string)) },
			},
		},
		References: []ReferenceProperty{
			{
				Name: "favorite",
				Kind: kindChild,
				Get: func(e Trackable) Trackable {
					p := e.(*parentEntity)
					if p.Favorite == nil {
						return nil
					}
					return p.Favorite
				},
				Set: func(e Trackable, v Trackable) {
					p := e.(*parentEntity)
					if v == nil {
						p.Favorite = nil
						return
					}
					p.Favorite = v.(*childEntity)
				},
			},
			{
				Name: "partner",
				Kind: kindParent,
				Get: func(e Trackable) Trackable {
					p := e.(*parentEntity)
					if p.Partner == nil {
						return nil
					}
					return p.Partner
				},
				Set: func(e Trackable, v Trackable) {
					p := e.(*parentEntity)
					if v == nil {
						p.Partner = nil
						return
					}
					p.Partner = v.(*parentEntity)
				},
			},
		},
		Collections: []CollectionProperty{
			{
				Name: "children",
				Kind: kindChild,
				Get:  func(e Trackable) *Collection { return e.(*parentEntity).Children },
			},
		},
	}
}

func childDescriptor() Descriptor {
	return Descriptor{
		Kind: kindChild,
		New:  func() Trackable { return newChild() },
		Scalars: []ScalarProperty{
			{
				Name: "label",
				Get:  func(e Trackable) any { return e.(*childEntity).Label },
				Set:  func(e Trackable, v any) { e.(*childEntity).SetLabel(v.(string)) },
			},
			{
				Name: "score",
				Get:  func(e Trackable) any { return e.(*childEntity).Score },
				Set:  func(e Trackable, v any) { e.(*childEntity).SetScore(v.(int)) },
			},
			{
				Name: "note",
				Get:  func(e Trackable) any { return e.(*childEntity).Note },
				Set:  func(e Trackable, v any) { e.(*childEntity).SetNote(v.(*string)) },
			},
		},
		References: []ReferenceProperty{
			{
				Name: "parent",
				Kind: kindParent,
				Get: func(e Trackable) Trackable {
					c := e.(*childEntity)
					if c.Parent == nil {
						return nil
					}
					return c.Parent
				},
				Set: func(e Trackable, v Trackable) {
					c := e.(*childEntity)
					if v == nil {
						c.Parent = nil
						return
					}
					c.Parent = v.(*parentEntity)
				},
			},
		},
		Collections: []CollectionProperty{
			{
				Name: "children",
				Kind: kindChild,
				Get:  func(e Trackable) *Collection { return e.(*childEntity).Children },
			},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(parentDescriptor()); err != nil {
		t.Fatalf("register parent: %v", err)
	}
	if err := reg.Register(childDescriptor()); err != nil {
		t.Fatalf("register child: %v", err)
	}
	return reg
}

// familyNodeCount is the number of entities buildFamily wires together.
const familyNodeCount = 40

// buildFamily returns a parent graph with exactly familyNodeCount reachable
// entities: the parent, three children with back-references, and twelve
// grandchildren per child.
func buildFamily(t *testing.T) *parentEntity {
	t.Helper()
	p := newParent()
	p.Name = "root"
	p.Region = "east"
	for i := 0; i < 3; i++ {
		c := newChild()
		c.Label = fmt.Sprintf("child-%d", i)
		c.Score = i
		c.Parent = p
		for j := 0; j < 12; j++ {
			g := newChild()
			g.Label = fmt.Sprintf("child-%d-%d", i, j)
			g.Score = j
			if err := c.Children.Add(g); err != nil {
				t.Fatalf("add grandchild: %v", err)
			}
		}
		if err := p.Children.Add(c); err != nil {
			t.Fatalf("add child: %v", err)
		}
	}
	return p
}

func newFamilySession(t *testing.T, opts ...Option) (*Session, *parentEntity) {
	t.Helper()
	s, err := NewSession(newTestRegistry(t), kindParent, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	p := buildFamily(t)
	if err := s.Track(p); err != nil {
		t.Fatalf("track: %v", err)
	}
	return s, p
}

func childAt(t *testing.T, col *Collection, i int) *childEntity {
	t.Helper()
	items := col.Items()
	if i >= len(items) {
		t.Fatalf("collection has %d items, want index %d", len(items), i)
	}
	return items[i].(*childEntity)
}

func strPtr(s string) *string { return &s }
