package testutil

import (
	"fmt"
	"testing"

	"trackable/pkg/track"
)

// Kinds of the freight fixture domain. Carriers own shipments, shipments own
// parcels and point at an origin depot, and the back-references close the
// cycles the engine's walkers have to cut.
const (
	KindCarrier  = "carrier"
	KindShipment = "shipment"
	KindParcel   = "parcel"
	KindDepot    = "depot"
)

// Carrier is the root entity of the fixture domain.
type Carrier struct {
	track.Tracking
	Name     string            `json:"name"`
	Region   string            `json:"region"`
	Fleet    *track.Collection `json:"-" kind:"shipment"`
	Flagship *Shipment         `json:"-"`
}

// NewCarrier allocates a carrier with an empty fleet.
func NewCarrier() *Carrier {
	return &Carrier{Fleet: track.NewCollection(KindShipment)}
}

func (c *Carrier) Kind() string { return KindCarrier }

func (c *Carrier) SetName(v string) {
	if c.Name == v {
		return
	}
	c.Name = v
	c.RecordPropertyChange("name")
}

func (c *Carrier) SetRegion(v string) {
	if c.Region == v {
		return
	}
	c.Region = v
	c.RecordPropertyChange("region")
}

func (c *Carrier) EntityEquals(other track.Trackable) bool {
	o, ok := other.(*Carrier)
	return ok && o.Name == c.Name
}

// Shipment belongs to a carrier's fleet and owns parcels.
type Shipment struct {
	track.Tracking
	Code     string            `json:"code"`
	Status   string            `json:"status"`
	Priority int               `json:"priority"`
	Origin   *Depot            `json:"-"`
	Carrier  *Carrier          `json:"-"`
	Parcels  *track.Collection `json:"-" kind:"parcel"`
}

// NewShipment allocates a shipment with an empty parcel set.
func NewShipment() *Shipment {
	return &Shipment{Parcels: track.NewCollection(KindParcel)}
}

func (s *Shipment) Kind() string { return KindShipment }

func (s *Shipment) SetCode(v string) {
	if s.Code == v {
		return
	}
	s.Code = v
	s.RecordPropertyChange("code")
}

func (s *Shipment) SetStatus(v string) {
	if s.Status == v {
		return
	}
	s.Status = v
	s.RecordPropertyChange("status")
}

func (s *Shipment) SetPriority(v int) {
	if s.Priority == v {
		return
	}
	s.Priority = v
	s.RecordPropertyChange("priority")
}

func (s *Shipment) EntityEquals(other track.Trackable) bool {
	o, ok := other.(*Shipment)
	return ok && o.Code == s.Code
}

// Parcel is a leaf entity with a back-reference to its shipment.
type Parcel struct {
	track.Tracking
	Tag      string    `json:"tag"`
	WeightKG float64   `json:"weight_kg"`
	Note     *string   `json:"note,omitempty"`
	Shipment *Shipment `json:"-"`
}

func (p *Parcel) Kind() string { return KindParcel }

func (p *Parcel) SetTag(v string) {
	if p.Tag == v {
		return
	}
	p.Tag = v
	p.RecordPropertyChange("tag")
}

func (p *Parcel) SetWeightKG(v float64) {
	if p.WeightKG == v {
		return
	}
	p.WeightKG = v
	p.RecordPropertyChange("weight_kg")
}

func (p *Parcel) SetNote(v *string) {
	if p.Note == nil && v == nil {
		return
	}
	if p.Note != nil && v != nil && *p.Note == *v {
		return
	}
	p.Note = v
	p.RecordPropertyChange("note")
}

func (p *Parcel) EntityEquals(other track.Trackable) bool {
	o, ok := other.(*Parcel)
	return ok && o.Tag == p.Tag
}

// Depot is a reference-only entity: nothing owns it, shipments point at it.
type Depot struct {
	track.Tracking
	Code string `json:"code"`
	City string `json:"city"`
}

func (d *Depot) Kind() string { return KindDepot }

func (d *Depot) SetCode(v string) {
	if d.Code == v {
		return
	}
	d.Code = v
	d.RecordPropertyChange("code")
}

func (d *Depot) SetCity(v string) {
	if d.City == v {
		return
	}
	d.City = v
	d.RecordPropertyChange("city")
}

func (d *Depot) EntityEquals(other track.Trackable) bool {
	o, ok := other.(*Depot)
	return ok && o.Code == d.Code
}

// BuildRegistry registers the four fixture kinds and returns the registry.
func BuildRegistry() *track.Registry {
	reg := track.NewRegistry()
	reg.MustRegister(carrierDescriptor())
	reg.MustRegister(shipmentDescriptor())
	reg.MustRegister(parcelDescriptor())
	reg.MustRegister(depotDescriptor())
	return reg
}

func carrierDescriptor() track.Descriptor {
	return track.Descriptor{
		Kind: KindCarrier,
		New:  func() track.Trackable { return NewCarrier() },
		Scalars: []track.ScalarProperty{
			{
				Name: "name",
				Get:  func(e track.Trackable) any { return e.(*Carrier).Name },
				Set:  func(e track.Trackable, v any) { e.(*Carrier).SetName(v.(string)) },
			},
			{
				Name: "region",
				Get:  func(e track.Trackable) any { return e.(*Carrier).Region },
				Set:  func(e track.Trackable, v any) { e.(*Carrier).SetRegion(v.(string)) },
			},
		},
		References: []track.ReferenceProperty{
			{
				Name: "flagship",
				Kind: KindShipment,
				Get: func(e track.Trackable) track.Trackable {
					c := e.(*Carrier)
					if c.Flagship == nil {
						return nil
					}
					return c.Flagship
				},
				Set: func(e track.Trackable, v track.Trackable) {
					c := e.(*Carrier)
					if v == nil {
						c.Flagship = nil
						return
					}
					c.Flagship = v.(*Shipment)
				},
			},
		},
		Collections: []track.CollectionProperty{
			{
				Name: "fleet",
				Kind: KindShipment,
				Get:  func(e track.Trackable) *track.Collection { return e.(*Carrier).Fleet },
			},
		},
	}
}

func shipmentDescriptor() track.Descriptor {
	return track.Descriptor{
		Kind: KindShipment,
		New:  func() track.Trackable { return NewShipment() },
		Scalars: []track.ScalarProperty{
			{
				Name: "code",
				Get:  func(e track.Trackable) any { return e.(*Shipment).Code },
				Set:  func(e track.Trackable, v any) { e.(*Shipment).SetCode(v.(string)) },
			},
			{
				Name: "status",
				Get:  func(e track.Trackable) any { return e.(*Shipment).Status },
				Set:  func(e track.Trackable, v any) { e.(*Shipment).SetStatus(v.(string)) },
			},
			{
				Name: "priority",
				Get:  func(e track.Trackable) any { return e.(*Shipment).Priority },
				Set:  func(e track.Trackable, v any) { e.(*Shipment).SetPriority(v.(int)) },
			},
		},
		References: []track.ReferenceProperty{
			{
				Name: "origin",
				Kind: KindDepot,
				Get: func(e track.Trackable) track.Trackable {
					s := e.(*Shipment)
					if s.Origin == nil {
						return nil
					}
					return s.Origin
				},
				Set: func(e track.Trackable, v track.Trackable) {
					s := e.(*Shipment)
					if v == nil {
						s.Origin = nil
						return
					}
					s.Origin = v.(*Depot)
				},
			},
			{
				Name: "carrier",
				Kind: KindCarrier,
				Get: func(e track.Trackable) track.Trackable {
					s := e.(*Shipment)
					if s.Carrier == nil {
						return nil
					}
					return s.Carrier
				},
				Set: func(e track.Trackable, v track.Trackable) {
					s := e.(*Shipment)
					if v == nil {
						s.Carrier = nil
						return
					}
					s.Carrier = v.(*Carrier)
				},
			},
		},
		Collections: []track.CollectionProperty{
			{
				Name: "parcels",
				Kind: KindParcel,
				Get:  func(e track.Trackable) *track.Collection { return e.(*Shipment).Parcels },
			},
		},
	}
}

func parcelDescriptor() track.Descriptor {
	return track.Descriptor{
		Kind: KindParcel,
		New:  func() track.Trackable { return &Parcel{} },
		Scalars: []track.ScalarProperty{
			{
				Name: "tag",
				Get:  func(e track.Trackable) any { return e.(*Parcel).Tag },
				Set:  func(e track.Trackable, v any) { e.(*Parcel).SetTag(v.(string)) },
			},
			{
				Name: "weight_kg",
				Get:  func(e track.Trackable) any { return e.(*Parcel).WeightKG },
				Set:  func(e track.Trackable, v any) { e.(*Parcel).SetWeightKG(v.(float64)) },
			},
			{
				Name: "note",
				Get:  func(e track.Trackable) any { return e.(*Parcel).Note },
				Set:  func(e track.Trackable, v any) { e.(*Parcel).SetNote(v.(*string)) },
			},
		},
		References: []track.ReferenceProperty{
			{
				Name: "shipment",
				Kind: KindShipment,
				Get: func(e track.Trackable) track.Trackable {
					p := e.(*Parcel)
					if p.Shipment == nil {
						return nil
					}
					return p.Shipment
				},
				Set: func(e track.Trackable, v track.Trackable) {
					p := e.(*Parcel)
					if v == nil {
						p.Shipment = nil
						return
					}
					p.Shipment = v.(*Shipment)
				},
			},
		},
	}
}

func depotDescriptor() track.Descriptor {
	return track.Descriptor{
		Kind: KindDepot,
		New:  func() track.Trackable { return &Depot{} },
		Scalars: []track.ScalarProperty{
			{
				Name: "code",
				Get:  func(e track.Trackable) any { return e.(*Depot).Code },
				Set:  func(e track.Trackable, v any) { e.(*Depot).SetCode(v.(string)) },
			},
			{
				Name: "city",
				Get:  func(e track.Trackable) any { return e.(*Depot).City },
				Set:  func(e track.Trackable, v any) { e.(*Depot).SetCity(v.(string)) },
			},
		},
	}
}

// FleetNodeCount is the number of entities NewFleet wires together.
const FleetNodeCount = 40

// NewFleet builds a carrier graph with exactly FleetNodeCount reachable
// entities: one carrier, three shipments with back-references, twelve parcels
// per shipment.
func NewFleet(t testing.TB) *Carrier {
	t.Helper()
	c := NewCarrier()
	c.Name = "meridian"
	c.Region = "north"
	for i := 0; i < 3; i++ {
		s := NewShipment()
		s.Code = fmt.Sprintf("SHP-%03d", i)
		s.Status = "pending"
		s.Priority = i
		s.Carrier = c
		for j := 0; j < 12; j++ {
			p := &Parcel{
				Tag:      fmt.Sprintf("PCL-%03d-%02d", i, j),
				WeightKG: float64(j) + 0.5,
				Shipment: s,
			}
			if err := s.Parcels.Add(p); err != nil {
				t.Fatalf("add parcel: %v", err)
			}
		}
		if err := c.Fleet.Add(s); err != nil {
			t.Fatalf("add shipment: %v", err)
		}
	}
	return c
}

// NewFleetSession returns a session already tracking a fresh fleet.
func NewFleetSession(t testing.TB, opts ...track.Option) (*track.Session, *Carrier) {
	t.Helper()
	s, err := track.NewSession(BuildRegistry(), KindCarrier, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	fleet := NewFleet(t)
	if err := s.Track(fleet); err != nil {
		t.Fatalf("track fleet: %v", err)
	}
	return s, fleet
}

// ShipmentAt returns the i-th live shipment of a collection.
func ShipmentAt(t testing.TB, col *track.Collection, i int) *Shipment {
	t.Helper()
	items := col.Items()
	if i >= len(items) {
		t.Fatalf("collection has %d items, want index %d", len(items), i)
	}
	return items[i].(*Shipment)
}

// ParcelAt returns the i-th live parcel of a collection.
func ParcelAt(t testing.TB, col *track.Collection, i int) *Parcel {
	t.Helper()
	items := col.Items()
	if i >= len(items) {
		t.Fatalf("collection has %d items, want index %d", len(items), i)
	}
	return items[i].(*Parcel)
}
