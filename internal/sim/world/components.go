package world

import (
	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/circuit"
	"tilecraft.dev/internal/sim/dig"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/spatial"
)

// Entity sizes in tiles.
const (
	playerW = 1.0
	playerH = 2.0
	pickupW = 0.5
	pickupH = 0.5
	deviceW = 1.0
	deviceH = 1.0
)

// Body is an entity's box, positioned by its centre.
type Body struct {
	X, Y float64
	W, H float64
}

func (b Body) Rect() spatial.Rect {
	return spatial.Rect{X: b.X - b.W/2, Y: b.Y - b.H/2, W: b.W, H: b.H}
}

func tileCentre(p dig.Pos) (float64, float64) {
	return float64(p.X) + 0.5, float64(p.Y) + 0.5
}

type Player struct {
	Name string
	Tool string
	// Inventory holds contained item entities.
	Inventory entity.Set

	lastMoveTick uint64
	moved        bool
}

// Pickup is an item entity: lying in the world, or contained in an inventory.
type Pickup struct {
	Item  string
	Count int
	// Device is set for dropped power devices.
	Device string
}

type Device struct {
	Kind    string
	Role    circuit.Role
	Rate    float64
	Dropped bool
	Tile    dig.Pos
}

func roleName(r circuit.Role) string {
	switch r {
	case circuit.Generator:
		return "generator"
	case circuit.Consumer:
		return "consumer"
	}
	return "passive"
}

func parseRole(s string) circuit.Role {
	switch s {
	case "generator":
		return circuit.Generator
	case "consumer":
		return circuit.Consumer
	}
	return circuit.Passive
}

// components is the initial state handed to createEntity. Body is required;
// the rest are optional.
type components struct {
	Body   Body
	Pickup *Pickup
	Device *Device
}

// createEntity allocates an id, stores the components and indexes the body.
func (w *World) createEntity(c components) entity.ID {
	id := w.registry.Create()
	w.bodies.Set(id, c.Body)
	if c.Pickup != nil {
		w.pickups.Set(id, *c.Pickup)
	}
	if c.Device != nil {
		w.devices.Set(id, *c.Device)
		if !c.Device.Dropped {
			w.deviceAt[c.Device.Tile] = id
		}
	}
	w.index.Insert(spatial.Entry{ID: id, Rect: c.Body.Rect()})
	return id
}

// spawnOf renders the replicated view of an entity.
func (w *World) spawnOf(id entity.ID) (protocol.EntitySpawn, bool) {
	body, ok := w.bodies.Get(id)
	if !ok {
		return protocol.EntitySpawn{}, false
	}
	s := protocol.EntitySpawn{
		ID:   uint64(id),
		Pos:  [2]float64{body.X, body.Y},
		Size: [2]float64{body.W, body.H},
	}
	if d, ok := w.devices.Get(id); ok {
		s.Texture = "device/" + d.Kind
		s.Components.Device = d.Kind
		s.Components.Role = roleName(d.Role)
		s.Components.Dropped = d.Dropped
		if cid, ok := w.circuits.CircuitOf(id); ok {
			s.Components.Circuit = uint32(cid)
		}
	}
	if p, ok := w.pickups.Get(id); ok {
		s.Texture = "item/" + p.Item
		s.Components.Item = p.Item
		s.Components.Count = p.Count
	}
	return s, true
}
