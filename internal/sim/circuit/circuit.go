// Package circuit keeps the forest of wired power devices. Circuits live in an
// arena and are referenced by ID; devices reach their circuit through an owner
// table, never through a pointer.
package circuit

import (
	"log"

	"tilecraft.dev/internal/sim/entity"
)

type ID uint32

// NoCircuit is never handed out.
const NoCircuit ID = 0

type Role int

const (
	Passive Role = iota
	Generator
	Consumer
)

// Device is what the manager needs to know about a power entity.
type Device struct {
	Role Role
	// Rate is supply per tick for generators, demand per tick for consumers.
	Rate float64
	// Dropped devices are items lying in the world and cannot be wired.
	Dropped bool
}

// Devices resolves entity ids to their current device state. ok is false for
// entities that are not power devices.
type Devices interface {
	Device(id entity.ID) (Device, bool)
}

type Wire struct {
	A entity.ID
	B entity.ID
}

type pair struct{ lo, hi entity.ID }

func pairOf(a, b entity.ID) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

type Circuit struct {
	ID          ID
	Wires       []Wire
	Generators  entity.Set
	Consumers   entity.Set
	TotalSupply float64
	TotalDemand float64
}

type Stats struct {
	Circuit     ID      `json:"circuit_id"`
	TotalSupply float64 `json:"total_supply"`
	TotalDemand float64 `json:"total_demand"`
}

type slot struct {
	live bool
	c    Circuit
}

type Manager struct {
	devices Devices
	log     *log.Logger

	slots []slot // index 0 unused
	free  []ID

	owner map[entity.ID]ID
	wires map[pair]ID
}

func NewManager(devices Devices, logger *log.Logger) *Manager {
	return &Manager{
		devices: devices,
		log:     logger,
		slots:   make([]slot, 1),
		owner:   map[entity.ID]ID{},
		wires:   map[pair]ID{},
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}

// Connect wires a to b. It returns false without touching any state when the
// pair is a self loop, either side is not a placed device, or the two are
// already wired together.
func (m *Manager) Connect(a, b entity.ID) bool {
	if a == b {
		return false
	}
	da, okA := m.devices.Device(a)
	db, okB := m.devices.Device(b)
	if !okA || !okB || da.Dropped || db.Dropped {
		m.logf("circuit: connect %d-%d rejected: not placed devices", a, b)
		return false
	}
	key := pairOf(a, b)
	if _, dup := m.wires[key]; dup {
		m.logf("circuit: connect %d-%d rejected: already wired", a, b)
		return false
	}

	ca, cb := m.owner[a], m.owner[b]
	var dst ID
	switch {
	case ca == NoCircuit && cb == NoCircuit:
		dst = m.alloc()
	case ca == NoCircuit:
		dst = cb
	case cb == NoCircuit || ca == cb:
		dst = ca
	default:
		dst = m.merge(ca, cb)
	}

	c := m.get(dst)
	c.Wires = append(c.Wires, Wire{A: key.lo, B: key.hi})
	m.wires[key] = dst
	m.join(c, a, da)
	m.join(c, b, db)
	return true
}

func (m *Manager) join(c *Circuit, id entity.ID, d Device) {
	m.owner[id] = c.ID
	switch d.Role {
	case Generator:
		c.Generators.Add(id)
	case Consumer:
		c.Consumers.Add(id)
	}
}

// merge moves the circuit with fewer wires into the other and returns the
// survivor.
func (m *Manager) merge(x, y ID) ID {
	dst, src := m.get(x), m.get(y)
	if len(src.Wires) > len(dst.Wires) {
		dst, src = src, dst
	}
	for _, w := range src.Wires {
		dst.Wires = append(dst.Wires, w)
		m.wires[pairOf(w.A, w.B)] = dst.ID
		m.owner[w.A] = dst.ID
		m.owner[w.B] = dst.ID
	}
	for id := range src.Generators {
		dst.Generators.Add(id)
	}
	for id := range src.Consumers {
		dst.Consumers.Add(id)
	}
	m.release(src.ID)
	return dst.ID
}

// DisconnectAll removes every wire touching id and discards circuits left
// without wires. Circuits are not split when a bridging wire goes away.
//
// TODO: recompute reachability here so a circuit cut in two reports two
// separate supply/demand totals; blocked on deciding how the split halves
// pick their ids.
func (m *Manager) DisconnectAll(id entity.ID) {
	cid := m.owner[id]
	if cid == NoCircuit {
		return
	}
	c := m.get(cid)
	kept := c.Wires[:0]
	touched := entity.Set{}
	for _, w := range c.Wires {
		if w.A == id || w.B == id {
			delete(m.wires, pairOf(w.A, w.B))
			touched.Add(w.A)
			touched.Add(w.B)
			continue
		}
		kept = append(kept, w)
	}
	c.Wires = kept
	m.cleanup(c, touched)
}

func (m *Manager) cleanup(c *Circuit, touched entity.Set) {
	if len(c.Wires) == 0 {
		for id := range touched {
			delete(m.owner, id)
		}
		m.release(c.ID)
		return
	}
	wired := entity.Set{}
	for _, w := range c.Wires {
		wired.Add(w.A)
		wired.Add(w.B)
	}
	for id := range touched {
		if wired.Has(id) {
			continue
		}
		delete(m.owner, id)
		c.Generators.Remove(id)
		c.Consumers.Remove(id)
	}
}

// Tick recomputes every circuit's totals from the current device rates and
// returns them ordered by circuit id.
func (m *Manager) Tick() []Stats {
	var out []Stats
	for i := 1; i < len(m.slots); i++ {
		s := &m.slots[i]
		if !s.live {
			continue
		}
		c := &s.c
		c.TotalSupply, c.TotalDemand = 0, 0
		for _, id := range c.Generators.Sorted() {
			if d, ok := m.devices.Device(id); ok && d.Role == Generator {
				c.TotalSupply += d.Rate
			}
		}
		for _, id := range c.Consumers.Sorted() {
			if d, ok := m.devices.Device(id); ok && d.Role == Consumer {
				c.TotalDemand += d.Rate
			}
		}
		out = append(out, Stats{Circuit: c.ID, TotalSupply: c.TotalSupply, TotalDemand: c.TotalDemand})
	}
	return out
}

// CircuitOf returns the circuit a device is wired into.
func (m *Manager) CircuitOf(id entity.ID) (ID, bool) {
	cid, ok := m.owner[id]
	return cid, ok
}

// Circuit returns a copy of a live circuit.
func (m *Manager) Circuit(id ID) (Circuit, bool) {
	if id == NoCircuit || int(id) >= len(m.slots) || !m.slots[id].live {
		return Circuit{}, false
	}
	c := m.slots[id].c
	c.Wires = append([]Wire(nil), c.Wires...)
	c.Generators = c.Generators.Clone()
	c.Consumers = c.Consumers.Clone()
	return c, true
}

// Connected reports whether a wire joins a and b directly.
func (m *Manager) Connected(a, b entity.ID) bool {
	_, ok := m.wires[pairOf(a, b)]
	return ok
}

// IDs lists live circuits in ascending order.
func (m *Manager) IDs() []ID {
	var ids []ID
	for i := 1; i < len(m.slots); i++ {
		if m.slots[i].live {
			ids = append(ids, ID(i))
		}
	}
	return ids
}

func (m *Manager) Len() int { return len(m.slots) - 1 - len(m.free) }

func (m *Manager) WireCount() int { return len(m.wires) }

func (m *Manager) alloc() ID {
	var id ID
	if n := len(m.free); n > 0 {
		id = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, slot{})
		id = ID(len(m.slots) - 1)
	}
	m.slots[id] = slot{live: true, c: Circuit{ID: id, Generators: entity.Set{}, Consumers: entity.Set{}}}
	return id
}

func (m *Manager) release(id ID) {
	m.slots[id] = slot{}
	m.free = append(m.free, id)
}

func (m *Manager) get(id ID) *Circuit {
	return &m.slots[id].c
}
