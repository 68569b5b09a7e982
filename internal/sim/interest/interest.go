// Package interest decides which entities each connected player's client
// should have spawned, by diffing a viewport query against what the client
// already knows about.
package interest

import (
	"errors"
	"fmt"

	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/spatial"
)

var (
	ErrUnknownPlayer = errors.New("interest: unknown player")
	ErrDiffInvariant = errors.New("interest: diff invariant violated")
)

// Querier is the part of the spatial index the manager needs.
type Querier interface {
	Query(q spatial.Rect) entity.Set
}

type Config struct {
	// Viewport extent in world units, centred on the player.
	MaxWidth  float64
	MaxHeight float64
	// IsPlayer excludes player entities from the generic spawn/destroy path.
	IsPlayer func(id entity.ID) bool
}

type Viewport struct {
	Player entity.ID
	Region spatial.Rect
	Known  entity.Set
}

// Diff is the per-tick change to one client's view. Both slices are sorted
// and duplicate free.
type Diff struct {
	Spawn   []entity.ID
	Destroy []entity.ID
}

func (d Diff) Empty() bool { return len(d.Spawn) == 0 && len(d.Destroy) == 0 }

type Manager struct {
	cfg     Config
	index   Querier
	players map[entity.ID]*Viewport
}

func NewManager(index Querier, cfg Config) *Manager {
	if cfg.IsPlayer == nil {
		cfg.IsPlayer = func(entity.ID) bool { return false }
	}
	return &Manager{cfg: cfg, index: index, players: map[entity.ID]*Viewport{}}
}

// RegionAround is the viewport rectangle centred on (cx, cy).
func (m *Manager) RegionAround(cx, cy float64) spatial.Rect {
	return spatial.Rect{
		X: cx - m.cfg.MaxWidth/2,
		Y: cy - m.cfg.MaxHeight/2,
		W: m.cfg.MaxWidth,
		H: m.cfg.MaxHeight,
	}
}

// Join starts tracking a player with an empty known set.
func (m *Manager) Join(player entity.ID, cx, cy float64) *Viewport {
	vp := &Viewport{Player: player, Region: m.RegionAround(cx, cy), Known: entity.Set{}}
	m.players[player] = vp
	return vp
}

// Leave forgets the player's known set. Nothing is emitted: the connection is gone.
func (m *Manager) Leave(player entity.ID) {
	if vp := m.players[player]; vp != nil {
		vp.Known = nil
	}
	delete(m.players, player)
}

func (m *Manager) Viewport(player entity.ID) (*Viewport, bool) {
	vp, ok := m.players[player]
	return vp, ok
}

// Known reports whether the player's client is believed to have id spawned.
func (m *Manager) Known(player, id entity.ID) bool {
	vp := m.players[player]
	return vp != nil && vp.Known.Has(id)
}

func (m *Manager) Players() []entity.ID {
	ids := make(entity.Set, len(m.players))
	for id := range m.players {
		ids.Add(id)
	}
	return ids.Sorted()
}

// Refresh recentres the player's viewport, queries the index and applies the
// spawn/destroy diff to the known set.
func (m *Manager) Refresh(player entity.ID, cx, cy float64) (Diff, error) {
	vp := m.players[player]
	if vp == nil {
		return Diff{}, fmt.Errorf("%w: %d", ErrUnknownPlayer, player)
	}
	vp.Region = m.RegionAround(cx, cy)
	inRegion := m.index.Query(vp.Region)

	toSpawn := entity.Set{}
	for id := range inRegion {
		if vp.Known.Has(id) || m.cfg.IsPlayer(id) {
			continue
		}
		toSpawn.Add(id)
	}
	toDestroy := entity.Set{}
	for id := range vp.Known {
		if inRegion.Has(id) || m.cfg.IsPlayer(id) {
			continue
		}
		toDestroy.Add(id)
	}

	d := Diff{Spawn: toSpawn.Sorted(), Destroy: toDestroy.Sorted()}
	if err := d.check(vp.Known); err != nil {
		return Diff{}, err
	}

	for _, id := range d.Spawn {
		vp.Known.Add(id)
	}
	for _, id := range d.Destroy {
		vp.Known.Remove(id)
	}
	return d, nil
}

func (d Diff) check(known entity.Set) error {
	spawn := entity.SetOf(d.Spawn...)
	destroy := entity.SetOf(d.Destroy...)
	if spawn.Len() != len(d.Spawn) || destroy.Len() != len(d.Destroy) {
		return fmt.Errorf("%w: duplicate ids", ErrDiffInvariant)
	}
	for id := range spawn {
		if destroy.Has(id) || known.Has(id) {
			return fmt.Errorf("%w: entity %d", ErrDiffInvariant, id)
		}
	}
	for id := range destroy {
		if !known.Has(id) {
			return fmt.Errorf("%w: entity %d not known", ErrDiffInvariant, id)
		}
	}
	return nil
}
