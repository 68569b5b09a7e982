package interest

import (
	"errors"
	"math/rand"
	"testing"

	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/spatial"
)

type fixedQuery struct{ set entity.Set }

func (q *fixedQuery) Query(spatial.Rect) entity.Set { return q.set.Clone() }

func sameIDs(a []entity.ID, b ...entity.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRefresh_MoveScenario(t *testing.T) {
	q := &fixedQuery{set: entity.SetOf(1, 2)}
	m := NewManager(q, Config{MaxWidth: 10, MaxHeight: 10})
	m.Join(100, 0, 0)
	if _, err := m.Refresh(100, 0, 0); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	q.set = entity.SetOf(2, 3, 4)
	d, err := m.Refresh(100, 5, 0)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !sameIDs(d.Spawn, 3, 4) || !sameIDs(d.Destroy, 1) {
		t.Fatalf("diff=%+v", d)
	}
	vp, _ := m.Viewport(100)
	if got := vp.Known.Sorted(); !sameIDs(got, 2, 3, 4) {
		t.Fatalf("known=%v", got)
	}
	if vp.Region.X != 0 || vp.Region.Y != -5 {
		t.Fatalf("region not recentred: %+v", vp.Region)
	}
}

func TestRefresh_IdempotentWithinTick(t *testing.T) {
	q := &fixedQuery{set: entity.SetOf(1, 2, 3)}
	m := NewManager(q, Config{MaxWidth: 10, MaxHeight: 10})
	m.Join(9, 0, 0)
	if d, _ := m.Refresh(9, 0, 0); len(d.Spawn) != 3 {
		t.Fatalf("first refresh spawn=%v", d.Spawn)
	}
	d, err := m.Refresh(9, 0, 0)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !d.Empty() {
		t.Fatalf("second refresh should be empty: %+v", d)
	}
}

func TestRefresh_ExcludesPlayers(t *testing.T) {
	players := entity.SetOf(50, 51)
	q := &fixedQuery{set: entity.SetOf(1, 50, 51)}
	m := NewManager(q, Config{MaxWidth: 10, MaxHeight: 10, IsPlayer: players.Has})
	m.Join(50, 0, 0)
	d, err := m.Refresh(50, 0, 0)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !sameIDs(d.Spawn, 1) {
		t.Fatalf("players must not be spawned generically: %v", d.Spawn)
	}
	q.set = entity.SetOf()
	d, _ = m.Refresh(50, 0, 0)
	if !sameIDs(d.Destroy, 1) {
		t.Fatalf("destroy=%v", d.Destroy)
	}
}

func TestLeave_DropsKnownSet(t *testing.T) {
	q := &fixedQuery{set: entity.SetOf(1)}
	m := NewManager(q, Config{MaxWidth: 10, MaxHeight: 10})
	m.Join(7, 0, 0)
	_, _ = m.Refresh(7, 0, 0)
	m.Leave(7)
	if m.Known(7, 1) {
		t.Fatalf("known set survived leave")
	}
	if _, err := m.Refresh(7, 0, 0); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("err=%v want ErrUnknownPlayer", err)
	}
	if len(m.Players()) != 0 {
		t.Fatalf("players=%v", m.Players())
	}
}

func TestRefresh_SetProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := &fixedQuery{set: entity.Set{}}
	m := NewManager(q, Config{MaxWidth: 10, MaxHeight: 10})
	m.Join(1000, 0, 0)

	for round := 0; round < 200; round++ {
		vp, _ := m.Viewport(1000)
		known := vp.Known.Clone()

		region := entity.Set{}
		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			region.Add(entity.ID(1 + rng.Intn(40)))
		}
		q.set = region

		d, err := m.Refresh(1000, 0, 0)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		spawn := entity.SetOf(d.Spawn...)
		destroy := entity.SetOf(d.Destroy...)
		for id := range spawn {
			if destroy.Has(id) || known.Has(id) {
				t.Fatalf("round %d: spawn %d overlaps destroy/known", round, id)
			}
		}
		for id := range destroy {
			if !known.Has(id) {
				t.Fatalf("round %d: destroy %d not previously known", round, id)
			}
		}
		if vp.Known.Len() != region.Len() {
			t.Fatalf("round %d: known=%d region=%d", round, vp.Known.Len(), region.Len())
		}
		for id := range region {
			if !vp.Known.Has(id) {
				t.Fatalf("round %d: known missing %d", round, id)
			}
		}
	}
}

func TestRefresh_WithSpatialIndex(t *testing.T) {
	idx := spatial.NewIndex(4)
	idx.Insert(spatial.Entry{ID: 1, Rect: spatial.Rect{X: 1, Y: 1, W: 1, H: 1}})
	idx.Insert(spatial.Entry{ID: 2, Rect: spatial.Rect{X: 30, Y: 1, W: 1, H: 1}})
	m := NewManager(idx, Config{MaxWidth: 10, MaxHeight: 10})
	m.Join(99, 0, 0)

	d, _ := m.Refresh(99, 0, 0)
	if !sameIDs(d.Spawn, 1) {
		t.Fatalf("spawn=%v", d.Spawn)
	}
	d, _ = m.Refresh(99, 30, 0)
	if !sameIDs(d.Spawn, 2) || !sameIDs(d.Destroy, 1) {
		t.Fatalf("diff=%+v", d)
	}
}
