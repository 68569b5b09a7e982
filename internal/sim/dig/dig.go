package dig

import (
	"log"
	"sort"

	"tilecraft.dev/internal/sim/entity"
)

const DefaultGraceTicks = 40

type Pos struct {
	X int
	Y int
}

// Env is the world as seen by the dig machine.
type Env interface {
	// BlockPresent reports whether (x,y) still holds a diggable block.
	BlockPresent(p Pos) bool
	// BlockHealth is the total damage needed to break the block at p.
	BlockHealth(p Pos) int
	// ToolDamage returns the damage per tick of the player's currently equipped
	// tool; ok is false when the player holds nothing that can dig (or is gone).
	ToolDamage(player entity.ID) (damage int, ok bool)
}

type Outcome int

const (
	Active Outcome = iota
	Completed
	TimedOut
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Active:
		return "ACTIVE"
	case Completed:
		return "COMPLETED"
	case TimedOut:
		return "TIMED_OUT"
	case Stale:
		return "STALE"
	}
	return "UNKNOWN"
}

type Request struct {
	Pos            Pos
	Player         entity.ID
	StartTick      uint64
	ClientFinished bool
	// ExpectedEnd is recomputed every tick from the current tool.
	ExpectedEnd uint64
}

type Result struct {
	Request Request
	Outcome Outcome
}

// Machine is the server's authority over in-flight digs. At most one request
// exists per coordinate.
type Machine struct {
	env        Env
	graceTicks uint64
	log        *log.Logger

	active map[Pos]*Request
}

func NewMachine(env Env, graceTicks uint64, logger *log.Logger) *Machine {
	return &Machine{
		env:        env,
		graceTicks: graceTicks,
		log:        logger,
		active:     map[Pos]*Request{},
	}
}

func (m *Machine) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}

// Begin opens a request at now. Digging an empty block is ignored, and a
// second begin for an outstanding coordinate keeps the original request so no
// damage is applied twice.
func (m *Machine) Begin(p Pos, player entity.ID, now uint64) bool {
	if !m.env.BlockPresent(p) {
		m.logf("dig: begin on empty block pos=%d,%d player=%d", p.X, p.Y, player)
		return false
	}
	if r := m.active[p]; r != nil {
		if r.Player != player {
			m.logf("dig: pos=%d,%d already dug by player=%d, ignoring player=%d", p.X, p.Y, r.Player, player)
		}
		return false
	}
	m.active[p] = &Request{Pos: p, Player: player, StartTick: now, ExpectedEnd: now}
	return true
}

// Finish records the client's claim that the dig is done. It never completes
// the dig by itself; Tick decides.
func (m *Machine) Finish(p Pos, player entity.ID) bool {
	r := m.active[p]
	if r == nil || r.Player != player {
		m.logf("dig: finish without matching request pos=%d,%d player=%d", p.X, p.Y, player)
		return false
	}
	r.ClientFinished = true
	return true
}

func (m *Machine) Get(p Pos) (Request, bool) {
	r := m.active[p]
	if r == nil {
		return Request{}, false
	}
	return *r, true
}

func (m *Machine) Len() int { return len(m.active) }

// Tick evaluates every active request against now and returns the ones that
// left the Active state, ordered by position.
func (m *Machine) Tick(now uint64) []Result {
	if len(m.active) == 0 {
		return nil
	}
	keys := make([]Pos, 0, len(m.active))
	for p := range m.active {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})

	var out []Result
	for _, p := range keys {
		r := m.active[p]
		outcome := m.evaluate(r, now)
		if outcome == Active {
			continue
		}
		delete(m.active, p)
		out = append(out, Result{Request: *r, Outcome: outcome})
	}
	return out
}

func (m *Machine) evaluate(r *Request, now uint64) Outcome {
	if !m.env.BlockPresent(r.Pos) {
		return Stale
	}
	dmg, ok := m.env.ToolDamage(r.Player)
	if !ok || dmg <= 0 {
		return Stale
	}
	r.ExpectedEnd = r.StartTick + TicksToBreak(m.env.BlockHealth(r.Pos), dmg)

	if r.ClientFinished && now >= r.ExpectedEnd {
		return Completed
	}
	if !r.ClientFinished && now > r.ExpectedEnd+m.graceTicks {
		return TimedOut
	}
	return Active
}

// TicksToBreak is ceil(health / damage).
func TicksToBreak(health, damage int) uint64 {
	if health <= 0 {
		return 0
	}
	if damage <= 0 {
		return 0
	}
	return uint64((health + damage - 1) / damage)
}
