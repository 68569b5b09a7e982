package world

import (
	"time"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/dig"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/scheduler"
	"tilecraft.dev/internal/sim/spatial"
)

// inputSystem drops kicked clients and applies every queued command.
type inputSystem struct{ w *World }

func (inputSystem) Name() string { return "input" }

func (s inputSystem) Update(ctx *scheduler.Context) {
	w := s.w
	w.now = ctx.Tick
	for _, id := range w.playerIDs() {
		if c := w.clients[id]; c != nil && c.kicked {
			w.handleLeave(id)
		}
	}
	for _, cmd := range w.inbox.Drain() {
		w.handleCommand(cmd)
	}
}

// spatialSystem moves index entries to their bodies' current boxes.
type spatialSystem struct{ w *World }

func (spatialSystem) Name() string { return "spatial" }

func (s spatialSystem) Update(*scheduler.Context) {
	w := s.w
	w.bodies.Each(func(id entity.ID, b Body) {
		if w.index.Has(id) {
			w.index.Update(spatial.Entry{ID: id, Rect: b.Rect()})
		}
	})
}

// pickupSystem moves pickups within reach of a player into its inventory.
// Players are visited in id order so contested pickups resolve the same way
// every run.
type pickupSystem struct{ w *World }

func (pickupSystem) Name() string { return "pickup" }

func (s pickupSystem) Update(*scheduler.Context) {
	w := s.w
	reach := w.tune.PickupReachTiles
	for _, id := range w.playerIDs() {
		body, _ := w.bodies.Get(id)
		pl, _ := w.players.Get(id)
		area := body.Rect()
		area.X -= reach
		area.Y -= reach
		area.W += 2 * reach
		area.H += 2 * reach
		for _, other := range w.index.Query(area).Sorted() {
			if !w.pickups.Has(other) {
				continue
			}
			w.index.Remove(other)
			pl.Inventory.Add(other)
		}
	}
}

// digSystem resolves dig requests and applies completed ones.
type digSystem struct{ w *World }

func (digSystem) Name() string { return "dig" }

func (s digSystem) Update(*scheduler.Context) {
	w := s.w
	for _, res := range w.digs.Tick(w.now) {
		r := res.Request
		w.rec.digs = append(w.rec.digs, RecordedDig{X: r.Pos.X, Y: r.Pos.Y, PlayerID: uint64(r.Player), Outcome: res.Outcome.String()})
		if res.Outcome != dig.Completed {
			continue
		}
		w.completeDig(r)
	}
}

func (w *World) completeDig(r dig.Request) {
	prev, ok := w.blocks.DestroyBlock(r.Pos.X, r.Pos.Y)
	if !ok {
		return
	}
	item := "BLOCK"
	if def, ok := w.tune.Block(prev); ok {
		item = def.Name
	}
	x, y := tileCentre(r.Pos)
	drop := w.createEntity(components{
		Body:   Body{X: x, Y: y, W: pickupW, H: pickupH},
		Pickup: &Pickup{Item: item, Count: 1},
	})
	w.broadcastBlock(r.Pos.X, r.Pos.Y, r.Player)
	w.audit(AuditEntry{
		Actor:  uint64(r.Player),
		Action: "DIG_BLOCK",
		Pos:    [2]int{r.Pos.X, r.Pos.Y},
		From:   prev,
		To:     Air,
		Entity: uint64(drop),
	})
}

// circuitSystem recomputes circuit totals every tick and publishes them on the
// configured cadence.
type circuitSystem struct{ w *World }

func (circuitSystem) Name() string { return "circuit" }

func (s circuitSystem) Update(*scheduler.Context) {
	w := s.w
	stats := w.circuits.Tick()
	every := uint64(w.tune.CircuitStatsEvery)
	if every == 0 || w.now%every != 0 || len(stats) == 0 {
		return
	}
	for _, st := range stats {
		w.broadcast(protocol.CircuitStatsMsg{
			Type:        protocol.TypeCircuitStats,
			Tick:        w.now,
			CircuitID:   uint32(st.Circuit),
			TotalSupply: st.TotalSupply,
			TotalDemand: st.TotalDemand,
		}, 0)
	}
	if w.statsLogger != nil {
		if err := w.statsLogger.WriteCircuitStats(CircuitStatsEntry{Tick: w.now, Circuits: stats}); err != nil {
			w.log.Printf("circuit stats: %v", err)
		}
	}
}

// replicationSystem brings every client up to date: block region, then
// destroys, then spawns, then other players' movement.
type replicationSystem struct{ w *World }

func (replicationSystem) Name() string { return "replication" }

func (s replicationSystem) Update(*scheduler.Context) {
	w := s.w
	ids := w.playerIDs()
	for _, id := range ids {
		c := w.clients[id]
		body, _ := w.bodies.Get(id)

		if r := w.chunkRegion(body.X, body.Y); !c.hasRegion || r != c.region {
			c.region, c.hasRegion = r, true
			w.send(c, protocol.BlockRegionMsg{
				Type:   protocol.TypeBlockRegion,
				Tick:   w.now,
				X:      r.X,
				Y:      r.Y,
				X2:     r.X2,
				Y2:     r.Y2,
				Blocks: w.blocks.Region(r.X, r.Y, r.X2, r.Y2),
			})
		}

		diff, err := w.interest.Refresh(id, body.X, body.Y)
		if err != nil {
			w.log.Printf("replication player=%d: %v", id, err)
			continue
		}
		if len(diff.Destroy) > 0 {
			gone := make([]uint64, len(diff.Destroy))
			for i, e := range diff.Destroy {
				gone[i] = uint64(e)
			}
			w.send(c, protocol.DestroyEntitiesMsg{Type: protocol.TypeDestroyEntities, Tick: w.now, Entities: gone})
		}
		if len(diff.Spawn) > 0 {
			spawns := make([]protocol.EntitySpawn, 0, len(diff.Spawn))
			for _, e := range diff.Spawn {
				if sp, ok := w.spawnOf(e); ok {
					spawns = append(spawns, sp)
				}
			}
			w.send(c, protocol.SpawnEntitiesMsg{Type: protocol.TypeSpawnEntities, Tick: w.now, Entities: spawns})
		}
	}

	for _, id := range ids {
		pl, _ := w.players.Get(id)
		if !pl.moved {
			continue
		}
		pl.moved = false
		body, _ := w.bodies.Get(id)
		w.broadcast(protocol.PlayerMovedMsg{Type: protocol.TypePlayerMoved, Tick: w.now, PlayerID: uint64(id), X: body.X, Y: body.Y}, id)
	}
}

type tickLogSystem struct{ w *World }

func (tickLogSystem) Name() string { return "ticklog" }

func (s tickLogSystem) Update(*scheduler.Context) {
	w := s.w
	defer w.rec.reset()
	if w.tickLogger == nil || w.rec.empty() {
		return
	}
	entry := TickLogEntry{
		Tick:     w.now,
		Joins:    w.rec.joins,
		Leaves:   w.rec.leaves,
		Actions:  w.rec.actions,
		Digs:     w.rec.digs,
		Entities: w.registry.Len(),
		Circuits: w.circuits.Len(),
	}
	if err := w.tickLogger.WriteTick(entry); err != nil {
		w.log.Printf("tick log: %v", err)
	}
}

// metricsSystem publishes WorldMetrics once per frame.
type metricsSystem struct{ w *World }

func (metricsSystem) Name() string { return "metrics" }
func (metricsSystem) Presentation() {}

func (s metricsSystem) Update(ctx *scheduler.Context) {
	w := s.w
	var step time.Duration
	for _, st := range w.sched.Profiler().Snapshot(w.sched.Role()) {
		if st.Name != "metrics" {
			step += st.Current
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:          ctx.Tick,
		Players:       w.players.Len(),
		Entities:      w.registry.Len(),
		Indexed:       w.index.Len(),
		Circuits:      w.circuits.Len(),
		Wires:         w.circuits.WireCount(),
		ActiveDigs:    w.digs.Len(),
		QueueDepths:   QueueDepths{Inbox: w.inbox.Len()},
		StepMS:        float64(step) / float64(time.Millisecond),
		KickedTotal:   w.kicked.Load(),
		InboxOverflow: w.inbox.Overflow(),
	})
}
