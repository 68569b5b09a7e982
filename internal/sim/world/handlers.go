package world

import (
	"fmt"
	"math"
	"strings"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/dig"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/spatial"
)

const defaultTool = "HAND"

func (w *World) handleCommand(cmd Command) {
	switch {
	case cmd.Join != nil:
		w.handleJoin(*cmd.Join)
	case cmd.Action != nil:
		w.handleAction(*cmd.Action)
	case cmd.Leave != 0:
		w.handleLeave(cmd.Leave)
	}
}

func (w *World) spawnPoint() (float64, float64) {
	return float64(w.tune.WorldWidth/2) + 0.5, float64(w.tune.SurfaceRow) - playerH/2
}

func (w *World) handleJoin(req JoinRequest) {
	respond := func(r JoinResponse) {
		if req.Resp != nil {
			req.Resp <- r
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "player"
	}
	if _, taken := w.names[name]; taken {
		respond(JoinResponse{Code: protocol.ErrNameTaken, Reason: fmt.Sprintf("name %q is in use", name)})
		return
	}
	if w.players.Len() >= w.tune.MaxPlayers {
		respond(JoinResponse{Code: protocol.ErrWorldBusy, Reason: "world is full"})
		return
	}
	codec := req.Codec
	if codec == nil {
		codec = protocol.JSONCodec{}
	}

	id := w.registry.Create()
	x, y := w.spawnPoint()
	body := Body{X: x, Y: y, W: playerW, H: playerH}
	tool := defaultTool
	if _, ok := w.tune.Tool(tool); !ok && len(w.tune.Tools) > 0 {
		tool = w.tune.Tools[0].Name
	}
	pl := &Player{Name: name, Tool: tool, Inventory: entity.Set{}, lastMoveTick: w.now}
	w.bodies.Set(id, body)
	w.players.Set(id, pl)
	w.index.Insert(spatial.Entry{ID: id, Rect: body.Rect()})
	w.interest.Join(id, body.X, body.Y)
	w.names[name] = id
	c := &client{id: id, codec: codec, out: req.Out, kick: req.Kick}
	w.clients[id] = c
	w.rec.joins = append(w.rec.joins, RecordedJoin{PlayerID: uint64(id), Name: name})
	w.log.Printf("join player=%d name=%s encoding=%s", id, name, codec.Name())

	respond(JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        uint64(id),
		SessionID:       req.SessionID,
		Tick:            w.now,
		Encoding:        codec.Name(),
		WorldParams:     w.WorldParams(),
	}})

	// Players travel on their own path, never through the interest diff.
	joined := protocol.PlayerJoinedMsg{Type: protocol.TypePlayerJoined, PlayerID: uint64(id), Name: name, X: body.X, Y: body.Y}
	w.broadcast(joined, id)
	for _, other := range w.playerIDs() {
		if other == id {
			continue
		}
		op, _ := w.players.Get(other)
		ob, _ := w.bodies.Get(other)
		w.send(c, protocol.PlayerJoinedMsg{Type: protocol.TypePlayerJoined, PlayerID: uint64(other), Name: op.Name, X: ob.X, Y: ob.Y})
	}
}

func (w *World) handleLeave(id entity.ID) {
	if !w.players.Has(id) {
		return
	}
	w.removePlayer(id)
	w.broadcast(protocol.PlayerLeftMsg{Type: protocol.TypePlayerLeft, PlayerID: uint64(id)}, 0)
}

// removePlayer drops the player and its inventory. Its known set is dropped
// without destroy messages and its dig requests go stale on their own.
func (w *World) removePlayer(id entity.ID) {
	pl, _ := w.players.Get(id)
	for _, item := range pl.Inventory.Sorted() {
		w.destroyEntity(item)
	}
	w.interest.Leave(id)
	delete(w.names, pl.Name)
	delete(w.clients, id)
	w.players.Delete(id)
	w.destroyEntity(id)
	w.rec.leaves = append(w.rec.leaves, uint64(id))
	w.log.Printf("leave player=%d name=%s", id, pl.Name)
}

func (w *World) destroyEntity(id entity.ID) {
	w.index.Remove(id)
	w.bodies.Delete(id)
	w.pickups.Delete(id)
	if d, ok := w.devices.Get(id); ok {
		if !d.Dropped && w.deviceAt[d.Tile] == id {
			delete(w.deviceAt, d.Tile)
		}
		w.circuits.DisconnectAll(id)
		w.devices.Delete(id)
	}
	w.registry.Destroy(id)
}

func (w *World) handleAction(env ActionEnvelope) {
	if !w.players.Has(env.Player) {
		w.log.Printf("action from unknown player=%d dropped", env.Player)
		return
	}
	if c := w.clients[env.Player]; c != nil && c.kicked {
		return
	}
	typ := actionType(env.Act)
	w.rec.actions = append(w.rec.actions, RecordedAction{PlayerID: uint64(env.Player), Type: typ, Act: env.Act})

	switch a := env.Act.(type) {
	case protocol.BeginDigMsg:
		w.digs.Begin(dig.Pos{X: a.X, Y: a.Y}, env.Player, w.now)
	case protocol.FinishDigMsg:
		w.digs.Finish(dig.Pos{X: a.X, Y: a.Y}, env.Player)
	case protocol.ConnectDevicesMsg:
		w.handleConnect(env.Player, a)
	case protocol.PlayerMoveMsg:
		w.handleMove(env.Player, a)
	case protocol.EquipToolMsg:
		w.handleEquip(env.Player, a)
	case protocol.PlaceDeviceMsg:
		w.handlePlaceDevice(env.Player, a)
	case protocol.RemoveDeviceMsg:
		w.handleRemoveDevice(env.Player, a)
	default:
		w.log.Printf("unsupported action %T from player=%d", env.Act, env.Player)
	}
}

func actionType(act any) string {
	switch act.(type) {
	case protocol.BeginDigMsg:
		return protocol.TypeBeginDig
	case protocol.FinishDigMsg:
		return protocol.TypeFinishDig
	case protocol.ConnectDevicesMsg:
		return protocol.TypeConnectDevices
	case protocol.PlayerMoveMsg:
		return protocol.TypePlayerMove
	case protocol.EquipToolMsg:
		return protocol.TypeEquipTool
	case protocol.PlaceDeviceMsg:
		return protocol.TypePlaceDevice
	case protocol.RemoveDeviceMsg:
		return protocol.TypeRemoveDevice
	}
	return fmt.Sprintf("%T", act)
}

func (w *World) handleMove(id entity.ID, m protocol.PlayerMoveMsg) {
	pl, _ := w.players.Get(id)
	body, _ := w.bodies.Get(id)
	if math.IsNaN(m.X) || math.IsNaN(m.Y) || math.IsInf(m.X, 0) || math.IsInf(m.Y, 0) {
		w.reject(id, protocol.TypePlayerMove, protocol.ErrBadRequest, "non-finite position")
		return
	}
	elapsed := w.now - pl.lastMoveTick
	if elapsed < 1 {
		elapsed = 1
	}
	if limit := uint64(w.tune.TickRateHz); elapsed > limit {
		elapsed = limit
	}
	maxDist := w.tune.MaxMoveTilesPerTick * float64(elapsed)
	if math.Hypot(m.X-body.X, m.Y-body.Y) > maxDist {
		w.reject(id, protocol.TypePlayerMove, protocol.ErrInvalidTarget, "moved too far")
		return
	}
	body.X = clampF(m.X, body.W/2, float64(w.tune.WorldWidth)-body.W/2)
	body.Y = clampF(m.Y, body.H/2, float64(w.tune.WorldHeight)-body.H/2)
	w.bodies.Set(id, body)
	pl.lastMoveTick = w.now
	pl.moved = true
}

func (w *World) handleEquip(id entity.ID, m protocol.EquipToolMsg) {
	if _, ok := w.tune.Tool(m.Tool); !ok {
		w.reject(id, protocol.TypeEquipTool, protocol.ErrBadRequest, fmt.Sprintf("unknown tool %q", m.Tool))
		return
	}
	pl, _ := w.players.Get(id)
	pl.Tool = m.Tool
}

func (w *World) handleConnect(id entity.ID, m protocol.ConnectDevicesMsg) {
	a, b := entity.ID(m.EntityA), entity.ID(m.EntityB)
	if !w.circuits.Connect(a, b) {
		w.reject(id, protocol.TypeConnectDevices, protocol.ErrConflict, fmt.Sprintf("cannot wire %d to %d", a, b))
		return
	}
	cid, _ := w.circuits.CircuitOf(a)
	w.audit(AuditEntry{Actor: uint64(id), Action: "CONNECT_DEVICES", Entity: uint64(a), Reason: fmt.Sprintf("to=%d circuit=%d", b, cid)})
}

func (w *World) handlePlaceDevice(id entity.ID, m protocol.PlaceDeviceMsg) {
	def, ok := w.tune.Device(m.Kind)
	if !ok {
		w.reject(id, protocol.TypePlaceDevice, protocol.ErrBadRequest, fmt.Sprintf("unknown device %q", m.Kind))
		return
	}
	at := dig.Pos{X: m.X, Y: m.Y}
	if !w.blocks.InBounds(at.X, at.Y) || w.blocks.BlockType(at.X, at.Y) != Air {
		w.reject(id, protocol.TypePlaceDevice, protocol.ErrInvalidTarget, "tile is not empty")
		return
	}
	if _, taken := w.deviceAt[at]; taken {
		w.reject(id, protocol.TypePlaceDevice, protocol.ErrInvalidTarget, "tile already has a device")
		return
	}
	x, y := tileCentre(at)
	dev := w.createEntity(components{
		Body:   Body{X: x, Y: y, W: deviceW, H: deviceH},
		Device: &Device{Kind: def.Kind, Role: parseRole(def.Role), Rate: def.Rate, Tile: at},
	})
	w.audit(AuditEntry{Actor: uint64(id), Action: "PLACE_DEVICE", Pos: [2]int{at.X, at.Y}, Entity: uint64(dev), Reason: def.Kind})
}

// handleRemoveDevice unwires a placed device and leaves it in the world as a
// dropped item under a fresh id, so clients see a destroy and a spawn.
func (w *World) handleRemoveDevice(id entity.ID, m protocol.RemoveDeviceMsg) {
	dev := entity.ID(m.Entity)
	d, ok := w.devices.Get(dev)
	if !ok || d.Dropped {
		w.reject(id, protocol.TypeRemoveDevice, protocol.ErrInvalidTarget, fmt.Sprintf("entity %d is not a placed device", dev))
		return
	}
	w.destroyEntity(dev)

	d.Dropped = true
	x, y := tileCentre(d.Tile)
	item := w.createEntity(components{
		Body:   Body{X: x, Y: y, W: pickupW, H: pickupH},
		Pickup: &Pickup{Item: d.Kind, Count: 1, Device: d.Kind},
		Device: &d,
	})
	w.audit(AuditEntry{Actor: uint64(id), Action: "REMOVE_DEVICE", Pos: [2]int{d.Tile.X, d.Tile.Y}, Entity: uint64(dev), Reason: fmt.Sprintf("dropped=%d", item)})
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
