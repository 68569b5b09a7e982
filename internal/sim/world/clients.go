package world

import (
	"math"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/entity"
)

type client struct {
	id    entity.ID
	codec protocol.Codec
	out   chan []byte
	kick  func(code string)

	kicked bool

	// Last BLOCK_REGION sent, chunk aligned.
	region    tileRect
	hasRegion bool
}

// tileRect is [X,X2) x [Y,Y2) in tiles.
type tileRect struct {
	X, Y, X2, Y2 int
}

func (r tileRect) Contains(x, y int) bool {
	return x >= r.X && x < r.X2 && y >= r.Y && y < r.Y2
}

// send queues msg without blocking. A client whose queue is full is kicked:
// dropping a spawn or destroy batch would desynchronise its known set.
// Clients joined without an Out channel (replay) receive nothing.
func (w *World) send(c *client, msg any) {
	if c == nil || c.kicked || c.out == nil {
		return
	}
	b, err := c.codec.Marshal(msg)
	if err != nil {
		w.log.Printf("send to player=%d: marshal %T: %v", c.id, msg, err)
		return
	}
	select {
	case c.out <- b:
	default:
		w.kickClient(c, protocol.ErrSlowConsumer)
	}
}

func (w *World) sendTo(id entity.ID, msg any) { w.send(w.clients[id], msg) }

// broadcast sends to every connected player except skip (0 for none), in
// ascending id order.
func (w *World) broadcast(msg any, skip entity.ID) {
	for _, id := range w.playerIDs() {
		if id == skip {
			continue
		}
		w.send(w.clients[id], msg)
	}
}

// kickClient marks the client dead; the player is removed at the start of the
// next tick.
func (w *World) kickClient(c *client, code string) {
	if c.kicked {
		return
	}
	c.kicked = true
	w.kicked.Add(1)
	w.log.Printf("kick player=%d code=%s", c.id, code)
	if c.kick != nil {
		c.kick(code)
	}
}

func (w *World) playerIDs() []entity.ID {
	ids := make([]entity.ID, 0, w.players.Len())
	w.players.Each(func(id entity.ID, _ *Player) { ids = append(ids, id) })
	return ids
}

// chunkRegion is the viewport around (cx,cy) grown outwards to chunk
// boundaries and clipped to the world.
func (w *World) chunkRegion(cx, cy float64) tileRect {
	vp := w.interest.RegionAround(cx, cy)
	cs := w.tune.ChunkSize
	floorTo := func(v float64) int { return int(math.Floor(v/float64(cs))) * cs }
	ceilTo := func(v float64) int { return int(math.Ceil(v/float64(cs))) * cs }
	r := tileRect{
		X:  floorTo(vp.X),
		Y:  floorTo(vp.Y),
		X2: ceilTo(vp.MaxX()),
		Y2: ceilTo(vp.MaxY()),
	}
	r.X = clamp(r.X, 0, w.blocks.Width())
	r.Y = clamp(r.Y, 0, w.blocks.Height())
	r.X2 = clamp(r.X2, 0, w.blocks.Width())
	r.Y2 = clamp(r.Y2, 0, w.blocks.Height())
	return r
}

func (w *World) blockUpdate(x, y int) protocol.SingleBlockUpdateMsg {
	return protocol.SingleBlockUpdateMsg{
		Type:      protocol.TypeSingleBlockUpdate,
		Tick:      w.now,
		X:         x,
		Y:         y,
		BlockType: w.blocks.BlockType(x, y),
		WallType:  w.blocks.WallType(x, y),
		Flags:     w.blocks.Flags(x, y),
	}
}

// broadcastBlock sends a block change to requester and to every other
// player whose block region covers the tile.
func (w *World) broadcastBlock(x, y int, requester entity.ID) {
	msg := w.blockUpdate(x, y)
	for _, id := range w.playerIDs() {
		c := w.clients[id]
		if c == nil {
			continue
		}
		if id == requester || (c.hasRegion && c.region.Contains(x, y)) {
			w.send(c, msg)
		}
	}
}

func (w *World) reject(player entity.ID, ackFor, code, message string) {
	w.sendTo(player, protocol.AckMsg{
		Type:       protocol.TypeAck,
		AckFor:     ackFor,
		Accepted:   false,
		Code:       code,
		Message:    message,
		ServerTick: w.now,
	})
}
