package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"tilecraft.dev/internal/protocol"
)

// bot is a load and smoke-test client: it digs straight down the middle
// column of the world, wires up any devices it sees and logs what the
// server sends back.
type bot struct {
	conn   *websocket.Conn
	log    *log.Logger
	player uint64
	column int

	region  protocol.BlockRegionMsg
	digging bool
	digAt   [2]int
	devices []uint64
	wired   int
}

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "player name")
		tool = flag.String("tool", "PICKAXE", "tool to equip")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Encoding:        protocol.EncodingJSON,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	b := &bot{conn: conn, log: logger}
	frames := make(chan []byte, 256)
	go func() {
		defer close(frames)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			frames <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-frames:
			if !ok {
				return
			}
			b.handle(msg, *tool)
		case <-ticker.C:
			b.act()
		}
	}
}

func (b *bot) handle(msg []byte, tool string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.player = w.PlayerID
		b.column = w.WorldParams.Width / 2
		b.log.Printf("WELCOME player_id=%d session=%s tick=%d world=%dx%d", w.PlayerID, w.SessionID, w.Tick, w.WorldParams.Width, w.WorldParams.Height)
		b.send(protocol.EquipToolMsg{Type: protocol.TypeEquipTool, Tool: tool})

	case protocol.TypeDisconnect:
		var d protocol.DisconnectMsg
		_ = json.Unmarshal(msg, &d)
		b.log.Printf("DISCONNECT code=%s reason=%s", d.Code, d.Reason)

	case protocol.TypeBlockRegion:
		var r protocol.BlockRegionMsg
		if err := json.Unmarshal(msg, &r); err == nil {
			b.region = r
		}

	case protocol.TypeSingleBlockUpdate:
		var u protocol.SingleBlockUpdateMsg
		if err := json.Unmarshal(msg, &u); err != nil {
			return
		}
		b.setBlock(u.X, u.Y, int(u.BlockType))
		if b.digging && u.X == b.digAt[0] && u.Y == b.digAt[1] && u.BlockType == 0 {
			b.log.Printf("dug (%d,%d) at tick %d", u.X, u.Y, u.Tick)
			b.digging = false
		}

	case protocol.TypeSpawnEntities:
		var s protocol.SpawnEntitiesMsg
		if err := json.Unmarshal(msg, &s); err != nil {
			return
		}
		for _, e := range s.Entities {
			if e.Components.Device != "" && !e.Components.Dropped {
				b.devices = append(b.devices, e.ID)
			}
		}

	case protocol.TypeCircuitStats:
		var c protocol.CircuitStatsMsg
		if err := json.Unmarshal(msg, &c); err == nil {
			b.log.Printf("circuit %d supply=%.1f demand=%.1f", c.CircuitID, c.TotalSupply, c.TotalDemand)
		}

	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(msg, &a); err == nil {
			b.log.Printf("rejected %s: %s %s", a.AckFor, a.Code, a.Message)
			if a.AckFor == protocol.TypeBeginDig {
				// Nothing diggable left in this column.
				b.digging = false
				b.column = -1
			}
		}
	}
}

// act runs one step of the bot's routine.
func (b *bot) act() {
	if b.player == 0 {
		return
	}
	if b.wired+1 < len(b.devices) {
		b.send(protocol.ConnectDevicesMsg{Type: protocol.TypeConnectDevices, EntityA: b.devices[b.wired], EntityB: b.devices[b.wired+1]})
		b.wired++
	}
	if b.digging {
		// The server completes the dig once enough ticks have passed.
		b.send(protocol.FinishDigMsg{Type: protocol.TypeFinishDig, X: b.digAt[0], Y: b.digAt[1]})
		return
	}
	x, y, ok := b.nextSolid()
	if !ok {
		return
	}
	b.digAt = [2]int{x, y}
	b.digging = true
	b.send(protocol.BeginDigMsg{Type: protocol.TypeBeginDig, X: b.digAt[0], Y: b.digAt[1]})
}

// nextSolid returns the topmost non-air tile of the bot's column inside the
// last region it received.
func (b *bot) nextSolid() (int, int, bool) {
	r := b.region
	if b.column < r.X || b.column >= r.X2 {
		return 0, 0, false
	}
	w := r.X2 - r.X
	for y := r.Y; y < r.Y2; y++ {
		i := (y-r.Y)*w + (b.column - r.X)
		if i < len(r.Blocks) && r.Blocks[i] != 0 {
			return b.column, y, true
		}
	}
	return 0, 0, false
}

func (b *bot) setBlock(x, y, block int) {
	r := &b.region
	if x < r.X || x >= r.X2 || y < r.Y || y >= r.Y2 {
		return
	}
	if i := (y-r.Y)*(r.X2-r.X) + (x - r.X); i < len(r.Blocks) {
		r.Blocks[i] = block
	}
}

func (b *bot) send(v any) {
	_ = b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := b.conn.WriteJSON(v); err != nil {
		b.log.Printf("write: %v", err)
	}
}
