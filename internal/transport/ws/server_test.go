package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/tuning"
	"tilecraft.dev/internal/sim/world"
)

func startServer(t *testing.T, mutate func(*tuning.Tuning)) (string, *world.World) {
	t.Helper()
	tune := tuning.Defaults()
	tune.WorldWidth = 64
	tune.WorldHeight = 32
	tune.SurfaceRow = 16
	tune.TickRateHz = 50
	tune.FrameIntervalMs = 5
	if mutate != nil {
		mutate(&tune)
	}
	w, err := world.New(world.Config{ID: "test_world", Tuning: tune})
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	srv := NewServer(w, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws", w
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendHello(t *testing.T, conn *websocket.Conn, hello protocol.HelloMsg) {
	t.Helper()
	hello.Type = protocol.TypeHello
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

// readUntil reads frames until one of type typ arrives and returns it.
func readUntil(t *testing.T, conn *websocket.Conn, codec protocol.Codec, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var base protocol.BaseMessage
		if err := codec.Unmarshal(b, &base); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if base.Type == typ {
			return b
		}
	}
}

func TestHandshake_WelcomeThenRegion(t *testing.T) {
	url, _ := startServer(t, nil)
	conn := dial(t, url)
	sendHello(t, conn, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "alice"})

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.PlayerID == 0 || welcome.SessionID == "" || welcome.WorldParams.Width != 64 {
		t.Fatalf("welcome: %+v", welcome)
	}
	var region protocol.BlockRegionMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeBlockRegion), &region); err != nil {
		t.Fatalf("region: %v", err)
	}
	if len(region.Blocks) != (region.X2-region.X)*(region.Y2-region.Y) {
		t.Fatalf("region: %+v", region)
	}
}

func TestHandshake_Refusals(t *testing.T) {
	url, _ := startServer(t, nil)

	cases := []struct {
		name  string
		hello protocol.HelloMsg
		code  string
	}{
		{"version", protocol.HelloMsg{ProtocolVersion: "0.9", Name: "a"}, protocol.ErrProtoVersion},
		{"encoding", protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "a", Encoding: "xml"}, protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dial(t, url)
			sendHello(t, conn, tc.hello)
			var d protocol.DisconnectMsg
			if err := json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeDisconnect), &d); err != nil {
				t.Fatalf("disconnect: %v", err)
			}
			if d.Code != tc.code {
				t.Fatalf("code: %q want %q", d.Code, tc.code)
			}
			if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("expected close frame, got %v", err)
			}
		})
	}

	t.Run("not hello", func(t *testing.T) {
		conn := dial(t, url)
		if err := conn.WriteJSON(protocol.BeginDigMsg{Type: protocol.TypeBeginDig}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var d protocol.DisconnectMsg
		_ = json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeDisconnect), &d)
		if d.Code != protocol.ErrProtoBadRequest {
			t.Fatalf("code: %q", d.Code)
		}
	})

	t.Run("name taken", func(t *testing.T) {
		first := dial(t, url)
		sendHello(t, first, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "dup"})
		readUntil(t, first, protocol.JSONCodec{}, protocol.TypeWelcome)

		second := dial(t, url)
		sendHello(t, second, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "dup"})
		var d protocol.DisconnectMsg
		_ = json.Unmarshal(readUntil(t, second, protocol.JSONCodec{}, protocol.TypeDisconnect), &d)
		if d.Code != protocol.ErrNameTaken {
			t.Fatalf("code: %q", d.Code)
		}
	})
}

func TestActions_MsgpackSession(t *testing.T) {
	url, _ := startServer(t, nil)
	conn := dial(t, url)
	sendHello(t, conn, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "bin", Encoding: protocol.EncodingMsgpack})
	readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeWelcome)

	codec := protocol.MsgpackCodec{}
	b, err := codec.Marshal(protocol.PlaceDeviceMsg{Type: protocol.TypePlaceDevice, X: 40, Y: 15, Kind: "LAMP"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}

	var spawn protocol.SpawnEntitiesMsg
	if err := codec.Unmarshal(readUntil(t, conn, codec, protocol.TypeSpawnEntities), &spawn); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if len(spawn.Entities) != 1 || spawn.Entities[0].Components.Device != "LAMP" {
		t.Fatalf("spawn: %+v", spawn)
	}
}

func TestActions_BadFrameIsAcked(t *testing.T) {
	url, _ := startServer(t, nil)
	conn := dial(t, url)
	sendHello(t, conn, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "x"})
	readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeWelcome)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"LAUNCH_ROCKET"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ack protocol.AckMsg
	_ = json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeAck), &ack)
	if ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack: %+v", ack)
	}
}

func TestActions_RateLimited(t *testing.T) {
	url, _ := startServer(t, func(tune *tuning.Tuning) {
		tune.RateLimits.MessagesPerSecond = 1
		tune.RateLimits.Burst = 1
	})
	conn := dial(t, url)
	sendHello(t, conn, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "spam"})
	readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeWelcome)

	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(protocol.EquipToolMsg{Type: protocol.TypeEquipTool, Tool: "DRILL"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	var ack protocol.AckMsg
	_ = json.Unmarshal(readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeAck), &ack)
	if ack.Code != protocol.ErrRateLimit {
		t.Fatalf("ack: %+v", ack)
	}
}

func TestDisconnect_RemovesPlayer(t *testing.T) {
	url, w := startServer(t, nil)
	conn := dial(t, url)
	sendHello(t, conn, protocol.HelloMsg{ProtocolVersion: protocol.Version, Name: "brief"})
	readUntil(t, conn, protocol.JSONCodec{}, protocol.TypeWelcome)
	waitPlayers(t, w, 1)
	_ = conn.Close()
	waitPlayers(t, w, 0)
}

func waitPlayers(t *testing.T, w *world.World, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w.Metrics().Players == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("players never reached %d: %+v", want, w.Metrics())
}
