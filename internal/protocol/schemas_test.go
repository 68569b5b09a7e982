package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tilecraft.dev/internal/protocol"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateMsg round-trips a Go message through JSON so the schema sees exactly
// what goes on the wire.
func validateMsg(t *testing.T, s *jsonschema.Schema, msg any) {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal %T: %v", msg, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal %T: %v", msg, err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate %T: %v\n%s", msg, err, b)
	}
}

func TestSchemas_Handshake(t *testing.T) {
	validateMsg(t, compileSchema(t, "hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            "bot1",
		Encoding:        protocol.EncodingMsgpack,
	})
	validateMsg(t, compileSchema(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        1,
		SessionID:       "5f0c0c57-4a3c-4d1e-8a0e-0d4b0b9e2c11",
		Tick:            42,
		Encoding:        protocol.EncodingJSON,
		WorldParams: protocol.WorldParams{
			TickRateHz:     20,
			Width:          512,
			Height:         256,
			ChunkSize:      16,
			ViewportWidth:  64,
			ViewportHeight: 40,
			Tools:          []string{"HAND", "PICKAXE"},
			Devices:        []string{"LAMP"},
		},
	})
	validateMsg(t, compileSchema(t, "disconnect.schema.json"), protocol.DisconnectMsg{
		Type:            protocol.TypeDisconnect,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrProtoVersion,
		Reason:          "server speaks 1.0",
	})
	validateMsg(t, compileSchema(t, "ack.schema.json"), protocol.AckMsg{
		Type:       protocol.TypeAck,
		AckFor:     protocol.TypeConnectDevices,
		Code:       protocol.ErrConflict,
		ServerTick: 7,
	})
}

func TestSchemas_Actions(t *testing.T) {
	s := compileSchema(t, "action.schema.json")
	for _, msg := range []any{
		protocol.BeginDigMsg{Type: protocol.TypeBeginDig, X: 5, Y: 5},
		protocol.FinishDigMsg{Type: protocol.TypeFinishDig, X: 5, Y: 5},
		protocol.ConnectDevicesMsg{Type: protocol.TypeConnectDevices, EntityA: 3, EntityB: 4},
		protocol.PlayerMoveMsg{Type: protocol.TypePlayerMove, X: 10.5, Y: 63},
		protocol.EquipToolMsg{Type: protocol.TypeEquipTool, Tool: "DRILL"},
		protocol.PlaceDeviceMsg{Type: protocol.TypePlaceDevice, X: 1, Y: 2, Kind: "LAMP"},
		protocol.RemoveDeviceMsg{Type: protocol.TypeRemoveDevice, Entity: 9},
	} {
		validateMsg(t, s, msg)
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"CONNECT_DEVICES","entity_a":0,"entity_b":1}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("entity id 0 accepted")
	}
}

func TestSchemas_Replication(t *testing.T) {
	s := compileSchema(t, "replication.schema.json")
	for _, msg := range []any{
		protocol.SpawnEntitiesMsg{Type: protocol.TypeSpawnEntities, Tick: 1, Entities: []protocol.EntitySpawn{{
			ID:         12,
			Texture:    "item/STONE",
			Pos:        [2]float64{5.5, 5.5},
			Size:       [2]float64{0.5, 0.5},
			Components: protocol.Components{Item: "STONE", Count: 1},
		}}},
		protocol.DestroyEntitiesMsg{Type: protocol.TypeDestroyEntities, Tick: 1, Entities: []uint64{3, 4}},
		protocol.SingleBlockUpdateMsg{Type: protocol.TypeSingleBlockUpdate, Tick: 120, X: 5, Y: 5},
		protocol.BlockRegionMsg{Type: protocol.TypeBlockRegion, X: 0, Y: 0, X2: 2, Y2: 1, Blocks: []int{0, 2}},
		protocol.CircuitStatsMsg{Type: protocol.TypeCircuitStats, Tick: 20, CircuitID: 1, TotalSupply: 25, TotalDemand: 2},
		protocol.PlayerJoinedMsg{Type: protocol.TypePlayerJoined, PlayerID: 1, Name: "bot1", X: 10, Y: 63},
		protocol.PlayerMovedMsg{Type: protocol.TypePlayerMoved, Tick: 2, PlayerID: 1, X: 11, Y: 63},
		protocol.PlayerLeftMsg{Type: protocol.TypePlayerLeft, PlayerID: 1},
	} {
		validateMsg(t, s, msg)
	}
}
