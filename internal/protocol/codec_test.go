package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestCodecFor(t *testing.T) {
	for name, want := range map[string]string{"": EncodingJSON, "json": EncodingJSON, "msgpack": EncodingMsgpack} {
		c, ok := CodecFor(name)
		if !ok || c.Name() != want {
			t.Fatalf("CodecFor(%q)=%v,%v", name, c, ok)
		}
	}
	if _, ok := CodecFor("xml"); ok {
		t.Fatalf("unknown encoding accepted")
	}
	if (JSONCodec{}).Binary() || !(MsgpackCodec{}).Binary() {
		t.Fatalf("frame kinds swapped")
	}
}

func TestDecodeAction_BothEncodings(t *testing.T) {
	actions := []any{
		BeginDigMsg{Type: TypeBeginDig, X: 5, Y: -3},
		FinishDigMsg{Type: TypeFinishDig, X: 5, Y: -3},
		ConnectDevicesMsg{Type: TypeConnectDevices, EntityA: 10, EntityB: 1 << 40},
		PlayerMoveMsg{Type: TypePlayerMove, X: 1.25, Y: 64},
		EquipToolMsg{Type: TypeEquipTool, Tool: "PICKAXE"},
		PlaceDeviceMsg{Type: TypePlaceDevice, X: 3, Y: 60, Kind: "LAMP"},
		RemoveDeviceMsg{Type: TypeRemoveDevice, Entity: 77},
	}
	for _, c := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		for _, want := range actions {
			b, err := c.Marshal(want)
			if err != nil {
				t.Fatalf("%s marshal %T: %v", c.Name(), want, err)
			}
			got, err := DecodeAction(c, b)
			if err != nil {
				t.Fatalf("%s decode %T: %v", c.Name(), want, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("%s: got %#v want %#v", c.Name(), got, want)
			}
		}
	}
}

func TestDecodeAction_Rejects(t *testing.T) {
	c := JSONCodec{}
	if _, err := DecodeAction(c, []byte(`{"type":"TELEPORT"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err=%v want ErrUnknownType", err)
	}
	if _, err := DecodeAction(c, []byte(`{"type":"BEGIN_DIG","x":"left"}`)); err == nil {
		t.Fatalf("bad field type accepted")
	}
	if _, err := DecodeAction(c, []byte(`not json`)); err == nil {
		t.Fatalf("garbage accepted")
	}
	// Server-bound only: replication messages are not actions.
	if _, err := DecodeAction(c, []byte(`{"type":"SPAWN_ENTITIES"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err=%v", err)
	}
}

func TestMsgpackUsesJSONFieldNames(t *testing.T) {
	b, err := (MsgpackCodec{}).Marshal(SingleBlockUpdateMsg{Type: TypeSingleBlockUpdate, X: 1, Y: 2, BlockType: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := (MsgpackCodec{}).Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "x", "y", "block_type", "wall_type", "flags"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing key %q in %v", key, m)
		}
	}
}
