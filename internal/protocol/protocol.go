package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeDisconnect = "DISCONNECT"
	TypeAck        = "ACK"

	// Client -> server actions.
	TypeBeginDig       = "BEGIN_DIG"
	TypeFinishDig      = "FINISH_DIG"
	TypeConnectDevices = "CONNECT_DEVICES"
	TypePlayerMove     = "PLAYER_MOVE"
	TypeEquipTool      = "EQUIP_TOOL"
	TypePlaceDevice    = "PLACE_DEVICE"
	TypeRemoveDevice   = "REMOVE_DEVICE"

	// Server -> client replication.
	TypeSpawnEntities     = "SPAWN_ENTITIES"
	TypeDestroyEntities   = "DESTROY_ENTITIES"
	TypeSingleBlockUpdate = "SINGLE_BLOCK_UPDATE"
	TypeBlockRegion       = "BLOCK_REGION"
	TypeCircuitStats      = "CIRCUIT_STATS"
	TypePlayerJoined      = "PLAYER_JOINED"
	TypePlayerMoved       = "PLAYER_MOVED"
	TypePlayerLeft        = "PLAYER_LEFT"
)

var ErrUnknownType = errors.New("protocol: unknown message type")

// BaseMessage lets us route unknown messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeAction decodes a client action frame into its concrete message type
// (a value, not a pointer).
func DecodeAction(c Codec, b []byte) (any, error) {
	var base BaseMessage
	if err := c.Unmarshal(b, &base); err != nil {
		return nil, fmt.Errorf("decode base: %w", err)
	}
	var (
		msg any
		err error
	)
	switch base.Type {
	case TypeBeginDig:
		msg, err = decodeAs[BeginDigMsg](c, b)
	case TypeFinishDig:
		msg, err = decodeAs[FinishDigMsg](c, b)
	case TypeConnectDevices:
		msg, err = decodeAs[ConnectDevicesMsg](c, b)
	case TypePlayerMove:
		msg, err = decodeAs[PlayerMoveMsg](c, b)
	case TypeEquipTool:
		msg, err = decodeAs[EquipToolMsg](c, b)
	case TypePlaceDevice:
		msg, err = decodeAs[PlaceDeviceMsg](c, b)
	case TypeRemoveDevice:
		msg, err = decodeAs[RemoveDeviceMsg](c, b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return msg, nil
}

func decodeAs[T any](c Codec, b []byte) (any, error) {
	var m T
	if err := c.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
