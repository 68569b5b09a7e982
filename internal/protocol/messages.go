package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	// Encoding selects the codec for every frame after WELCOME: "json"
	// (default) or "msgpack".
	Encoding string `json:"encoding,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	PlayerID        uint64      `json:"player_id"`
	SessionID       string      `json:"session_id"`
	Tick            uint64      `json:"tick"`
	Encoding        string      `json:"encoding"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz     int      `json:"tick_rate_hz"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	ChunkSize      int      `json:"chunk_size"`
	ViewportWidth  float64  `json:"viewport_width"`
	ViewportHeight float64  `json:"viewport_height"`
	Tools          []string `json:"tools"`
	Devices        []string `json:"devices"`
}

// DISCONNECT (server -> client), always followed by a close frame.
type DisconnectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Reason          string `json:"reason,omitempty"`
}

// ACK (server -> client) reports a rejected action. Accepted actions are
// acknowledged by their replicated effects.
type AckMsg struct {
	Type       string `json:"type"`
	AckFor     string `json:"ack_for"`
	Accepted   bool   `json:"accepted"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	ServerTick uint64 `json:"server_tick"`
}

type BeginDigMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type FinishDigMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type ConnectDevicesMsg struct {
	Type    string `json:"type"`
	EntityA uint64 `json:"entity_a"`
	EntityB uint64 `json:"entity_b"`
}

type PlayerMoveMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type EquipToolMsg struct {
	Type string `json:"type"`
	Tool string `json:"tool"`
}

type PlaceDeviceMsg struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Kind string `json:"kind"`
}

type RemoveDeviceMsg struct {
	Type   string `json:"type"`
	Entity uint64 `json:"entity"`
}

// SPAWN_ENTITIES: every entity that entered the player's viewport this tick.
type SpawnEntitiesMsg struct {
	Type     string        `json:"type"`
	Tick     uint64        `json:"tick"`
	Entities []EntitySpawn `json:"entities"`
}

type EntitySpawn struct {
	ID         uint64     `json:"id"`
	Texture    string     `json:"texture"`
	Pos        [2]float64 `json:"pos"`
	Size       [2]float64 `json:"size"`
	Components Components `json:"components"`
}

// Components is the replicated snapshot of an entity's components.
type Components struct {
	Item    string `json:"item,omitempty"`
	Count   int    `json:"count,omitempty"`
	Device  string `json:"device,omitempty"`
	Role    string `json:"role,omitempty"`
	Dropped bool   `json:"dropped,omitempty"`
	Circuit uint32 `json:"circuit,omitempty"`
}

// DESTROY_ENTITIES: every entity that left the player's viewport this tick.
type DestroyEntitiesMsg struct {
	Type     string   `json:"type"`
	Tick     uint64   `json:"tick"`
	Entities []uint64 `json:"entities"`
}

type SingleBlockUpdateMsg struct {
	Type      string `json:"type"`
	Tick      uint64 `json:"tick"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	BlockType byte   `json:"block_type"`
	WallType  byte   `json:"wall_type"`
	Flags     byte   `json:"flags"`
}

// BLOCK_REGION covers [x,x2) x [y,y2); Blocks is row-major block types.
type BlockRegionMsg struct {
	Type   string `json:"type"`
	Tick   uint64 `json:"tick"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	X2     int    `json:"x2"`
	Y2     int    `json:"y2"`
	Blocks []int  `json:"blocks"`
}

type CircuitStatsMsg struct {
	Type        string  `json:"type"`
	Tick        uint64  `json:"tick"`
	CircuitID   uint32  `json:"circuit_id"`
	TotalSupply float64 `json:"total_supply"`
	TotalDemand float64 `json:"total_demand"`
}

type PlayerJoinedMsg struct {
	Type     string  `json:"type"`
	PlayerID uint64  `json:"player_id"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type PlayerMovedMsg struct {
	Type     string  `json:"type"`
	Tick     uint64  `json:"tick"`
	PlayerID uint64  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type PlayerLeftMsg struct {
	Type     string `json:"type"`
	PlayerID uint64 `json:"player_id"`
}
