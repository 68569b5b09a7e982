package tuning

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz      int `yaml:"tick_rate_hz"`
	FrameIntervalMs int `yaml:"frame_interval_ms"`
	MaxFrameMs      int `yaml:"max_frame_ms"`

	WorldWidth  int `yaml:"world_width"`
	WorldHeight int `yaml:"world_height"`
	SurfaceRow  int `yaml:"surface_row"`
	DirtDepth   int `yaml:"dirt_depth"`
	ChunkSize   int `yaml:"chunk_size"`

	ViewportWidth  float64 `yaml:"viewport_width"`
	ViewportHeight float64 `yaml:"viewport_height"`
	CellSize       float64 `yaml:"cell_size"`

	DigGraceTicks       int     `yaml:"dig_grace_ticks"`
	CircuitStatsEvery   int     `yaml:"circuit_stats_every_ticks"`
	PickupReachTiles    float64 `yaml:"pickup_reach_tiles"`
	MaxMoveTilesPerTick float64 `yaml:"max_move_tiles_per_tick"`

	MaxPlayers      int `yaml:"max_players"`
	InboxCapacity   int `yaml:"inbox_capacity"`
	ClientQueueSize int `yaml:"client_queue_size"`

	RateLimits RateLimits `yaml:"rate_limits"`

	Blocks  []BlockDef  `yaml:"blocks"`
	Tools   []ToolDef   `yaml:"tools"`
	Devices []DeviceDef `yaml:"devices"`
}

// RateLimits bounds inbound messages per connection (token bucket).
type RateLimits struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

type BlockDef struct {
	ID     byte   `yaml:"id"`
	Name   string `yaml:"name"`
	Health int    `yaml:"health"`
}

type ToolDef struct {
	Name          string `yaml:"name"`
	DamagePerTick int    `yaml:"damage_per_tick"`
}

type DeviceDef struct {
	Kind string `yaml:"kind"`
	// Role is one of generator, consumer, passive.
	Role string  `yaml:"role"`
	Rate float64 `yaml:"rate"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",

		TickRateHz:      20,
		FrameIntervalMs: 16,
		MaxFrameMs:      250,

		WorldWidth:  512,
		WorldHeight: 256,
		SurfaceRow:  64,
		DirtDepth:   6,
		ChunkSize:   16,

		ViewportWidth:  64,
		ViewportHeight: 40,
		CellSize:       16,

		DigGraceTicks:       40,
		CircuitStatsEvery:   20,
		PickupReachTiles:    1.5,
		MaxMoveTilesPerTick: 2,

		MaxPlayers:      64,
		InboxCapacity:   4096,
		ClientQueueSize: 256,

		RateLimits: RateLimits{MessagesPerSecond: 60, Burst: 120},

		Blocks: []BlockDef{
			{ID: 1, Name: "DIRT", Health: 50},
			{ID: 2, Name: "STONE", Health: 200},
			{ID: 3, Name: "ORE", Health: 400},
		},
		Tools: []ToolDef{
			{Name: "HAND", DamagePerTick: 2},
			{Name: "PICKAXE", DamagePerTick: 10},
			{Name: "DRILL", DamagePerTick: 25},
		},
		Devices: []DeviceDef{
			{Kind: "SOLAR_PANEL", Role: "generator", Rate: 5},
			{Kind: "GENERATOR", Role: "generator", Rate: 20},
			{Kind: "LAMP", Role: "consumer", Rate: 2},
			{Kind: "FURNACE", Role: "consumer", Rate: 15},
			{Kind: "JUNCTION", Role: "passive"},
		},
	}
}

// Load reads a YAML tuning file on top of Defaults. Keys missing from the file
// keep their default value; catalogs given in the file replace the default
// catalog wholesale.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", name, v))
		}
	}
	positive("tick_rate_hz", t.TickRateHz)
	positive("frame_interval_ms", t.FrameIntervalMs)
	positive("max_frame_ms", t.MaxFrameMs)
	positive("world_width", t.WorldWidth)
	positive("world_height", t.WorldHeight)
	positive("chunk_size", t.ChunkSize)
	positive("max_players", t.MaxPlayers)
	positive("inbox_capacity", t.InboxCapacity)
	positive("client_queue_size", t.ClientQueueSize)
	positive("circuit_stats_every_ticks", t.CircuitStatsEvery)
	if t.DigGraceTicks < 0 {
		errs = append(errs, fmt.Errorf("dig_grace_ticks must be >= 0 (got %d)", t.DigGraceTicks))
	}
	if t.SurfaceRow < 0 || t.SurfaceRow >= t.WorldHeight {
		errs = append(errs, fmt.Errorf("surface_row %d outside world height %d", t.SurfaceRow, t.WorldHeight))
	}
	if t.ViewportWidth <= 0 || t.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive (got %gx%g)", t.ViewportWidth, t.ViewportHeight))
	}
	if t.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell_size must be > 0 (got %g)", t.CellSize))
	}
	if t.MaxFrameMs*t.TickRateHz < 1000 && t.MaxFrameMs > 0 && t.TickRateHz > 0 {
		errs = append(errs, fmt.Errorf("max_frame_ms %d shorter than one tick", t.MaxFrameMs))
	}
	if t.RateLimits.MessagesPerSecond <= 0 || t.RateLimits.Burst <= 0 {
		errs = append(errs, errors.New("rate_limits must be positive"))
	}

	seenBlocks := map[byte]bool{}
	for _, b := range t.Blocks {
		if b.ID == 0 {
			errs = append(errs, fmt.Errorf("block %q: id 0 is reserved for air", b.Name))
		}
		if seenBlocks[b.ID] {
			errs = append(errs, fmt.Errorf("block id %d defined twice", b.ID))
		}
		seenBlocks[b.ID] = true
		if b.Health <= 0 {
			errs = append(errs, fmt.Errorf("block %q: health must be > 0", b.Name))
		}
	}
	seenTools := map[string]bool{}
	for _, tool := range t.Tools {
		if tool.Name == "" || seenTools[tool.Name] {
			errs = append(errs, fmt.Errorf("tool %q missing or duplicated", tool.Name))
		}
		seenTools[tool.Name] = true
		if tool.DamagePerTick < 0 {
			errs = append(errs, fmt.Errorf("tool %q: damage_per_tick must be >= 0", tool.Name))
		}
	}
	seenDevices := map[string]bool{}
	for _, d := range t.Devices {
		if d.Kind == "" || seenDevices[d.Kind] {
			errs = append(errs, fmt.Errorf("device %q missing or duplicated", d.Kind))
		}
		seenDevices[d.Kind] = true
		switch d.Role {
		case "generator", "consumer", "passive":
		default:
			errs = append(errs, fmt.Errorf("device %q: unknown role %q", d.Kind, d.Role))
		}
	}
	return errors.Join(errs...)
}

func (t Tuning) Block(id byte) (BlockDef, bool) {
	for _, b := range t.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return BlockDef{}, false
}

// BlockID looks a block up by catalog name.
func (t Tuning) BlockID(name string) (byte, bool) {
	for _, b := range t.Blocks {
		if b.Name == name {
			return b.ID, true
		}
	}
	return 0, false
}

func (t Tuning) Tool(name string) (ToolDef, bool) {
	for _, tool := range t.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return ToolDef{}, false
}

func (t Tuning) Device(kind string) (DeviceDef, bool) {
	for _, d := range t.Devices {
		if d.Kind == kind {
			return d, true
		}
	}
	return DeviceDef{}, false
}

// ToolNames lists the tool catalog, sorted.
func (t Tuning) ToolNames() []string {
	out := make([]string, 0, len(t.Tools))
	for _, tool := range t.Tools {
		out = append(out, tool.Name)
	}
	sort.Strings(out)
	return out
}
