package world

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"tilecraft.dev/internal/protocol"
	"tilecraft.dev/internal/sim/circuit"
	"tilecraft.dev/internal/sim/dig"
	"tilecraft.dev/internal/sim/entity"
	"tilecraft.dev/internal/sim/interest"
	"tilecraft.dev/internal/sim/scheduler"
	"tilecraft.dev/internal/sim/spatial"
	"tilecraft.dev/internal/sim/tuning"
)

type Config struct {
	ID     string
	Tuning tuning.Tuning
	Logger *log.Logger

	// Scheduler wiring; zero values select the system clock, the server role
	// and a private profiler.
	Clock    scheduler.Clock
	Role     scheduler.Role
	Profiler *scheduler.Profiler
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  Config
	tune tuning.Tuning
	log  *log.Logger

	sched *scheduler.Scheduler
	inbox *Inbox

	registry *entity.Registry
	bodies   *entity.Table[Body]
	players  *entity.Table[*Player]
	pickups  *entity.Table[Pickup]
	devices  *entity.Table[Device]

	blocks   *Blocks
	index    *spatial.Index
	interest *interest.Manager
	digs     *dig.Machine
	circuits *circuit.Manager

	clients  map[entity.ID]*client
	names    map[string]entity.ID
	deviceAt map[dig.Pos]entity.ID

	// now is the tick being simulated by the current logic pass.
	now uint64

	// Per-tick recording, flushed by the tick log system.
	rec tickRecord

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger
	statsLogger StatsLogger

	kicked  atomic.Uint64
	metrics atomic.Value
}

func New(cfg Config) (*World, error) {
	tune := cfg.Tuning
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	dirt, ok := tune.BlockID("DIRT")
	if !ok {
		return nil, fmt.Errorf("world: block catalog has no DIRT")
	}
	stone, ok := tune.BlockID("STONE")
	if !ok {
		return nil, fmt.Errorf("world: block catalog has no STONE")
	}

	w := &World{
		cfg:      cfg,
		tune:     tune,
		log:      logger,
		inbox:    NewInbox(tune.InboxCapacity),
		registry: entity.NewRegistry(),
		bodies:   entity.NewTable[Body](),
		players:  entity.NewTable[*Player](),
		pickups:  entity.NewTable[Pickup](),
		devices:  entity.NewTable[Device](),
		blocks:   NewBlocks(tune.WorldWidth, tune.WorldHeight),
		index:    spatial.NewIndex(tune.CellSize),
		clients:  map[entity.ID]*client{},
		names:    map[string]entity.ID{},
		deviceAt: map[dig.Pos]entity.ID{},
	}
	w.blocks.FillLayered(tune.SurfaceRow, tune.DirtDepth, dirt, stone)
	w.interest = interest.NewManager(w.index, interest.Config{
		MaxWidth:  tune.ViewportWidth,
		MaxHeight: tune.ViewportHeight,
		IsPlayer:  w.players.Has,
	})
	w.digs = dig.NewMachine(digEnv{w}, uint64(tune.DigGraceTicks), logger)
	w.circuits = circuit.NewManager(deviceView{w}, logger)

	tickDur := time.Second / time.Duration(tune.TickRateHz)
	w.sched = scheduler.New(scheduler.Config{
		TickDuration:  tickDur,
		MaxFrame:      time.Duration(tune.MaxFrameMs) * time.Millisecond,
		FrameInterval: time.Duration(tune.FrameIntervalMs) * time.Millisecond,
		Role:          cfg.Role,
		Clock:         cfg.Clock,
		Profiler:      cfg.Profiler,
	}, w.systems()...)
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

// systems is the fixed per-tick order. Input is drained first so every
// mutation of the tick happens on this goroutine, before replication.
func (w *World) systems() []scheduler.System {
	return []scheduler.System{
		inputSystem{w},
		spatialSystem{w},
		pickupSystem{w},
		digSystem{w},
		circuitSystem{w},
		replicationSystem{w},
		tickLogSystem{w},
		metricsSystem{w},
	}
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }
func (w *World) SetStatsLogger(l StatsLogger) { w.statsLogger = l }

func (w *World) ID() string { return w.cfg.ID }

// Inbox is where network goroutines hand commands to the simulation.
func (w *World) Inbox() *Inbox { return w.inbox }

// CurrentTick is the number of completed logic ticks. Safe from any goroutine.
func (w *World) CurrentTick() uint64 { return w.sched.Tick() }

// Profiler exposes per-system timing. Safe from any goroutine.
func (w *World) Profiler() *scheduler.Profiler { return w.sched.Profiler() }

func (w *World) Role() scheduler.Role { return w.sched.Role() }

func (w *World) Tuning() tuning.Tuning { return w.tune }

// Run drives the scheduler until ctx is cancelled. Panics from logic systems
// are not recovered.
func (w *World) Run(ctx context.Context) error {
	w.log.Printf("world %s running: tick_rate=%dHz frame=%dms", w.cfg.ID, w.tune.TickRateHz, w.tune.FrameIntervalMs)
	return w.sched.Run(ctx)
}

// StepOnce advances the world by exactly one tick on the calling goroutine.
// It is intended for deterministic tests and tools; never mix it with Run.
func (w *World) StepOnce() uint64 {
	w.sched.Step()
	return w.sched.Tick()
}

func (w *World) WorldParams() protocol.WorldParams {
	devices := make([]string, 0, len(w.tune.Devices))
	for _, d := range w.tune.Devices {
		devices = append(devices, d.Kind)
	}
	return protocol.WorldParams{
		TickRateHz:     w.tune.TickRateHz,
		Width:          w.tune.WorldWidth,
		Height:         w.tune.WorldHeight,
		ChunkSize:      w.tune.ChunkSize,
		ViewportWidth:  w.tune.ViewportWidth,
		ViewportHeight: w.tune.ViewportHeight,
		Tools:          w.tune.ToolNames(),
		Devices:        devices,
	}
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Tick = w.now
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.log.Printf("audit: %v", err)
	}
}

// digEnv answers the dig machine's questions from world state.
type digEnv struct{ w *World }

func (e digEnv) BlockPresent(p dig.Pos) bool {
	b := e.w.blocks
	return b.InBounds(p.X, p.Y) && b.BlockType(p.X, p.Y) != Air
}

func (e digEnv) BlockHealth(p dig.Pos) int {
	if def, ok := e.w.tune.Block(e.w.blocks.BlockType(p.X, p.Y)); ok {
		return def.Health
	}
	return 1
}

func (e digEnv) ToolDamage(player entity.ID) (int, bool) {
	pl, ok := e.w.players.Get(player)
	if !ok {
		return 0, false
	}
	tool, ok := e.w.tune.Tool(pl.Tool)
	if !ok || tool.DamagePerTick <= 0 {
		return 0, false
	}
	return tool.DamagePerTick, true
}

// deviceView exposes device components to the circuit manager.
type deviceView struct{ w *World }

func (v deviceView) Device(id entity.ID) (circuit.Device, bool) {
	d, ok := v.w.devices.Get(id)
	if !ok {
		return circuit.Device{}, false
	}
	return circuit.Device{Role: d.Role, Rate: d.Rate, Dropped: d.Dropped}, true
}
