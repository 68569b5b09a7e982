package scheduler

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	DefaultTickRateHz = 20
	DefaultMaxFrame   = 250 * time.Millisecond
)

// System is one step of the simulation. Logic systems run once per fixed tick;
// systems that also implement Presenter run once per Advance call instead.
type System interface {
	Name() string
	Update(ctx *Context)
}

// Presenter marks a system as presentation-only.
type Presenter interface {
	Presentation()
}

// Context is handed to every system invocation.
type Context struct {
	// Tick is the logic tick being simulated. For presentation systems it is the
	// next tick that will run.
	Tick uint64
	// Delta is the fixed tick duration for logic systems and the clamped frame
	// delta for presentation systems.
	Delta time.Duration
	// Alpha is accumulator/TickDuration after the logic loop; 0 for logic systems.
	Alpha float64
}

// Clock abstracts wall time so tests can drive the accumulator.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Config struct {
	TickDuration time.Duration
	// MaxFrame caps the wall delta added per Advance (spiral-of-death guard).
	MaxFrame time.Duration
	// FrameInterval is how often Run calls Advance.
	FrameInterval time.Duration
	Role          Role
	Clock         Clock
	Profiler      *Profiler
}

// Scheduler decouples the logic tick rate from the presentation rate with a
// fixed-timestep accumulator. It must be driven from a single goroutine.
type Scheduler struct {
	cfg     Config
	systems []System

	classified   bool
	logic        []System
	presentation []System

	tick        atomic.Uint64
	last        time.Time
	started     bool
	accumulator time.Duration

	frame []Stats
}

func New(cfg Config, systems ...System) *Scheduler {
	if cfg.TickDuration <= 0 {
		cfg.TickDuration = time.Second / DefaultTickRateHz
	}
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = DefaultMaxFrame
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = cfg.TickDuration
	}
	if cfg.Role == "" {
		cfg.Role = RoleServer
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Profiler == nil {
		cfg.Profiler = NewProfiler()
	}
	return &Scheduler{
		cfg:     cfg,
		systems: append([]System(nil), systems...),
	}
}

// Tick returns the number of logic ticks completed so far, which is also the
// tick number the next logic pass will simulate. Safe from any goroutine.
func (s *Scheduler) Tick() uint64 { return s.tick.Load() }

// SetTick seeds the counter before the first Advance (resume/tests).
func (s *Scheduler) SetTick(t uint64) { s.tick.Store(t) }

func (s *Scheduler) TickDuration() time.Duration { return s.cfg.TickDuration }
func (s *Scheduler) Profiler() *Profiler         { return s.cfg.Profiler }
func (s *Scheduler) Role() Role                  { return s.cfg.Role }

func (s *Scheduler) classify() {
	for _, sys := range s.systems {
		if _, ok := sys.(Presenter); ok {
			s.presentation = append(s.presentation, sys)
			continue
		}
		s.logic = append(s.logic, sys)
	}
	s.classified = true
}

// Advance performs one scheduler invocation and reports how many logic ticks ran.
// Panics raised by systems are not recovered.
func (s *Scheduler) Advance() int {
	if !s.classified {
		s.classify()
	}

	now := s.cfg.Clock.Now()
	var frame time.Duration
	if s.started {
		frame = now.Sub(s.last)
	}
	s.last = now
	s.started = true
	if frame < 0 {
		frame = 0
	}
	if frame > s.cfg.MaxFrame {
		frame = s.cfg.MaxFrame
	}
	s.accumulator += frame

	s.frame = s.frame[:0]
	ran := 0
	for s.accumulator >= s.cfg.TickDuration {
		s.runLogic()
		s.accumulator -= s.cfg.TickDuration
		ran++
	}
	s.runPresentation(frame)
	s.cfg.Profiler.publish(s.cfg.Role, s.frame)
	return ran
}

// Step runs exactly one logic tick and one presentation pass without reading
// the clock. Replays and tests drive the world with it.
func (s *Scheduler) Step() {
	if !s.classified {
		s.classify()
	}
	s.frame = s.frame[:0]
	s.runLogic()
	s.runPresentation(s.cfg.TickDuration)
	s.cfg.Profiler.publish(s.cfg.Role, s.frame)
}

func (s *Scheduler) runLogic() {
	ctx := Context{Tick: s.tick.Load(), Delta: s.cfg.TickDuration}
	for _, sys := range s.logic {
		s.run(sys, &ctx)
	}
	s.tick.Add(1)
}

func (s *Scheduler) runPresentation(frame time.Duration) {
	alpha := float64(s.accumulator) / float64(s.cfg.TickDuration)
	ctx := Context{Tick: s.tick.Load(), Delta: frame, Alpha: alpha}
	for _, sys := range s.presentation {
		s.run(sys, &ctx)
	}
}

func (s *Scheduler) run(sys System, ctx *Context) {
	start := s.cfg.Clock.Now()
	sys.Update(ctx)
	s.frame = append(s.frame, Stats{Name: sys.Name(), Current: s.cfg.Clock.Now().Sub(start)})
}

// Run calls Advance every FrameInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	s.Advance()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Advance()
		}
	}
}
