package scheduler

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Role separates stats of the dedicated/hosted server world from the client
// world when both run in one process.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

type Stats struct {
	Name    string        `json:"name"`
	Calls   uint64        `json:"calls"`
	Current time.Duration `json:"current_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Avg     time.Duration `json:"avg_ns"`

	total time.Duration
}

// Profiler keeps per-system timing. Each role is written by exactly one
// scheduler goroutine, which publishes a finished copy after every Advance;
// readers only ever see published copies.
type Profiler struct {
	mu    sync.Mutex
	roles map[Role]*roleStats
}

type roleStats struct {
	acc       map[string]*Stats
	published atomic.Pointer[[]Stats]
}

func NewProfiler() *Profiler {
	return &Profiler{roles: map[Role]*roleStats{}}
}

func (p *Profiler) role(r Role) *roleStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs := p.roles[r]
	if rs == nil {
		rs = &roleStats{acc: map[string]*Stats{}}
		p.roles[r] = rs
	}
	return rs
}

func (p *Profiler) publish(r Role, frame []Stats) {
	rs := p.role(r)
	for _, f := range frame {
		s := rs.acc[f.Name]
		if s == nil {
			s = &Stats{Name: f.Name, Min: f.Current}
			rs.acc[f.Name] = s
		}
		s.Calls++
		s.Current = f.Current
		s.total += f.Current
		if f.Current < s.Min {
			s.Min = f.Current
		}
		if f.Current > s.Max {
			s.Max = f.Current
		}
		s.Avg = s.total / time.Duration(s.Calls)
	}

	out := make([]Stats, 0, len(rs.acc))
	for _, s := range rs.acc {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	rs.published.Store(&out)
}

// Snapshot returns the last published stats for a role, sorted by system name.
// Safe to call from any goroutine.
func (p *Profiler) Snapshot(r Role) []Stats {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	rs := p.roles[r]
	p.mu.Unlock()
	if rs == nil {
		return nil
	}
	v := rs.published.Load()
	if v == nil {
		return nil
	}
	out := make([]Stats, len(*v))
	copy(out, *v)
	return out
}

func (p *Profiler) Roles() []Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Role, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
