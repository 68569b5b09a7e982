package world

import "tilecraft.dev/internal/sim/circuit"

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type StatsLogger interface {
	WriteCircuitStats(entry CircuitStatsEntry) error
}

type TickLogEntry struct {
	Tick     uint64           `json:"tick"`
	Joins    []RecordedJoin   `json:"joins,omitempty"`
	Leaves   []uint64         `json:"leaves,omitempty"`
	Actions  []RecordedAction `json:"actions,omitempty"`
	Digs     []RecordedDig    `json:"digs,omitempty"`
	Entities int              `json:"entities"`
	Circuits int              `json:"circuits"`
}

type RecordedJoin struct {
	PlayerID uint64 `json:"player_id"`
	Name     string `json:"name"`
}

type RecordedAction struct {
	PlayerID uint64 `json:"player_id"`
	Type     string `json:"type"`
	Act      any    `json:"act"`
}

type RecordedDig struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	PlayerID uint64 `json:"player_id"`
	Outcome  string `json:"outcome"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  uint64 `json:"actor"`
	Action string `json:"action"` // e.g. "DIG_BLOCK"
	Pos    [2]int `json:"pos"`
	From   byte   `json:"from"`
	To     byte   `json:"to"`
	Entity uint64 `json:"entity,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type CircuitStatsEntry struct {
	Tick     uint64          `json:"tick"`
	Circuits []circuit.Stats `json:"circuits"`
}

type tickRecord struct {
	joins   []RecordedJoin
	leaves  []uint64
	actions []RecordedAction
	digs    []RecordedDig
}

func (r *tickRecord) empty() bool {
	return len(r.joins) == 0 && len(r.leaves) == 0 && len(r.actions) == 0 && len(r.digs) == 0
}

func (r *tickRecord) reset() {
	r.joins = nil
	r.leaves = nil
	r.actions = nil
	r.digs = nil
}
