package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tilecraft.dev/internal/sim/circuit"
	"tilecraft.dev/internal/sim/tuning"
	"tilecraft.dev/internal/sim/world"
)

// SQLiteIndex is a queryable secondary copy of the tick, audit and circuit
// logs. Writes are queued and applied by a single goroutine; the compressed
// JSONL logs stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropAudit atomic.Uint64
	dropStats atomic.Uint64
	txFail    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqStats
)

type req struct {
	kind reqKind

	tick  world.TickLogEntry
	audit world.AuditEntry
	stats world.CircuitStatsEntry
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropAuditTotal uint64 `json:"drop_audit_total"`
	DropStatsTotal uint64 `json:"drop_stats_total"`
	TxFailTotal    uint64 `json:"tx_fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 262144)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: allow bursty audit writes (many players digging) without stalling the sim.
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			digs INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			circuits INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			PRIMARY KEY (tick, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			act_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_player_tick ON actions(player_id, tick);`,
		`CREATE TABLE IF NOT EXISTS digs (
			tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			PRIMARY KEY (tick, x, y)
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor INTEGER NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			entity INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, y, tick);`,
		`CREATE TABLE IF NOT EXISTS circuit_stats (
			tick INTEGER NOT NULL,
			circuit_id INTEGER NOT NULL,
			total_supply REAL NOT NULL,
			total_demand REAL NOT NULL,
			PRIMARY KEY (tick, circuit_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// enqueue never blocks: if the indexer falls behind the row is dropped and
// counted.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	}
	return nil
}

func (s *SQLiteIndex) WriteCircuitStats(entry world.CircuitStatsEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqStats, stats: entry}, &s.dropStats)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropAuditTotal: s.dropAudit.Load(),
		DropStatsTotal: s.dropStats.Load(),
		TxFailTotal:    s.txFail.Load(),
	}
}

// UpsertTuning stores the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('protocol_version',?)`, tune.ProtocolVersion); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES('tuning',?,?,?)`, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

// AuditRow is one indexed audit entry.
type AuditRow struct {
	Tick   uint64 `json:"tick"`
	Actor  uint64 `json:"actor"`
	Action string `json:"action"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	From   byte   `json:"from"`
	To     byte   `json:"to"`
	Entity uint64 `json:"entity"`
	Reason string `json:"reason,omitempty"`
}

// AuditsAt lists the audit history of one tile, oldest first.
func (s *SQLiteIndex) AuditsAt(ctx context.Context, x, y int, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick,actor,action,x,y,from_block,to_block,entity,COALESCE(reason,'') FROM audits WHERE x=? AND y=? ORDER BY tick,seq LIMIT ?`,
		x, y, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.Tick, &r.Actor, &r.Action, &r.X, &r.Y, &r.From, &r.To, &r.Entity, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CircuitHistory lists the recorded totals of one circuit id, oldest first.
func (s *SQLiteIndex) CircuitHistory(ctx context.Context, circuitID uint32, limit int) ([]world.CircuitStatsEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick,total_supply,total_demand FROM circuit_stats WHERE circuit_id=? ORDER BY tick LIMIT ?`,
		circuitID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.CircuitStatsEntry
	for rows.Next() {
		var (
			tick           uint64
			supply, demand float64
		)
		if err := rows.Scan(&tick, &supply, &demand); err != nil {
			return nil, err
		}
		out = append(out, world.CircuitStatsEntry{Tick: tick, Circuits: []circuit.Stats{{Circuit: circuit.ID(circuitID), TotalSupply: supply, TotalDemand: demand}}})
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,joins,leaves,actions,digs,entities,circuits,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,player_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,player_id) VALUES(?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(tick,seq,player_id,type,act_json) VALUES(?,?,?,?,?)`)
	insertDig, _ := s.db.Prepare(`INSERT OR REPLACE INTO digs(tick,x,y,player_id,outcome) VALUES(?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,from_block,to_block,entity,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertStats, _ := s.db.Prepare(`INSERT OR REPLACE INTO circuit_stats(tick,circuit_id,total_supply,total_demand) VALUES(?,?,?,?)`)
	stmts := []*sql.Stmt{insertTick, insertJoin, insertLeave, insertAction, insertDig, insertAudit, insertStats}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			s.txFail.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.txFail.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.txFail.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			tick := int64(t.Tick)
			b, _ := json.Marshal(t)
			if !exec(insertTick, tick, len(t.Joins), len(t.Leaves), len(t.Actions), len(t.Digs), t.Entities, t.Circuits, string(b)) {
				continue
			}
			for _, j := range t.Joins {
				if !exec(insertJoin, tick, int64(j.PlayerID), j.Name) {
					break
				}
			}
			for _, id := range t.Leaves {
				if !exec(insertLeave, tick, int64(id)) {
					break
				}
			}
			for i, a := range t.Actions {
				actJSON, _ := json.Marshal(a.Act)
				if !exec(insertAction, tick, i, int64(a.PlayerID), a.Type, string(actJSON)) {
					break
				}
			}
			for _, d := range t.Digs {
				if !exec(insertDig, tick, d.X, d.Y, int64(d.PlayerID), d.Outcome) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit,
				int64(a.Tick),
				seq,
				int64(a.Actor),
				a.Action,
				a.Pos[0], a.Pos[1],
				int64(a.From),
				int64(a.To),
				int64(a.Entity),
				a.Reason,
				string(raw),
			)

		case reqStats:
			for _, c := range r.stats.Circuits {
				if !exec(insertStats, int64(r.stats.Tick), int64(c.Circuit), c.TotalSupply, c.TotalDemand) {
					break
				}
			}
		}
		flushIfNeeded()
	}

	commit()
}
