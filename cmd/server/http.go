package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"

	"tilecraft.dev/internal/persistence/indexdb"
	"tilecraft.dev/internal/sim/world"
)

type muxOptions struct {
	WorldID     string
	EnableAdmin bool
	EnablePprof bool
	Logger      *log.Logger
}

// newMux wires every HTTP endpoint except the game socket. idx may be nil.
func newMux(w *world.World, idx *indexdb.SQLiteIndex, opts muxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, opts.WorldID, w, idx)
	})

	if opts.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
				Index   indexdb.Stats      `json:"index"`
			}{
				WorldID: opts.WorldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
				Index:   idx.Stats(),
			}
			writeJSONResponse(rw, http.StatusOK, resp)
		}))
		mux.HandleFunc("/admin/v1/systems", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			p := w.Profiler()
			out := map[string]any{}
			for _, role := range p.Roles() {
				out[string(role)] = p.Snapshot(role)
			}
			writeJSONResponse(rw, http.StatusOK, out)
		}))
		if idx != nil {
			mux.HandleFunc("/admin/v1/audits", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				x, errX := strconv.Atoi(q.Get("x"))
				y, errY := strconv.Atoi(q.Get("y"))
				if errX != nil || errY != nil {
					http.Error(rw, "x and y are required", http.StatusBadRequest)
					return
				}
				limit, _ := strconv.Atoi(q.Get("limit"))
				rows, err := idx.AuditsAt(r.Context(), x, y, limit)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusInternalServerError)
					return
				}
				writeJSONResponse(rw, http.StatusOK, map[string]any{"x": x, "y": y, "audits": rows})
			}))
			mux.HandleFunc("/admin/v1/circuits", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				id, err := strconv.ParseUint(q.Get("id"), 10, 32)
				if err != nil {
					http.Error(rw, "bad circuit id", http.StatusBadRequest)
					return
				}
				limit, _ := strconv.Atoi(q.Get("limit"))
				hist, err := idx.CircuitHistory(r.Context(), uint32(id), limit)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusInternalServerError)
					return
				}
				writeJSONResponse(rw, http.StatusOK, map[string]any{"circuit_id": id, "history": hist})
			}))
		}
	} else if opts.Logger != nil {
		opts.Logger.Printf("admin endpoints disabled (TC_ENABLE_ADMIN_HTTP=false)")
	}

	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else if opts.Logger != nil {
		opts.Logger.Printf("pprof endpoints disabled (TC_ENABLE_PPROF_HTTP=false)")
	}
	return mux
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw io.Writer, worldID string, w *world.World, idx *indexdb.SQLiteIndex) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string, value any) {
		fmt.Fprintf(rw, "# HELP tilecraft_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE tilecraft_%s gauge\n", name)
		fmt.Fprintf(rw, "tilecraft_%s{world=%q} %v\n", name, worldID, value)
	}
	gauge("world_tick", "Current world tick.", tick)
	gauge("world_players", "Current number of players.", m.Players)
	gauge("world_entities", "Live entity count.", m.Entities)
	gauge("world_indexed", "Entities in the spatial index.", m.Indexed)
	gauge("world_circuits", "Live circuit count.", m.Circuits)
	gauge("world_wires", "Wire count across all circuits.", m.Wires)
	gauge("world_active_digs", "Dig attempts in progress.", m.ActiveDigs)
	gauge("world_step_ms", "Last logic pass duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	fmt.Fprintf(rw, "# HELP tilecraft_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "tilecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)

	fmt.Fprintf(rw, "# HELP tilecraft_world_kicked_total Clients kicked for falling behind.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_world_kicked_total counter\n")
	fmt.Fprintf(rw, "tilecraft_world_kicked_total{world=%q} %d\n", worldID, m.KickedTotal)
	fmt.Fprintf(rw, "# HELP tilecraft_world_inbox_overflow_total Commands refused because the inbox was full.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_world_inbox_overflow_total counter\n")
	fmt.Fprintf(rw, "tilecraft_world_inbox_overflow_total{world=%q} %d\n", worldID, m.InboxOverflow)

	p := w.Profiler()
	fmt.Fprintf(rw, "# HELP tilecraft_system_avg_ms Average system duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_system_avg_ms gauge\n")
	for _, role := range p.Roles() {
		for _, s := range p.Snapshot(role) {
			fmt.Fprintf(rw, "tilecraft_system_avg_ms{world=%q,role=%q,system=%q} %.3f\n", worldID, role, s.Name, float64(s.Avg.Microseconds())/1000)
		}
	}

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP tilecraft_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "tilecraft_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP tilecraft_index_dropped_total Rows dropped because the index writer fell behind.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_index_dropped_total counter\n")
	fmt.Fprintf(rw, "tilecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "tilecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "tilecraft_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "stats", s.DropStatsTotal)
	fmt.Fprintf(rw, "# HELP tilecraft_index_tx_fail_total Failed index transactions.\n")
	fmt.Fprintf(rw, "# TYPE tilecraft_index_tx_fail_total counter\n")
	fmt.Fprintf(rw, "tilecraft_index_tx_fail_total{world=%q} %d\n", worldID, s.TxFailTotal)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSONResponse(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
