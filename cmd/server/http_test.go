package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"tilecraft.dev/internal/persistence/indexdb"
	"tilecraft.dev/internal/sim/tuning"
	"tilecraft.dev/internal/sim/world"
)

func newTestMux(t *testing.T, admin bool) (*world.World, *http.ServeMux) {
	t.Helper()
	w, err := world.New(world.Config{ID: "w_test", Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	w.StepOnce()
	w.StepOnce()
	return w, newMux(w, idx, muxOptions{WorldID: "w_test", EnableAdmin: admin})
}

func serve(mux *http.ServeMux, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMux_HealthAndMetrics(t *testing.T) {
	_, mux := newTestMux(t, false)

	if rec := serve(mux, "/healthz", ""); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec := serve(mux, "/metrics", "")
	if rec.Code != 200 {
		t.Fatalf("metrics: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`tilecraft_world_tick{world="w_test"} 2`,
		`tilecraft_world_queue_depth{world="w_test",queue="inbox"} 0`,
		`# TYPE tilecraft_world_kicked_total counter`,
		`tilecraft_index_queue_depth{world="w_test"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	if rec := serve(mux, "/admin/v1/state", "127.0.0.1:4000"); rec.Code != http.StatusNotFound {
		t.Fatalf("admin should be disabled, got %d", rec.Code)
	}
}

func TestMux_AdminIsLoopbackOnly(t *testing.T) {
	_, mux := newTestMux(t, true)

	if rec := serve(mux, "/admin/v1/state", "203.0.113.9:4000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin: %d", rec.Code)
	}

	rec := serve(mux, "/admin/v1/state", "127.0.0.1:4000")
	if rec.Code != 200 {
		t.Fatalf("state: %d %s", rec.Code, rec.Body.String())
	}
	var state struct {
		WorldID string `json:"world_id"`
		Tick    uint64 `json:"tick"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.WorldID != "w_test" || state.Tick != 2 {
		t.Fatalf("state: %+v", state)
	}

	rec = serve(mux, "/admin/v1/systems", "[::1]:4000")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"server"`) {
		t.Fatalf("systems: %d %s", rec.Code, rec.Body.String())
	}

	if rec := serve(mux, "/admin/v1/audits?x=1", "127.0.0.1:4000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("audits without y: %d", rec.Code)
	}
	rec = serve(mux, "/admin/v1/audits?x=1&y=2", "127.0.0.1:4000")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"audits":null`) {
		t.Fatalf("audits: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(mux, "/admin/v1/circuits?id=x", "127.0.0.1:4000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("circuits bad id: %d", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80":  true,
		"[::1]:80":      true,
		"10.0.0.1:80":   false,
		"not-an-ip":     false,
		"127.0.0.1":     true,
		"192.0.2.1:123": false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TC_TEST_FLAG", "true")
	if !envBool("TC_TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("TC_TEST_FLAG", "nope")
	if envBool("TC_TEST_FLAG", false) {
		t.Fatalf("unparseable value should fall back to default")
	}
}
