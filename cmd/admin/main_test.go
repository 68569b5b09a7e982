package main

import (
	"testing"

	persistlog "tilecraft.dev/internal/persistence/log"
	"tilecraft.dev/internal/sim/world"
)

func TestParseRect(t *testing.T) {
	min, max, err := parseRect("10,2:4,8")
	if err != nil {
		t.Fatalf("parseRect: %v", err)
	}
	if min != [2]int{4, 2} || max != [2]int{10, 8} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	for _, bad := range []string{"", "1,2", "1,2:3", "a,b:1,2"} {
		if _, _, err := parseRect(bad); err == nil {
			t.Fatalf("parseRect(%q) should fail", bad)
		}
	}
}

func TestReadAudit_Filters(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLogger(dir)
	for _, e := range []world.AuditEntry{
		{Tick: 1, Action: "DIG_BLOCK", Pos: [2]int{5, 5}},
		{Tick: 2, Action: "PLACE_DEVICE", Pos: [2]int{5, 6}},
		{Tick: 3, Action: "DIG_BLOCK", Pos: [2]int{50, 5}},
		{Tick: 9, Action: "DIG_BLOCK", Pos: [2]int{6, 6}},
	} {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	all, err := readAudit(dir, auditFilter{})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("all: %d", len(all))
	}

	got, err := readAudit(dir, auditFilter{
		Action: "DIG_BLOCK",
		To:     5,
		Rect:   true,
		Min:    [2]int{0, 0},
		Max:    [2]int{10, 10},
	})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(got) != 1 || got[0].Tick != 1 {
		t.Fatalf("filtered: %+v", got)
	}
}
