package log

import (
	"path/filepath"
	"testing"
	"time"

	"tilecraft.dev/internal/sim/world"
)

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for _, tick := range []uint64{3, 7, 9} {
		entry := world.TickLogEntry{
			Tick:  tick,
			Joins: []world.RecordedJoin{{PlayerID: tick, Name: "p"}},
			Digs:  []world.RecordedDig{{X: 1, Y: 2, PlayerID: tick, Outcome: "completed"}},
		}
		if err := l.WriteTick(entry); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []world.TickLogEntry
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(got) != 3 || got[0].Tick != 3 || got[2].Tick != 9 {
		t.Fatalf("ticks: %+v", got)
	}
	if got[1].Digs[0].Outcome != "completed" || got[1].Joins[0].PlayerID != 7 {
		t.Fatalf("entry: %+v", got[1])
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(world.AuditEntry{Tick: 1, Action: "DIG_BLOCK"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(world.AuditEntry{Tick: 2, Action: "PLACE_DEVICE"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "audit")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		filepath.Join(dir, "audit-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "audit-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files: %v", files)
	}
	lines := 0
	for _, f := range files {
		if err := ReadJSONLZstd(f, func([]byte) error { lines++; return nil }); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if lines != 2 {
		t.Fatalf("lines: %d", lines)
	}
}
