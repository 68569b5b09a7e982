package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tilecraft.dev/internal/persistence/indexdb"
)

// dbCmd queries the sqlite read model written by the server.
//
//	admin db -world w audits -x 3 -y 4
//	admin db -world w circuit -id 7
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	x := fs.Int("x", 0, "tile x (audits)")
	y := fs.Int("y", 0, "tile y (audits)")
	circuitID := fs.Uint("id", 0, "circuit id (circuit)")
	_ = fs.Parse(args)

	q := "audits"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out any
	switch q {
	case "audits":
		out, err = idx.AuditsAt(ctx, *x, *y, *limit)
	case "circuit":
		if *circuitID == 0 {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		out, err = idx.CircuitHistory(ctx, uint32(*circuitID), *limit)
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want audits|circuit)\n", q)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
