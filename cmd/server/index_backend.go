package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tilecraft.dev/internal/persistence/indexdb"
)

// openRuntimeIndex opens the optional read model behind the admin queries.
// A nil index is valid and drops every write.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported TC_INDEX_BACKEND: %s", backend)
	}
}
