package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"motionsync.ai/internal/persistence/indexdb"
	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordRun(runID, worldID string, tickRateHz int)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("index backend disabled")
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported MS_INDEX_BACKEND: %s", backend)
	}
}

// fanoutTickLogger hands each tick to every sink. A failing sink does not
// starve the others.
type fanoutTickLogger []world.TickLogger

func (f fanoutTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range f {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
