package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"motionsync.ai/internal/sim/world"
)

// Journal files sort by name in write order.
func JournalFiles(worldDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(worldDir, "events", "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile streams one journal file. onRun sees each header line, onTick each
// tick entry, in file order. Either callback may be nil.
func ReadFile(path string, onRun func(RunHeader) error, onTick func(world.TickLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var jl struct {
			Run *RunHeader `json:"run"`
			world.TickLogEntry
		}
		if err := json.Unmarshal(sc.Bytes(), &jl); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if jl.Run != nil {
			if onRun != nil {
				if err := onRun(*jl.Run); err != nil {
					return err
				}
			}
			continue
		}
		if onTick != nil {
			if err := onTick(jl.TickLogEntry); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}
