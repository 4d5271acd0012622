// Package snapshot stores replica checkpoints: the set of live curves an
// observer holds after a given tick, so a journal can be verified or served
// from the middle of a run.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"motionsync.ai/internal/sim/motion/replica"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate int `json:"tick_rate_hz"`

	Tracks []replica.TrackState `json:"tracks"`
	// Digest is the journal digest of Header.Tick; a restored replica
	// reproduces it.
	Digest string `json:"digest"`
}

// Path is the file a snapshot of tick is written to.
func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for tools that only peek; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// List returns the ticks that have a snapshot in worldDir, ascending.
func List(worldDir string) ([]uint64, error) {
	matches, err := filepath.Glob(filepath.Join(worldDir, "snapshots", "*.snap.zst"))
	if err != nil {
		return nil, err
	}
	ticks := make([]uint64, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".snap.zst")
		t, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks, nil
}

// Latest picks the newest snapshot at or before maxTick (0 = no bound).
func Latest(worldDir string, maxTick uint64) (uint64, bool, error) {
	ticks, err := List(worldDir)
	if err != nil {
		return 0, false, err
	}
	for i := len(ticks) - 1; i >= 0; i-- {
		if maxTick == 0 || ticks[i] <= maxTick {
			return ticks[i], true, nil
		}
	}
	return 0, false, nil
}
