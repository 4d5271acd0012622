package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	journal "motionsync.ai/internal/persistence/log"
	"motionsync.ai/internal/persistence/snapshot"
	"motionsync.ai/internal/sim/motion/replica"
	"motionsync.ai/internal/sim/scenario"
	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
)

const yard = `
world_id: yard
ticks: 60
grid: {width: 60, height: 40, cell_size: 1, clearance: 0.5}
obstacles:
  - {min: [25, 5], max: [27, 35]}
agents:
  - {id: wolf, pos: [5, 20, 0]}
  - {id: deer, pos: [40, 20, 0]}
  - {id: guard, pos: [10, 5, 0]}
script:
  - {at_tick: 0, kind: CHASE, agent: wolf, target: deer}
  - {at_tick: 0, kind: FLEE, agent: deer, target: wolf}
  - {at_tick: 0, kind: PATROL, agent: guard, points: [[10, 5, 0], [18, 5, 0], [18, 12, 0]], walk: true}
  - {at_tick: 30, kind: KNOCKBACK, agent: wolf, point: [4, 20, 0], speed_xy: 5, speed_z: 4}
`

// record runs the yard scenario into a journal under a fresh world dir and
// returns the dir and the scenario file path.
func record(t *testing.T, snapEvery uint64) (string, string) {
	t.Helper()
	dir := t.TempDir()
	scPath := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(scPath, []byte(yard), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	sc, err := scenario.Load(scPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tune := tuning.Defaults()
	w, err := sc.Build(tune, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	w.SetScript(sc.Commands())

	worldDir := filepath.Join(dir, "worlds", sc.WorldID)
	tl := journal.NewTickLogger(worldDir, sc.WorldID, tune.TickRateHz)
	rec := snapshot.NewRecorder(worldDir, sc.WorldID, tl.RunID(), tune.TickRateHz, snapEvery, nil)
	w.AddTickLogger(tl)
	w.AddTickLogger(rec)
	for i := 0; i < sc.Ticks; i++ {
		w.StepOnce(nil)
	}
	_ = rec.Close()
	_ = tl.Close()
	if rec.Mismatches() != 0 {
		t.Fatalf("recorder saw %d mismatches", rec.Mismatches())
	}
	return worldDir, scPath
}

func verify(t *testing.T, v *verifier, worldDir string) error {
	t.Helper()
	files, err := journal.JournalFiles(worldDir)
	if err != nil || len(files) == 0 {
		t.Fatalf("journal files=%v err=%v", files, err)
	}
	for _, path := range files {
		err := journal.ReadFile(path, v.run, v.tick)
		if err == errDone {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func TestVerifier_ReplicaAndResim(t *testing.T) {
	worldDir, scPath := record(t, 0)

	schemas, err := compileSchemas(filepath.Join("..", "..", "schemas"))
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	// The recording used Defaults; an empty tuning file loads as Defaults.
	tunePath := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(tunePath, nil, 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}
	sim, err := buildWorld(scPath, tunePath)
	if err != nil {
		t.Fatalf("buildWorld: %v", err)
	}

	v := &verifier{rep: replica.New(), sim: sim, schemas: schemas}
	if err := verify(t, v, worldDir); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.checked != 60 || v.messages == 0 {
		t.Fatalf("checked=%d messages=%d", v.checked, v.messages)
	}
}

func TestVerifier_FromSnapshot(t *testing.T) {
	worldDir, _ := record(t, 20)

	v := &verifier{rep: replica.New(), toTick: 50}
	if err := v.restore(worldDir); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if v.from != 40 {
		t.Fatalf("from=%d want 40", v.from)
	}
	if err := verify(t, v, worldDir); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.checked != 10 {
		t.Fatalf("checked=%d want 10", v.checked)
	}
}

func TestVerifier_DetectsTamperedDigest(t *testing.T) {
	worldDir, _ := record(t, 0)

	v := &verifier{rep: replica.New()}
	files, _ := journal.JournalFiles(worldDir)
	err := journal.ReadFile(files[0], v.run, func(e world.TickLogEntry) error {
		if e.Tick == 10 {
			e.Digest = "tampered"
		}
		return v.tick(e)
	})
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 10") {
		t.Fatalf("err=%v", err)
	}
}
