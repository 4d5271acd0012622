package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	journal "motionsync.ai/internal/persistence/log"
	"motionsync.ai/internal/persistence/snapshot"
	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/replica"
	"motionsync.ai/internal/sim/scenario"
	"motionsync.ai/internal/sim/tuning"
	"motionsync.ai/internal/sim/world"
)

func main() {
	var (
		worldDir     = flag.String("world_dir", "./data/worlds/world", "world dir containing events/events-*.jsonl.zst")
		schemaDir    = flag.String("schemas", "", "validate every sync message against the JSON schemas in this dir (optional)")
		scenarioPath = flag.String("scenario", "", "re-simulate from this scenario and compare digests (optional)")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "tuning file used with -scenario")
		toTick       = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		fromSnap     = flag.Bool("from_snapshot", false, "start from the newest replica snapshot at or before -to_tick")
	)
	flag.Parse()

	files, err := journal.JournalFiles(*worldDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *worldDir)
		os.Exit(1)
	}

	v := &verifier{rep: replica.New(), toTick: *toTick}
	if *schemaDir != "" {
		if v.schemas, err = compileSchemas(*schemaDir); err != nil {
			fmt.Fprintln(os.Stderr, "schemas:", err)
			os.Exit(1)
		}
	}
	if *fromSnap {
		if *scenarioPath != "" {
			fmt.Fprintln(os.Stderr, "-from_snapshot cannot be combined with -scenario: snapshots hold replica state only")
			os.Exit(1)
		}
		if err := v.restore(*worldDir); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
	}
	if *scenarioPath != "" {
		if v.sim, err = buildWorld(*scenarioPath, *tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "scenario:", err)
			os.Exit(1)
		}
	}

	for _, path := range files {
		err := journal.ReadFile(path, v.run, v.tick)
		if err == errDone {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: runs=%d from=%d checked=%d ticks sync=%d resim=%v\n", len(v.runs), v.from, v.checked, v.messages, v.sim != nil)
}

var errDone = fmt.Errorf("done")

type verifier struct {
	rep     *replica.Replica
	sim     *world.World
	schemas map[string]*jsonschema.Schema
	toTick  uint64

	// Ticks up to from are covered by a restored snapshot of run snapRun.
	from     uint64
	snapRun  string
	restored bool

	runs     map[string]bool
	next     uint64
	started  bool
	checked  uint64
	messages uint64
}

func (v *verifier) run(h journal.RunHeader) error {
	if v.runs == nil {
		v.runs = map[string]bool{}
	}
	v.runs[h.RunID] = true
	if len(v.runs) > 1 {
		return fmt.Errorf("journal mixes runs (%d); point -world_dir at a single run", len(v.runs))
	}
	if v.restored && h.RunID != v.snapRun {
		return fmt.Errorf("snapshot belongs to run %s, journal to %s", v.snapRun, h.RunID)
	}
	return nil
}

func (v *verifier) restore(worldDir string) error {
	tick, ok, err := snapshot.Latest(worldDir, v.toTick)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot in %s", worldDir)
	}
	snap, err := snapshot.ReadSnapshot(snapshot.Path(worldDir, tick))
	if err != nil {
		return err
	}
	if err := v.rep.Restore(snap.Tracks); err != nil {
		return err
	}
	if got := v.rep.Digest(tick); got != snap.Digest {
		return fmt.Errorf("snapshot %d digest mismatch: got=%s want=%s", tick, got, snap.Digest)
	}
	v.from = tick
	v.snapRun = snap.Header.RunID
	v.restored = true
	v.started = true
	v.next = tick + 1
	return nil
}

func (v *verifier) tick(e world.TickLogEntry) error {
	if v.toTick != 0 && e.Tick > v.toTick {
		return errDone
	}
	if v.restored && e.Tick <= v.from {
		return nil
	}
	if v.started && e.Tick != v.next {
		return fmt.Errorf("tick gap: want=%d got=%d", v.next, e.Tick)
	}
	v.started = true
	v.next = e.Tick + 1

	for i, raw := range e.Sync {
		v.messages++
		if err := v.validate(raw); err != nil {
			return fmt.Errorf("tick %d sync[%d]: %w", e.Tick, i, err)
		}
	}
	got, err := v.rep.ReplayTick(e.Tick, e.DT, e.Sync, e.Leaves)
	if err != nil {
		return err
	}
	if got != e.Digest {
		return fmt.Errorf("replica digest mismatch at tick %d: got=%s want=%s", e.Tick, got, e.Digest)
	}
	if v.sim != nil {
		tick, simDigest := v.sim.StepOnce(e.Commands)
		if tick != e.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, e.Tick)
		}
		if simDigest != e.Digest {
			return fmt.Errorf("resim digest mismatch at tick %d: got=%s want=%s", tick, simDigest, e.Digest)
		}
	}
	v.checked++
	return nil
}

func (v *verifier) validate(raw json.RawMessage) error {
	if v.schemas == nil {
		return nil
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return err
	}
	s := v.schemas[base.Type]
	if s == nil {
		return fmt.Errorf("no schema for %q", base.Type)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

func compileSchemas(dir string) (map[string]*jsonschema.Schema, error) {
	out := map[string]*jsonschema.Schema{}
	for typ, name := range map[string]string{
		protocol.TypeMoveSpline: "move_spline.schema.json",
		protocol.TypeMoveStop:   "move_stop.schema.json",
		protocol.TypeAgentLeave: "agent_leave.schema.json",
	} {
		s, err := jsonschema.Compile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out[typ] = s
	}
	return out, nil
}

func buildWorld(scenarioPath, tuningPath string) (*world.World, error) {
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return nil, err
	}
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		return nil, err
	}
	return sc.Build(tune, nil)
}
