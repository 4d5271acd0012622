package snapshot

import (
	"log"
	"sync"
	"sync/atomic"

	"motionsync.ai/internal/sim/motion/replica"
	"motionsync.ai/internal/sim/world"
)

// Recorder follows the tick stream with its own replica, the way a remote
// observer would, and checkpoints that replica every N ticks. Every tick's
// replica digest is checked against the world's; divergence is counted and
// logged.
type Recorder struct {
	worldDir string
	worldID  string
	runID    string
	hz       int
	every    uint64
	logger   *log.Logger

	rep *replica.Replica

	queue chan SnapshotV1
	wg    sync.WaitGroup

	written    atomic.Uint64
	dropped    atomic.Uint64
	mismatches atomic.Uint64
}

func NewRecorder(worldDir, worldID, runID string, tickRateHz int, everyTicks uint64, logger *log.Logger) *Recorder {
	r := &Recorder{
		worldDir: worldDir,
		worldID:  worldID,
		runID:    runID,
		hz:       tickRateHz,
		every:    everyTicks,
		logger:   logger,
		rep:      replica.New(),
		queue:    make(chan SnapshotV1, 8),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) WriteTick(entry world.TickLogEntry) error {
	got, err := r.rep.ReplayTick(entry.Tick, entry.DT, entry.Sync, entry.Leaves)
	if err != nil {
		return err
	}
	if got != entry.Digest {
		if r.mismatches.Add(1) == 1 && r.logger != nil {
			r.logger.Printf("snapshot: replica diverged at tick %d: got=%s want=%s", entry.Tick, got, entry.Digest)
		}
	}
	if r.every == 0 || entry.Tick%r.every != 0 {
		return nil
	}
	snap := SnapshotV1{
		Header:   Header{Version: Version, WorldID: r.worldID, RunID: r.runID, Tick: entry.Tick},
		TickRate: r.hz,
		Tracks:   r.rep.Checkpoint(),
		Digest:   entry.Digest,
	}
	select {
	case r.queue <- snap:
	default:
		r.dropped.Add(1)
	}
	return nil
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for snap := range r.queue {
		path := Path(r.worldDir, snap.Header.Tick)
		if err := WriteSnapshot(path, snap); err != nil {
			if r.logger != nil {
				r.logger.Printf("snapshot: write %s: %v", path, err)
			}
			continue
		}
		r.written.Add(1)
	}
}

// Close flushes pending snapshots. WriteTick must not be called afterwards.
func (r *Recorder) Close() error {
	close(r.queue)
	r.wg.Wait()
	return nil
}

func (r *Recorder) Written() uint64    { return r.written.Load() }
func (r *Recorder) Dropped() uint64    { return r.dropped.Load() }
func (r *Recorder) Mismatches() uint64 { return r.mismatches.Load() }
