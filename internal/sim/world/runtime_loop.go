package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dt := w.tune.TickSeconds()
	var pending []Command

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case cmd := <-w.inbox:
			pending = append(pending, cmd)
		case <-ticker.C:
			w.step(pending, dt)
			pending = pending[:0]
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Submit queues a command for the next tick boundary.
func (w *World) Submit(ctx context.Context, cmd Command) error {
	select {
	case w.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepOnce runs a single tick synchronously. Use it only while Run is not
// active.
func (w *World) StepOnce(cmds []Command) (tick uint64, digest string) {
	entry := w.step(cmds, w.tune.TickSeconds())
	return entry.Tick, entry.Digest
}

// StepEntry is StepOnce returning the full tick record.
func (w *World) StepEntry(cmds []Command) TickLogEntry {
	return w.step(cmds, w.tune.TickSeconds())
}
