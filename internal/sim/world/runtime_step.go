package world

import (
	"sort"
	"time"

	"motionsync.ai/internal/protocol"
)

// step runs one tick. Order matters for replicas: commands, transports,
// start-of-tick views, then each agent in id order advances its curve and
// runs its stack.
func (w *World) step(cmds []Command, dt float64) TickLogEntry {
	start := time.Now()
	nowTick := w.tick.Load()
	w.sync = nil
	if scripted := w.script[nowTick]; len(scripted) > 0 {
		cmds = append(append([]Command(nil), scripted...), cmds...)
		delete(w.script, nowTick)
	}

	var leaves []string
	recorded := make([]Command, 0, len(cmds))
	for _, cmd := range cmds {
		recorded = append(recorded, cmd)
		if err := w.applyCommand(cmd, nowTick, &leaves); err != nil {
			w.commandRejected(cmd, nowTick, err)
		}
	}

	trIDs := make([]string, 0, len(w.transports))
	for id := range w.transports {
		trIDs = append(trIDs, id)
	}
	sort.Strings(trIDs)
	for _, id := range trIDs {
		w.transports[id].advance(dt)
	}

	w.snapshotViews()

	var events []protocol.Event
	for _, id := range w.order {
		st := w.agents[id]
		if st == nil {
			continue
		}
		w.advanceCurve(st.agent, dt)
		st.stack.Update(w.env, st.agent, dt)
		events = append(events, st.agent.TakeEvents()...)
	}

	entry := TickLogEntry{
		Tick:     nowTick,
		DT:       dt,
		Commands: recorded,
		Sync:     w.sync,
		Events:   events,
		Leaves:   leaves,
		Digest:   w.stateDigest(nowTick),
	}
	for _, l := range w.tickLoggers {
		if err := l.WriteTick(entry); err != nil {
			w.logger.Printf("tick %d: tick logger: %v", nowTick, err)
		}
	}
	w.tick.Add(1)
	w.metricStepNanos.Store(int64(time.Since(start)))
	return entry
}
