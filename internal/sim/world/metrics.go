package world

import "time"

// WorldMetrics is safe to read from any goroutine.
type WorldMetrics struct {
	Tick       uint64  `json:"tick"`
	Agents     int     `json:"agents"`
	Transports int     `json:"transports"`
	InboxDepth int     `json:"inbox_depth"`
	StepMS     float64 `json:"step_ms"`
	Launches   uint64  `json:"launches"`
	Stops      uint64  `json:"stops"`
}

func (w *World) Metrics() WorldMetrics {
	return WorldMetrics{
		Tick:       w.tick.Load(),
		Agents:     int(w.metricAgents.Load()),
		Transports: int(w.metricTransports.Load()),
		InboxDepth: len(w.inbox),
		StepMS:     float64(w.metricStepNanos.Load()) / float64(time.Millisecond),
		Launches:   w.metricLaunches.Load(),
		Stops:      w.metricStops.Load(),
	}
}

// SetScript schedules commands at fixed ticks. They run ahead of anything
// submitted for the same tick and are journaled like any other command.
// Call before Run.
func (w *World) SetScript(script map[uint64][]Command) {
	w.script = make(map[uint64][]Command, len(script))
	for tick, cmds := range script {
		w.script[tick] = append([]Command(nil), cmds...)
	}
}
