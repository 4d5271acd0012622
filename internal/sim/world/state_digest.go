package world

import "motionsync.ai/internal/sim/world/io/digestcodec"

// stateDigest hashes every agent's trajectory sample. It covers exactly what
// a replica can reconstruct from the sync stream.
func (w *World) stateDigest(nowTick uint64) string {
	samples := make([]digestcodec.Sample, 0, len(w.order))
	for _, id := range w.order {
		st := w.agents[id]
		if st == nil || st.agent.Spline == nil {
			continue
		}
		samples = append(samples, digestcodec.CurveSample(id, st.agent.Spline))
	}
	return digestcodec.Trajectories(nowTick, samples)
}
