package digestcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"motionsync.ai/internal/sim/motion/curve"
)

// Sample is one agent's trajectory state at the end of a tick: the curve id
// and the curve-frame position at the curve's elapsed time.
type Sample struct {
	AgentID  string
	SplineID uint32
	Elapsed  float64
	Pos      [3]float64
	Halted   bool
}

// Trajectories digests samples in agent id order. The simulation and every
// faithful replica of its sync stream produce the same value.
func Trajectories(tick uint64, samples []Sample) string {
	sorted := append([]Sample(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AgentID < sorted[j].AgentID })

	h := sha256.New()
	var tmp [8]byte
	WriteU64(h, &tmp, tick)
	WriteU64(h, &tmp, uint64(len(sorted)))
	for _, s := range sorted {
		WriteString(h, &tmp, s.AgentID)
		WriteU64(h, &tmp, uint64(s.SplineID))
		WriteF64(h, &tmp, s.Elapsed)
		for _, c := range s.Pos {
			WriteF64(h, &tmp, c)
		}
		h.Write([]byte{BoolByte(s.Halted)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CurveSample samples c the way Trajectories expects.
func CurveSample(agentID string, c *curve.Curve) Sample {
	at := c.Elapsed()
	return Sample{
		AgentID:  agentID,
		SplineID: c.ID(),
		Elapsed:  at,
		Pos:      [3]float64(c.EvaluatePosition(at)),
		Halted:   c.Halted(),
	}
}
