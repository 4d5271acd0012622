package mathx

import (
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

const TwoPi = 2 * math.Pi

// NormalizeAngle maps a into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	return a
}

// AngleTo is the planar (x/y) heading from one point to another.
func AngleTo(from, to mgl64.Vec3) float64 {
	return NormalizeAngle(math.Atan2(to.Y()-from.Y(), to.X()-from.X()))
}

// Dist2D ignores the vertical axis.
func Dist2D(a, b mgl64.Vec3) float64 {
	return math.Hypot(a.X()-b.X(), a.Y()-b.Y())
}

// Offset moves p by dist along a planar heading.
func Offset(p mgl64.Vec3, dist, angle float64) mgl64.Vec3 {
	return mgl64.Vec3{p.X() + dist*math.Cos(angle), p.Y() + dist*math.Sin(angle), p.Z()}
}

func Finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// SeedFor derives a stable sub-seed for a named stream (an agent id, a
// subsystem) from the simulation seed.
func SeedFor(seed int64, stream string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(stream))
	return int64(mix64(uint64(seed) ^ h.Sum64()))
}

func NewRand(seed int64, stream string) *rand.Rand {
	return rand.New(rand.NewSource(SeedFor(seed, stream)))
}

// RandRange draws uniformly from [lo, hi].
func RandRange(r *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}
