package navgrid

import (
	"github.com/go-gl/mathgl/mgl64"

	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

// ComputePath returns waypoints from `from` to `to`, excluding the start and
// ending exactly at `to`. Flying agents go straight. A path longer than
// maxLength is cut at the cap and reported Incomplete.
func (g *Grid) ComputePath(a *modelpkg.Agent, from, to mgl64.Vec3, maxLength float64) ([]mgl64.Vec3, modelpkg.PathQuality) {
	if a != nil && a.Caps.CanFly && a.Flags.Has(modelpkg.FlagFlying) {
		return []mgl64.Vec3{to}, modelpkg.PathNormal
	}
	if !g.open(to.X(), to.Y()) {
		return nil, modelpkg.PathNoPath
	}
	if g.LineOfSight(from, to) {
		return capLength(from, []mgl64.Vec3{to}, maxLength)
	}

	sc, sr, ok := g.locate(from.X(), from.Y())
	if !ok {
		return nil, modelpkg.PathNoPath
	}
	if !g.isWalkable(sc, sr) {
		if sc, sr, ok = g.closestWalkable(sc, sr); !ok {
			return nil, modelpkg.PathNoPath
		}
	}
	gc, gr, ok := g.locate(to.X(), to.Y())
	if !ok || !g.isWalkable(gc, gr) {
		return nil, modelpkg.PathNoPath
	}
	cells, ok := g.astar(cell{sc, sr}, cell{gc, gr})
	if !ok {
		return nil, modelpkg.PathNoPath
	}

	pts := make([]mgl64.Vec3, 0, len(cells))
	for _, c := range cells[1:] {
		pts = append(pts, g.center(c.col, c.row))
	}
	if len(pts) == 0 {
		pts = append(pts, to)
	} else {
		pts[len(pts)-1] = to
	}
	return capLength(from, g.smooth(from, pts), maxLength)
}

// smooth drops waypoints that can be skipped in a straight line.
func (g *Grid) smooth(from mgl64.Vec3, pts []mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, len(pts))
	anchor := from
	for i := 0; i < len(pts); {
		j := len(pts) - 1
		for j > i && !g.LineOfSight(anchor, pts[j]) {
			j--
		}
		out = append(out, pts[j])
		anchor = pts[j]
		i = j + 1
	}
	return out
}

func capLength(from mgl64.Vec3, pts []mgl64.Vec3, maxLength float64) ([]mgl64.Vec3, modelpkg.PathQuality) {
	if maxLength <= 0 {
		return pts, modelpkg.PathNormal
	}
	var total float64
	prev := from
	for i, p := range pts {
		seg := p.Sub(prev).Len()
		if total+seg > maxLength {
			cut := prev.Add(p.Sub(prev).Mul((maxLength - total) / seg))
			return append(pts[:i:i], cut), modelpkg.PathIncomplete
		}
		total += seg
		prev = p
	}
	return pts, modelpkg.PathNormal
}
