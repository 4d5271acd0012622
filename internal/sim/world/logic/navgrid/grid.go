// Package navgrid is the world's pathfinding and collision collaborator: a
// walkability grid over axis-aligned blocking boxes, searched with A*.
package navgrid

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Box is a blocking obstacle footprint.
type Box struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (b Box) contains(x, y, pad float64) bool {
	return x >= b.MinX-pad && x <= b.MaxX+pad && y >= b.MinY-pad && y <= b.MaxY+pad
}

type Grid struct {
	cols, rows int
	cellSize   float64
	width      float64
	height     float64
	ground     float64
	clearance  float64
	walkable   []bool
	obstacles  []Box
}

type Config struct {
	Width, Height float64
	CellSize      float64
	// Ground is the floor height returned by GroundHeight.
	Ground float64
	// Clearance keeps paths and collision points this far from obstacles.
	Clearance float64
	Obstacles []Box
}

func New(cfg Config) *Grid {
	cell := cfg.CellSize
	if cell <= 0 {
		cell = 1
	}
	cols := int(math.Ceil(cfg.Width / cell))
	rows := int(math.Ceil(cfg.Height / cell))
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	g := &Grid{
		cols:      cols,
		rows:      rows,
		cellSize:  cell,
		width:     cfg.Width,
		height:    cfg.Height,
		ground:    cfg.Ground,
		clearance: cfg.Clearance,
		walkable:  make([]bool, cols*rows),
		obstacles: append([]Box(nil), cfg.Obstacles...),
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			c := g.center(col, row)
			g.walkable[row*cols+col] = g.open(c.X(), c.Y())
		}
	}
	return g
}

func (g *Grid) CellSize() float64 { return g.cellSize }

// open reports whether a point is inside the world and clear of every
// obstacle by at least the clearance.
func (g *Grid) open(x, y float64) bool {
	if x < 0 || y < 0 || x > g.width || y > g.height {
		return false
	}
	for _, b := range g.obstacles {
		if b.contains(x, y, g.clearance) {
			return false
		}
	}
	return true
}

func (g *Grid) inBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.cols && row < g.rows
}

func (g *Grid) index(col, row int) int { return row*g.cols + col }

func (g *Grid) isWalkable(col, row int) bool {
	return g.inBounds(col, row) && g.walkable[g.index(col, row)]
}

func (g *Grid) center(col, row int) mgl64.Vec3 {
	return mgl64.Vec3{(float64(col) + 0.5) * g.cellSize, (float64(row) + 0.5) * g.cellSize, g.ground}
}

func (g *Grid) locate(x, y float64) (int, int, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > g.width || y > g.height {
		return 0, 0, false
	}
	col := min(int(x/g.cellSize), g.cols-1)
	row := min(int(y/g.cellSize), g.rows-1)
	return col, row, true
}

// GroundHeight is the floor under (x, y). The grid is flat.
func (g *Grid) GroundHeight(x, y float64) float64 { return g.ground }

// Walkable reports whether an agent may stand at p.
func (g *Grid) Walkable(p mgl64.Vec3) bool { return g.open(p.X(), p.Y()) }

// FirstCollision marches from origin along a planar heading and returns the
// last open point before an obstacle or the world edge, at most dist away.
func (g *Grid) FirstCollision(origin mgl64.Vec3, dist, angle float64) mgl64.Vec3 {
	if !(dist > 0) {
		return origin
	}
	step := g.cellSize / 4
	dx, dy := math.Cos(angle), math.Sin(angle)
	last := origin
	for d := step; ; d += step {
		if d > dist {
			d = dist
		}
		x, y := origin.X()+dx*d, origin.Y()+dy*d
		if !g.open(x, y) {
			return last
		}
		last = mgl64.Vec3{x, y, origin.Z()}
		if d >= dist {
			return last
		}
	}
}

// LineOfSight samples the straight segment a→b at quarter-cell steps.
func (g *Grid) LineOfSight(a, b mgl64.Vec3) bool {
	d := math.Hypot(b.X()-a.X(), b.Y()-a.Y())
	steps := int(math.Ceil(d / (g.cellSize / 4)))
	for i := 0; i <= steps; i++ {
		u := 1.0
		if steps > 0 {
			u = float64(i) / float64(steps)
		}
		if !g.open(a.X()+(b.X()-a.X())*u, a.Y()+(b.Y()-a.Y())*u) {
			return false
		}
	}
	return true
}
