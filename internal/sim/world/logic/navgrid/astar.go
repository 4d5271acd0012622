package navgrid

import (
	"container/heap"
	"math"
)

type neighbor struct {
	col, row int
	cost     float64
	diagonal bool
}

// Fixed neighbour order keeps searches deterministic.
var neighborOffsets = [...]neighbor{
	{col: 0, row: -1, cost: 1},
	{col: 1, row: 0, cost: 1},
	{col: 0, row: 1, cost: 1},
	{col: -1, row: 0, cost: 1},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

type cell struct{ col, row int }

// canTraverseDiagonal forbids cutting corners past a blocked orthogonal cell.
func (g *Grid) canTraverseDiagonal(cur cell, d neighbor) bool {
	if !d.diagonal {
		return true
	}
	return g.isWalkable(cur.col+d.col, cur.row) && g.isWalkable(cur.col, cur.row+d.row)
}

func heuristic(a, b cell) float64 {
	dx := math.Abs(float64(a.col - b.col))
	dy := math.Abs(float64(a.row - b.row))
	if dx > dy {
		return dx + (math.Sqrt2-1)*dy
	}
	return dy + (math.Sqrt2-1)*dx
}

type node struct {
	at     cell
	g, f   float64
	seq    int
	index  int
	parent *node
}

type openSet []*node

func (q openSet) Len() int { return len(q) }

// Ties on f break by insertion order so equal-cost paths are stable.
func (q openSet) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q openSet) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *openSet) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

func (g *Grid) astar(start, goal cell) ([]cell, bool) {
	open := &openSet{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &node{at: start, f: heuristic(start, goal)})
	gScore := map[int]float64{g.index(start.col, start.row): 0}
	closed := make(map[int]struct{})

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		ci := g.index(cur.at.col, cur.at.row)
		if _, seen := closed[ci]; seen {
			continue
		}
		closed[ci] = struct{}{}
		if cur.at == goal {
			return reconstruct(cur), true
		}
		for _, d := range neighborOffsets {
			if !g.canTraverseDiagonal(cur.at, d) {
				continue
			}
			nc, nr := cur.at.col+d.col, cur.at.row+d.row
			if !g.isWalkable(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if _, seen := closed[idx]; seen {
				continue
			}
			tentative := cur.g + d.cost
			if prev, ok := gScore[idx]; ok && tentative >= prev {
				continue
			}
			gScore[idx] = tentative
			seq++
			next := cell{nc, nr}
			heap.Push(open, &node{at: next, g: tentative, f: tentative + heuristic(next, goal), seq: seq, parent: cur})
		}
	}
	return nil, false
}

func reconstruct(end *node) []cell {
	var path []cell
	for n := end; n != nil; n = n.parent {
		path = append(path, n.at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// closestWalkable breadth-first searches outward for an open cell.
func (g *Grid) closestWalkable(col, row int) (int, int, bool) {
	if !g.inBounds(col, row) {
		return 0, 0, false
	}
	visited := map[int]struct{}{g.index(col, row): {}}
	queue := []cell{{col, row}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.walkable[g.index(cur.col, cur.row)] {
			return cur.col, cur.row, true
		}
		for _, d := range neighborOffsets {
			nc, nr := cur.col+d.col, cur.row+d.row
			if !g.inBounds(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if _, seen := visited[idx]; seen {
				continue
			}
			visited[idx] = struct{}{}
			queue = append(queue, cell{nc, nr})
		}
	}
	return 0, 0, false
}
