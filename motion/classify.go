// Package motion compiles abstract chess moves into command trees that
// physically move the robots without collisions.
package motion

import (
	"math"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// MoveType is the shape of a grid move.
type MoveType int

const (
	Horizontal MoveType = iota
	Vertical
	Diagonal
	Knight
)

func (t MoveType) String() string {
	switch t {
	case Horizontal:
		return "HORIZONTAL"
	case Vertical:
		return "VERTICAL"
	case Diagonal:
		return "DIAGONAL"
	case Knight:
		return "KNIGHT"
	}
	return "UNKNOWN"
}

// GridMove is a from/to pair of cells.
type GridMove struct {
	From grid.GridIndices `json:"from"`
	To   grid.GridIndices `json:"to"`
}

// Classify returns the shape of a move. Anything that is not straight or
// diagonal is planned like a knight hop.
func Classify(from, to grid.GridIndices) MoveType {
	di, dj := to.I-from.I, to.J-from.J
	switch {
	case dj == 0:
		return Horizontal
	case di == 0:
		return Vertical
	case grid.Abs(di) == grid.Abs(dj):
		return Diagonal
	}
	return Knight
}

// Occupancy maps cells to robot ids.
type Occupancy map[grid.GridIndices]string

// DetectCollisions lists the robots that stand in the way of gm, excluding
// the mover and the destination occupant. Ids are unique, in scan order.
func DetectCollisions(occ Occupancy, gm GridMove, t MoveType) []string {
	mover, target := occ[gm.From], occ[gm.To]
	seen := map[string]bool{}
	var out []string
	add := func(c grid.GridIndices) int {
		id, ok := occ[c]
		if !ok || id == mover || id == target || seen[id] {
			return 0
		}
		seen[id] = true
		out = append(out, id)
		return 1
	}

	from, to := gm.From, gm.To
	si, sj := grid.Sign(to.I-from.I), grid.Sign(to.J-from.J)

	switch t {
	case Horizontal, Vertical:
		found := 0
		for c := from.Add(si, sj); c != to; c = c.Add(si, sj) {
			found += add(c)
		}
		if found > 0 {
			n := laneOffset(from, to)
			for c := from.Add(n.I, n.J); ; c = c.Add(si, sj) {
				add(c)
				if c == to.Add(n.I, n.J) {
					break
				}
			}
		}
	case Diagonal:
		for c := from; c != to; c = c.Add(si, sj) {
			add(grid.GridIndices{I: c.I + si, J: c.J})
			add(grid.GridIndices{I: c.I, J: c.J + sj})
			if next := c.Add(si, sj); next != to {
				add(next)
			}
		}
	case Knight:
		for _, c := range knightCells(from, to) {
			add(c)
		}
	}
	return out
}

// laneOffset is the unit cell offset to the lane beside a straight path: the
// left of travel, or the right when the left is off the grid.
func laneOffset(from, to grid.GridIndices) grid.GridIndices {
	si, sj := grid.Sign(to.I-from.I), grid.Sign(to.J-from.J)
	if si == 0 && sj == 0 {
		si = 1
	}
	n := grid.GridIndices{I: -sj, J: si}
	if !from.Add(n.I, n.J).InBounds() || !to.Add(n.I, n.J).InBounds() {
		n = grid.GridIndices{I: sj, J: -si}
	}
	return n
}

// knightCells returns the cells a hop brushes past. For a 2x1 hop these are
// the two cells beside the long leg; other shapes use every cell the
// centre-to-centre segment crosses.
func knightCells(from, to grid.GridIndices) []grid.GridIndices {
	di, dj := to.I-from.I, to.J-from.J
	switch {
	case grid.Abs(di) == 2 && grid.Abs(dj) == 1:
		mid := from.I + di/2
		return []grid.GridIndices{{I: mid, J: from.J}, {I: mid, J: to.J}}
	case grid.Abs(dj) == 2 && grid.Abs(di) == 1:
		mid := from.J + dj/2
		return []grid.GridIndices{{I: from.I, J: mid}, {I: to.I, J: mid}}
	}
	a, b := from.Center(), to.Center()
	steps := int(math.Ceil(a.Distance(b) * 8))
	var out []grid.GridIndices
	seen := map[grid.GridIndices]bool{from: true, to: true}
	for k := 1; k < steps; k++ {
		p := a.Add(b.Sub(a).Scale(float64(k) / float64(steps)))
		c := grid.FromPosition(p)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
