// Package grid holds the board geometry shared by the registry, the motion
// planner and the wire-level robot actuation.
//
// The logical grid is Size×Size cells. The outermost ring is the home ring
// where idle robots park, the next ring is the deadzone used as a routing
// corridor, and the 8×8 playable board sits inside it.
package grid

import (
	"fmt"
	"math"
)

const (
	Size = 12

	// BoardMin and BoardMax bound the playable squares on both axes.
	BoardMin = 2
	BoardMax = 9

	DeadzoneLow  = 1
	DeadzoneHigh = 10

	HomeLow  = 0
	HomeHigh = 11
)

// GridIndices is an integer cell (column I, row J). Always compared by value.
type GridIndices struct {
	I int `json:"i" yaml:"i"`
	J int `json:"j" yaml:"j"`
}

func (g GridIndices) String() string {
	return fmt.Sprintf("(%d,%d)", g.I, g.J)
}

// Add offsets the cell.
func (g GridIndices) Add(di, dj int) GridIndices {
	return GridIndices{I: g.I + di, J: g.J + dj}
}

// Center returns the continuous position of the cell centre.
func (g GridIndices) Center() Position {
	return Position{X: float64(g.I) + 0.5, Y: float64(g.J) + 0.5}
}

// InBounds reports whether the cell lies on the Size×Size grid.
func (g GridIndices) InBounds() bool {
	return g.I >= 0 && g.I < Size && g.J >= 0 && g.J < Size
}

// IsBoard reports whether the cell is a playable square.
func (g GridIndices) IsBoard() bool {
	return g.I >= BoardMin && g.I <= BoardMax && g.J >= BoardMin && g.J <= BoardMax
}

// IsHome reports whether the cell is on the outer home ring.
func (g GridIndices) IsHome() bool {
	if !g.InBounds() {
		return false
	}
	return g.I == HomeLow || g.I == HomeHigh || g.J == HomeLow || g.J == HomeHigh
}

// IsDeadzone reports whether the cell is on the deadzone ring.
func (g GridIndices) IsDeadzone() bool {
	if !g.InBounds() || g.IsHome() {
		return false
	}
	return g.I == DeadzoneLow || g.I == DeadzoneHigh || g.J == DeadzoneLow || g.J == DeadzoneHigh
}

// Square returns the algebraic name ("e4") of a board cell, or "" off-board.
func (g GridIndices) Square() string {
	if !g.IsBoard() {
		return ""
	}
	return fmt.Sprintf("%c%d", 'a'+rune(g.I-BoardMin), g.J-BoardMin+1)
}

// ParseSquare converts an algebraic square name to its grid cell.
func ParseSquare(sq string) (GridIndices, error) {
	if len(sq) != 2 {
		return GridIndices{}, fmt.Errorf("invalid square %q", sq)
	}
	file, rank := sq[0], sq[1]
	if file >= 'A' && file <= 'H' {
		file += 'a' - 'A'
	}
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return GridIndices{}, fmt.Errorf("invalid square %q", sq)
	}
	return GridIndices{I: int(file-'a') + BoardMin, J: int(rank-'1') + BoardMin}, nil
}

// FromPosition floors a continuous position into the cell containing it.
func FromPosition(p Position) GridIndices {
	return GridIndices{I: int(math.Floor(p.X)), J: int(math.Floor(p.Y))}
}

// ClampToDeadzone returns the deadzone cell adjacent to a home cell
// (or the nearest deadzone-ring cell for any other cell outside the board).
func ClampToDeadzone(g GridIndices) GridIndices {
	clamp := func(v int) int {
		if v < DeadzoneLow {
			return DeadzoneLow
		}
		if v > DeadzoneHigh {
			return DeadzoneHigh
		}
		return v
	}
	return GridIndices{I: clamp(g.I), J: clamp(g.J)}
}

// Abs returns |v|.
func Abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0 or 1.
func Sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
