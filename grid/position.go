package grid

import (
	"fmt"
	"math"
)

// Position is a continuous point in board units; cell (i,j) spans [i,i+1)×[j,j+1).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%.3f,%.3f)", p.X, p.Y)
}

func (p Position) Add(o Position) Position { return Position{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Position) Sub(o Position) Position { return Position{X: p.X - o.X, Y: p.Y - o.Y} }
func (p Position) Scale(k float64) Position {
	return Position{X: p.X * k, Y: p.Y * k}
}
func (p Position) Dot(o Position) float64 { return p.X*o.X + p.Y*o.Y }
func (p Position) Length() float64        { return math.Hypot(p.X, p.Y) }

// Distance is the euclidean distance between two points.
func (p Position) Distance(o Position) float64 { return o.Sub(p).Length() }

// Angle is the heading of the vector p, normalized to [0, 2π).
func (p Position) Angle() float64 { return NormalizeHeading(math.Atan2(p.Y, p.X)) }

// Unit returns p scaled to length 1, or the zero vector.
func (p Position) Unit() Position {
	l := p.Length()
	if l == 0 {
		return Position{}
	}
	return p.Scale(1 / l)
}

// Normal returns the left-hand perpendicular (-y, x).
func (p Position) Normal() Position { return Position{X: -p.Y, Y: p.X} }

// ApproxEqual compares with an absolute tolerance.
func (p Position) ApproxEqual(o Position, eps float64) bool {
	return math.Abs(p.X-o.X) <= eps && math.Abs(p.Y-o.Y) <= eps
}

// HeadingVector is the unit vector a robot with heading h drives along.
func HeadingVector(h float64) Position {
	return Position{X: math.Cos(h), Y: math.Sin(h)}
}

// NormalizeHeading maps any angle into [0, 2π).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 2*math.Pi)
	if h < 0 {
		h += 2 * math.Pi
	}
	if h >= 2*math.Pi {
		h = 0
	}
	return h
}

// ShortestTurn returns the signed turn in (-π, π] that takes from to to.
func ShortestTurn(from, to float64) float64 {
	d := NormalizeHeading(to) - NormalizeHeading(from)
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
