package motion

import "github.com/Comet-Robotics/chessbots-server-sub000/grid"

// Line is the travel line a mover follows.
type Line struct {
	From, To grid.Position
}

// Direction returns the unit vector of travel.
func (l Line) Direction() grid.Position { return l.To.Sub(l.From).Unit() }

// Foot projects p onto the (infinite) line.
func (l Line) Foot(p grid.Position) grid.Position {
	u := l.Direction()
	return l.From.Add(u.Scale(p.Sub(l.From).Dot(u)))
}

// ShimmyTarget returns where a blocker at b should step so it sits clearance
// away from the line. The candidate on the first side (unit normal first)
// is evaluated first and wins ties.
func ShimmyTarget(l Line, b grid.Position, first grid.Position, clearance float64) grid.Position {
	q := l.Foot(b)
	a := q.Add(first.Scale(clearance))
	c := q.Sub(first.Scale(clearance))
	if b.Distance(c) < b.Distance(a)-1e-9 {
		return c
	}
	return a
}
