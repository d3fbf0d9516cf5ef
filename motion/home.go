package motion

import (
	"errors"
	"fmt"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

var ErrNoRoute = errors.New("no free deadzone entry")

const ringLength = 36

// ringIndex places a deadzone cell on the ring, counter-clockwise from the
// bottom-left corner.
func ringIndex(c grid.GridIndices) (int, bool) {
	lo, hi := grid.DeadzoneLow, grid.DeadzoneHigh
	switch {
	case !c.IsDeadzone():
		return 0, false
	case c.J == lo:
		return c.I - lo, true
	case c.I == hi:
		return 9 + (c.J - lo), true
	case c.J == hi:
		return 18 + (hi - c.I), true
	default:
		return 27 + (hi - c.J), true
	}
}

var ringCorners = map[int]grid.GridIndices{
	0:  {I: grid.DeadzoneLow, J: grid.DeadzoneLow},
	9:  {I: grid.DeadzoneHigh, J: grid.DeadzoneLow},
	18: {I: grid.DeadzoneHigh, J: grid.DeadzoneHigh},
	27: {I: grid.DeadzoneLow, J: grid.DeadzoneHigh},
}

// RingPath returns the stops from one deadzone cell to another along the
// shorter arc: every corner passed, then the destination.
func RingPath(from, to grid.GridIndices) ([]grid.GridIndices, error) {
	a, ok := ringIndex(from)
	if !ok {
		return nil, fmt.Errorf("%s is not on the deadzone ring", from)
	}
	b, ok := ringIndex(to)
	if !ok {
		return nil, fmt.Errorf("%s is not on the deadzone ring", to)
	}
	if a == b {
		return nil, nil
	}
	fwd := (b - a + ringLength) % ringLength
	step, n := 1, fwd
	if fwd > ringLength/2 {
		step, n = -1, ringLength-fwd
	}
	var path []grid.GridIndices
	for k := 1; k < n; k++ {
		p := ((a+step*k)%ringLength + ringLength) % ringLength
		if c, ok := ringCorners[p]; ok {
			path = append(path, c)
		}
	}
	return append(path, to), nil
}

// deadzoneEntry picks the nearest free deadzone cell straight out from a
// board cell. Sides are tried left, right, bottom, top; ties keep the first.
func deadzoneEntry(w *world, from grid.GridIndices) (grid.GridIndices, error) {
	candidates := []grid.GridIndices{
		{I: grid.DeadzoneLow, J: from.J},
		{I: grid.DeadzoneHigh, J: from.J},
		{I: from.I, J: grid.DeadzoneLow},
		{I: from.I, J: grid.DeadzoneHigh},
	}
	best, bestDist := grid.GridIndices{}, -1
	for _, c := range candidates {
		if _, taken := w.occ[c]; taken {
			continue
		}
		d := grid.Abs(c.I-from.I) + grid.Abs(c.J-from.J)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 {
		return grid.GridIndices{}, fmt.Errorf("from %s: %w", from, ErrNoRoute)
	}
	return best, nil
}

// ringDrive drives a robot through ring stops as one chain.
func (m *Materializer) ringDrive(w *world, id string, stops []grid.GridIndices) ([]command.Command, error) {
	r, err := m.reg.Get(id)
	if err != nil {
		return nil, err
	}
	out := make([]command.Command, 0, len(stops))
	for _, c := range stops {
		out = append(out, command.DriveTo(r, c.Center()))
	}
	if len(stops) > 0 {
		w.move(id, stops[len(stops)-1])
	}
	return out, nil
}

// planHome routes a robot from wherever it stands to its home cell.
func (m *Materializer) planHome(w *world, id string) (command.Command, error) {
	r, err := m.reg.Get(id)
	if err != nil {
		return nil, err
	}
	from, ok := w.cellOf[id]
	if !ok {
		return nil, fmt.Errorf("%s has no cell", id)
	}
	if from == r.Home {
		return nil, nil
	}
	if holder, ok := w.occ[r.Home]; ok && holder != id {
		return nil, fmt.Errorf("home %s of %s held by %s: %w", r.Home, id, holder, ErrDestinationOccupied)
	}

	var steps []command.Command
	entry := from
	if from.IsBoard() {
		entry, err = deadzoneEntry(w, from)
		if err != nil {
			return nil, err
		}
		out, _, err := m.planStraight(w, id, from, entry, false, 0)
		if err != nil {
			return nil, err
		}
		steps = append(steps, out)
	}

	var legs []command.Command
	if !entry.IsBoard() && !entry.IsDeadzone() {
		entry = grid.ClampToDeadzone(entry)
		legs = append(legs, command.DriveTo(r, entry.Center()))
		w.move(id, entry)
	}
	if entry.IsDeadzone() {
		stops, err := RingPath(entry, grid.ClampToDeadzone(r.Home))
		if err != nil {
			return nil, err
		}
		ring, err := m.ringDrive(w, id, stops)
		if err != nil {
			return nil, err
		}
		legs = append(legs, ring...)
	}
	legs = append(legs, command.DriveTo(r, r.Home.Center()), command.RotateTo(r, r.DefaultHeading))
	ring := command.Sequential(legs...)
	ring.Label = fmt.Sprintf("home %s via deadzone", id)
	steps = append(steps, command.WithTimePoint(ring, m.TimePoint))
	w.move(id, r.Home)
	w.heading[id] = r.DefaultHeading

	seq := command.Sequential(steps...)
	seq.Label = fmt.Sprintf("send %s home to %s", id, r.Home)
	return seq, nil
}
