package motion

import (
	"fmt"
	"sort"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// entryFor is the deadzone cell a robot enters the board from to reach its
// default cell: the row below the board for the lower half, above otherwise.
func entryFor(def grid.GridIndices) grid.GridIndices {
	if def.J <= (grid.BoardMin+grid.BoardMax)/2 {
		return grid.GridIndices{I: def.I, J: grid.DeadzoneLow}
	}
	return grid.GridIndices{I: def.I, J: grid.DeadzoneHigh}
}

// pending lists robots not yet on their default cell.
func (m *Materializer) pending(w *world) []*fleet.Robot {
	var out []*fleet.Robot
	for _, r := range m.reg.All() {
		if w.cellOf[r.ID] != r.Default {
			out = append(out, r)
		}
	}
	return out
}

// planSetup routes one robot onto its default cell through the deadzone.
// A robot standing elsewhere on the board goes home first.
func (m *Materializer) planSetup(w *world, r *fleet.Robot) (command.Command, error) {
	var steps []command.Command
	if w.cellOf[r.ID].IsBoard() {
		home, err := m.planHome(w, r.ID)
		if err != nil {
			return nil, err
		}
		steps = append(steps, home)
	}
	if holder, ok := w.occ[r.Default]; ok {
		return nil, fmt.Errorf("default %s of %s held by %s: %w", r.Default.Square(), r.ID, holder, ErrDestinationOccupied)
	}

	from := w.cellOf[r.ID]
	var legs []command.Command
	start := from
	if !from.IsDeadzone() {
		start = grid.ClampToDeadzone(from)
		legs = append(legs, command.DriveTo(r, start.Center()))
		w.move(r.ID, start)
	}
	entry := entryFor(r.Default)
	stops, err := RingPath(start, entry)
	if err != nil {
		return nil, err
	}
	ring, err := m.ringDrive(w, r.ID, stops)
	if err != nil {
		return nil, err
	}
	legs = append(legs, ring...)
	if len(legs) > 0 {
		snake := command.Sequential(legs...)
		snake.Label = fmt.Sprintf("deadzone %s to %s", r.ID, entry)
		steps = append(steps, command.WithTimePoint(snake, m.TimePoint))
	}

	in, _, err := m.planStraight(w, r.ID, entry, r.Default, true, r.DefaultHeading)
	if err != nil {
		return nil, err
	}
	steps = append(steps, in)
	seq := command.Sequential(steps...)
	seq.Label = fmt.Sprintf("setup %s to %s", r.ID, r.Default.Square())
	return seq, nil
}

// SetupAll moves every robot to its default cell one at a time. Robots are
// placed column by column, farthest from the entry edge first, so no robot
// crosses one already placed.
func (m *Materializer) SetupAll() (command.Command, error) {
	w := m.world()
	robots := m.pending(w)
	sort.SliceStable(robots, func(a, b int) bool {
		ra, rb := robots[a], robots[b]
		if ra.Default.I != rb.Default.I {
			return ra.Default.I < rb.Default.I
		}
		// Each robot enters its column from the entry edge and drives
		// straight in. Filling the far end first leaves the path from the
		// edge clear for the robots still to come.
		da := grid.Abs(ra.Default.J - entryFor(ra.Default).J)
		db := grid.Abs(rb.Default.J - entryFor(rb.Default).J)
		if da != db {
			return da > db
		}
		return ra.ID < rb.ID
	})
	steps := make([]command.Command, 0, len(robots))
	for _, r := range robots {
		c, err := m.planSetup(w, r)
		if err != nil {
			return nil, fmt.Errorf("setup %s: %w", r.ID, err)
		}
		steps = append(steps, c)
	}
	seq := command.Sequential(steps...)
	seq.Label = "setup all"
	return seq, nil
}

// fileRank orders files centre first: d e c f b g a h.
func fileRank(i int) int {
	mid := float64(grid.BoardMin+grid.BoardMax) / 2
	d := float64(i) - mid
	if d < 0 {
		return int(-2*d) - 1
	}
	return int(2 * d)
}

// SetupAllOptimized funnels pawns through the deadzone in parallel batches,
// centre files first, then moves every back-rank piece straight from home
// at once. Pawns outside the standard layout, or not parked at home, fall
// back to the sequential route.
func (m *Materializer) SetupAllOptimized() (command.Command, error) {
	w := m.world()
	var lanes [4][]*fleet.Robot
	var back, other []*fleet.Robot
	for _, r := range m.pending(w) {
		atHome := w.cellOf[r.ID] == r.Home
		switch {
		case !atHome:
			other = append(other, r)
		case r.Piece() == "pawn" && r.Home.IsHome() && (r.Home.I == grid.HomeLow || r.Home.I == grid.HomeHigh):
			lane := 0
			if r.Home.I == grid.HomeHigh {
				lane++
			}
			if r.Default.J > (grid.BoardMin+grid.BoardMax)/2 {
				lane += 2
			}
			lanes[lane] = append(lanes[lane], r)
		case r.Home.J == grid.HomeLow || r.Home.J == grid.HomeHigh:
			back = append(back, r)
		default:
			other = append(other, r)
		}
	}
	for _, lane := range lanes {
		sort.SliceStable(lane, func(a, b int) bool {
			return fileRank(lane[a].Default.I) < fileRank(lane[b].Default.I)
		})
	}

	var steps []command.Command
	for _, r := range other {
		c, err := m.planSetup(w, r)
		if err != nil {
			return nil, fmt.Errorf("setup %s: %w", r.ID, err)
		}
		steps = append(steps, c)
	}

	size := m.PawnBatchSize
	if size > len(lanes) {
		size = len(lanes)
	}
	for {
		var batch []command.Command
		for l := range lanes {
			if len(batch) == size {
				break
			}
			if len(lanes[l]) == 0 {
				continue
			}
			r := lanes[l][0]
			lanes[l] = lanes[l][1:]
			c, err := m.planSetup(w, r)
			if err != nil {
				return nil, fmt.Errorf("setup %s: %w", r.ID, err)
			}
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			break
		}
		p := command.Parallel(batch...)
		p.Label = fmt.Sprintf("pawn batch %d", len(steps))
		steps = append(steps, p)
	}

	if len(back) > 0 {
		var rank []command.Command
		for _, r := range back {
			c, _, err := m.planStraight(w, r.ID, w.cellOf[r.ID], r.Default, true, r.DefaultHeading)
			if err != nil {
				return nil, fmt.Errorf("setup %s: %w", r.ID, err)
			}
			rank = append(rank, c)
		}
		p := command.Parallel(rank...)
		p.Label = "back ranks"
		steps = append(steps, p)
	}
	seq := command.Sequential(steps...)
	seq.Label = "setup all (optimized)"
	return seq, nil
}

// ResetAll sends every robot home, nearest the deadzone first.
func (m *Materializer) ResetAll() (command.Command, error) {
	w := m.world()
	var robots []*fleet.Robot
	for _, r := range m.reg.All() {
		if w.cellOf[r.ID] != r.Home {
			robots = append(robots, r)
		}
	}
	edge := func(c grid.GridIndices) int {
		d := c.I - grid.DeadzoneLow
		for _, v := range []int{grid.DeadzoneHigh - c.I, c.J - grid.DeadzoneLow, grid.DeadzoneHigh - c.J} {
			if v < d {
				d = v
			}
		}
		return d
	}
	sort.SliceStable(robots, func(a, b int) bool {
		da, db := edge(w.cellOf[robots[a].ID]), edge(w.cellOf[robots[b].ID])
		if da != db {
			return da < db
		}
		return robots[a].ID < robots[b].ID
	})
	steps := make([]command.Command, 0, len(robots))
	for _, r := range robots {
		c, err := m.planHome(w, r.ID)
		if err != nil {
			return nil, fmt.Errorf("reset %s: %w", r.ID, err)
		}
		steps = append(steps, c)
	}
	seq := command.Sequential(steps...)
	seq.Label = "reset all"
	return seq, nil
}
