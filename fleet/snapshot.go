package fleet

import (
	"fmt"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// RobotPose is one robot's saved state.
type RobotPose struct {
	ID       string           `json:"id"`
	Position grid.Position    `json:"position"`
	Heading  float64          `json:"heading"`
	Cell     grid.GridIndices `json:"cell"`
	Piece    string           `json:"piece"`
}

// Snapshot is the registry state at a point in time.
type Snapshot struct {
	Label string      `json:"label"`
	Taken time.Time   `json:"taken"`
	Poses []RobotPose `json:"poses"`
}

// Snapshot captures every robot's pose and cell.
func (g *Registry) Snapshot(label string) Snapshot {
	s := Snapshot{Label: label, Taken: time.Now().UTC()}
	for _, r := range g.All() {
		pos, heading := r.Pose()
		cell, _ := g.CellOf(r.ID)
		s.Poses = append(s.Poses, RobotPose{
			ID:       r.ID,
			Position: pos,
			Heading:  heading,
			Cell:     cell,
			Piece:    r.Piece(),
		})
	}
	return s
}

// Restore resets poses, piece tags and the occupancy map to s. Robots not in
// s are left where they are. No packets are sent.
func (g *Registry) Restore(s Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[grid.GridIndices]string, len(s.Poses))
	for _, p := range s.Poses {
		if _, ok := g.robots[p.ID]; !ok {
			return fmt.Errorf("restore %q: %w", p.ID, ErrRobotNotFound)
		}
		if other, ok := seen[p.Cell]; ok {
			return fmt.Errorf("restore %s at %s held by %s: %w", p.ID, p.Cell, other, ErrCellOccupied)
		}
		seen[p.Cell] = p.ID
	}

	inSnap := make(map[string]bool, len(s.Poses))
	for _, p := range s.Poses {
		inSnap[p.ID] = true
	}
	for cell, id := range seen {
		if holder, ok := g.byCell[cell]; ok && !inSnap[holder] {
			return fmt.Errorf("restore %s at %s held by %s: %w", id, cell, holder, ErrCellOccupied)
		}
	}

	for _, p := range s.Poses {
		delete(g.byCell, g.cellOf[p.ID])
	}
	for _, p := range s.Poses {
		r := g.robots[p.ID]
		r.setPose(p.Position, p.Heading)
		r.SetPiece(p.Piece)
		g.byCell[p.Cell] = p.ID
		g.cellOf[p.ID] = p.Cell
	}
	return nil
}
