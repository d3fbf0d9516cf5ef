// Package robotstate keeps the live pose of every robot: written through to
// SQL first, then mirrored into Redis for fast reads.
package robotstate

import (
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

type RobotState struct {
	ID        string           `json:"id"`
	Piece     string           `json:"piece"`
	Color     string           `json:"color"`
	Position  grid.Position    `json:"position"`
	Heading   float64          `json:"heading"`
	Cell      grid.GridIndices `json:"cell"`
	Connected bool             `json:"connected"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func fromRow(r *store.Robot) *RobotState {
	return &RobotState{
		ID:        r.ID,
		Piece:     r.Piece,
		Color:     r.Color,
		Position:  r.Position,
		Heading:   r.Heading,
		Cell:      r.Cell,
		Connected: r.Connected,
		UpdatedAt: r.UpdatedAt,
	}
}
