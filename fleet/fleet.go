// Package fleet owns the canonical state of every robot: pose, piece tag and
// connection handle, indexed by id and by grid cell.
package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

var (
	ErrRobotNotFound  = errors.New("robot not found")
	ErrCellEmpty      = errors.New("cell is empty")
	ErrCellOccupied   = errors.New("cell is occupied")
	ErrNotConnected   = errors.New("robot is not connected")
	ErrDuplicateRobot = errors.New("robot already registered")
)

// Tunnel is the link a robot is actuated through. Send returns the robot's
// correlated reply for requests that expect one.
type Tunnel interface {
	Send(ctx context.Context, p protocol.Packet) (protocol.Packet, error)
	Connected() bool
	Close() error
}

// Update is emitted on every committed robot action.
type Update struct {
	RobotID  string          `json:"robotId"`
	Position grid.Position   `json:"position"`
	Heading  float64         `json:"heading"`
	Cell     grid.GridIndices `json:"cell"`
	Packet   protocol.Packet `json:"packet,omitempty"`
	Stack    string          `json:"stack,omitempty"`
	Time     time.Time       `json:"time"`
}

// Info is the static identity of a robot.
type Info struct {
	ID             string
	MAC            string
	Piece          string
	Color          string
	Home           grid.GridIndices
	Default        grid.GridIndices
	DefaultHeading float64
}
