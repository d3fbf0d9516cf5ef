package engine

import (
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
)

const (
	EventRobotConnected EventType = iota + 1
	EventRobotDisconnected
	EventRobotReconnected
	EventRobotUpdate
	EventMoveAccepted
	EventMoveCompleted
	EventMoveFailed
	EventPaused
	EventUnpaused
	EventSnapshotSaved
	EventRollback
	EventExecutionCleared
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventRobotConnected:        "robot.connected",
	EventRobotDisconnected:     "robot.disconnected",
	EventRobotReconnected:      "robot.reconnected",
	EventRobotUpdate:           "robot.update",
	EventMoveAccepted:          "move.accepted",
	EventMoveCompleted:         "move.completed",
	EventMoveFailed:            "move.failed",
	EventPaused:                "fleet.paused",
	EventUnpaused:              "fleet.unpaused",
	EventSnapshotSaved:         "snapshot.saved",
	EventRollback:              "fleet.rollback",
	EventExecutionCleared:      "execution.cleared",
	EventMessagingConnected:    "messaging.connected",
	EventMessagingDisconnected: "messaging.disconnected",
}

// String is the name used on the live update stream.
func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type RobotConnectionEvent struct {
	RobotID   string `json:"robot_id"`
	MAC       string `json:"mac,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

type RobotUpdateEvent struct {
	fleet.Update
	Piece string `json:"piece"`
}

type MoveAcceptedEvent struct {
	CommandID  uint64   `json:"command_id"`
	RequestID  string   `json:"request_id,omitempty"`
	Name       string   `json:"name"`
	MoveType   string   `json:"move_type"`
	Collisions []string `json:"collisions,omitempty"`
	Captured   string   `json:"captured,omitempty"`
	Robots     []string `json:"robots"`
}

// MoveFinishedEvent is the payload of both EventMoveCompleted and EventMoveFailed.
type MoveFinishedEvent struct {
	CommandID uint64    `json:"command_id"`
	RequestID string    `json:"request_id,omitempty"`
	Name      string    `json:"name"`
	Robots    []string  `json:"robots"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

type PauseEvent struct {
	Reason  string `json:"reason,omitempty"`
	Actor   string `json:"actor"`
	Started int    `json:"started,omitempty"` // held commands started on unpause
}

type SnapshotEvent struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	Robots int    `json:"robots"`
}

type RollbackEvent struct {
	Label   string `json:"label"`
	Cleared int    `json:"cleared"`
	Actor   string `json:"actor"`
}

type ClearedEvent struct {
	Cleared int    `json:"cleared"`
	Actor   string `json:"actor"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}
