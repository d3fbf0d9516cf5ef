// Package messaging links the fleet server to the game layer over MQTT or
// Kafka. Every message is a JSON envelope tagged with msg_type.
package messaging

import "time"

// Envelope is the typed message wrapper for all game <-> fleet messages.
type Envelope struct {
	MsgType   string    `json:"msg_type"`
	MsgID     string    `json:"msg_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Message types.
const (
	TypeMoveRequest   = "move.request"
	TypeGamePause     = "game.pause"
	TypeGameUnpause   = "game.unpause"
	TypeRobotUpdate   = "robot.update"
	TypeActionOutcome = "action.outcome"
	TypeFleetStatus   = "fleet.status"
)

// --- Inbound payloads (game -> fleet) ---

type MoveRequest struct {
	RequestID string `json:"request_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Capture   bool   `json:"capture,omitempty"`
	EnPassant bool   `json:"en_passant,omitempty"`
	Castle    string `json:"castle,omitempty"` // "king", "queen"
	Promotion string `json:"promotion,omitempty"`
}

type GamePause struct {
	Reason string `json:"reason"`
}

type GameUnpause struct{}

// --- Outbound payloads (fleet -> game) ---

type Cell struct {
	I int `json:"i"`
	J int `json:"j"`
}

type RobotUpdate struct {
	RobotID   string  `json:"robot_id"`
	Piece     string  `json:"piece"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
	Cell      Cell    `json:"cell"`
	Connected bool    `json:"connected"`
}

type ActionOutcome struct {
	CommandID int64    `json:"command_id"`
	RequestID string   `json:"request_id,omitempty"`
	Name      string   `json:"name"`
	Status    string   `json:"status"` // succeeded, failed, cleared
	Error     string   `json:"error,omitempty"`
	Robots    []string `json:"robots"`
}

type FleetStatus struct {
	Paused       bool     `json:"paused"`
	Reason       string   `json:"reason,omitempty"`
	Disconnected []string `json:"disconnected"`
	Running      []string `json:"running"`
}
