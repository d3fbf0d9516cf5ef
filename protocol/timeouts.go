package protocol

import "time"

// Default ack deadlines by request type. Motion requests get enough time for
// the robot to physically finish.
var ackTimeouts = map[PacketType]time.Duration{
	TypePingSend:    2 * time.Second,
	TypeQueryVar:    2 * time.Second,
	TypeSetVar:      2 * time.Second,
	TypeServerHello: 5 * time.Second,
	TypeDriveTank:   5 * time.Second,
	TypeTurnByAngle: 20 * time.Second,
	TypeDriveTiles:  30 * time.Second,
}

// FallbackAckTimeout is used when no specific deadline is configured.
const FallbackAckTimeout = 10 * time.Second

// AckTimeoutFor returns the default reply deadline for a request type.
func AckTimeoutFor(t PacketType) time.Duration {
	if d, ok := ackTimeouts[t]; ok {
		return d
	}
	return FallbackAckTimeout
}

// ExpectsReply reports whether a server-sent request is answered by the
// robot with a correlated packet.
func ExpectsReply(t PacketType) bool {
	switch t {
	case TypeQueryVar, TypeSetVar, TypeTurnByAngle, TypeDriveTiles, TypeDriveTank:
		return true
	}
	return false
}

// IsReply reports whether a robot-sent packet completes a pending request.
func IsReply(t PacketType) bool {
	switch t {
	case TypeActionSuccess, TypeActionFail, TypeQueryResponse:
		return true
	}
	return false
}
