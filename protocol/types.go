// Package protocol implements the line-oriented robot wire protocol: a closed
// set of JSON packets, each terminated by a single ';'.
package protocol

// PacketType is the "type" tag of a wire packet.
type PacketType string

// Packet type constants for the robot link.
const (
	// Robot -> Server
	TypeClientHello   PacketType = "CLIENT_HELLO"
	TypePingResponse  PacketType = "PING_RESPONSE"
	TypeQueryResponse PacketType = "QUERY_RESPONSE"
	TypeActionSuccess PacketType = "ACTION_SUCCESS"
	TypeActionFail    PacketType = "ACTION_FAIL"

	// Server -> Robot
	TypeServerHello PacketType = "SERVER_HELLO"
	TypePingSend    PacketType = "PING_SEND"
	TypeQueryVar    PacketType = "QUERY_VAR"
	TypeSetVar      PacketType = "SET_VAR"
	TypeTurnByAngle PacketType = "TURN_BY_ANGLE"
	TypeDriveTiles  PacketType = "DRIVE_TILES"
	TypeDriveTank   PacketType = "DRIVE_TANK"
	TypeEStop       PacketType = "ESTOP"
)

// VarType names the firmware storage type of a tunable variable.
type VarType string

const (
	VarBool   VarType = "bool"
	VarInt8   VarType = "int8"
	VarInt16  VarType = "int16"
	VarInt32  VarType = "int32"
	VarUint8  VarType = "uint8"
	VarUint16 VarType = "uint16"
	VarUint32 VarType = "uint32"
	VarFloat  VarType = "float"
)

func (v VarType) valid() bool {
	switch v {
	case VarBool, VarInt8, VarInt16, VarInt32, VarUint8, VarUint16, VarUint32, VarFloat:
		return true
	}
	return false
}

// Delimiter terminates every frame on the wire.
const Delimiter = ';'

// MaxFrameBytes bounds how much undelimited data a FrameBuffer keeps.
const MaxFrameBytes = 4096

// Protocol version announced in SERVER_HELLO.
const Version = 1
