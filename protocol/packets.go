package protocol

import (
	"fmt"
	"math"
)

// Packet is one member of the closed wire union. Only the pointer types in
// this file implement it.
type Packet interface {
	PacketType() PacketType
	Validate() error
}

// --- Robot -> Server ---

// ClientHello opens the handshake.
type ClientHello struct {
	MACAddress string `json:"macAddress"`
}

// PingResponse answers a PingSend.
type PingResponse struct{}

// QueryResponse carries the value of a queried variable.
type QueryResponse struct {
	Var     string  `json:"var"`
	VarType VarType `json:"varType"`
	Value   float64 `json:"value"`
}

// ActionSuccess acknowledges the request with the same packetId.
type ActionSuccess struct{}

// ActionFail rejects the request with the same packetId.
type ActionFail struct {
	Reason string `json:"reason"`
}

// --- Server -> Robot ---

// ServerHello completes the handshake with the robot's tunables.
type ServerHello struct {
	Protocol int                `json:"protocol"`
	Config   map[string]float64 `json:"config"`
}

// PingSend is a heartbeat probe.
type PingSend struct{}

// QueryVar asks for the current value of a tunable.
type QueryVar struct {
	Var     string  `json:"var"`
	VarType VarType `json:"varType"`
}

// SetVar writes a tunable.
type SetVar struct {
	Var     string  `json:"var"`
	VarType VarType `json:"varType"`
	Value   float64 `json:"value"`
}

// TurnByAngle rotates in place; positive is clockwise.
type TurnByAngle struct {
	DeltaHeadingRadians float64 `json:"deltaHeadingRadians"`
}

// DriveTiles drives straight along the current heading.
type DriveTiles struct {
	TileDistance float64 `json:"tileDistance"`
}

// DriveTank sets raw motor power for each side.
type DriveTank struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// EStop requests an immediate stop. No reply is expected.
type EStop struct{}

func (*ClientHello) PacketType() PacketType   { return TypeClientHello }
func (*PingResponse) PacketType() PacketType  { return TypePingResponse }
func (*QueryResponse) PacketType() PacketType { return TypeQueryResponse }
func (*ActionSuccess) PacketType() PacketType { return TypeActionSuccess }
func (*ActionFail) PacketType() PacketType    { return TypeActionFail }
func (*ServerHello) PacketType() PacketType   { return TypeServerHello }
func (*PingSend) PacketType() PacketType      { return TypePingSend }
func (*QueryVar) PacketType() PacketType      { return TypeQueryVar }
func (*SetVar) PacketType() PacketType        { return TypeSetVar }
func (*TurnByAngle) PacketType() PacketType   { return TypeTurnByAngle }
func (*DriveTiles) PacketType() PacketType    { return TypeDriveTiles }
func (*DriveTank) PacketType() PacketType     { return TypeDriveTank }
func (*EStop) PacketType() PacketType         { return TypeEStop }

func (p *ClientHello) Validate() error {
	if p.MACAddress == "" {
		return invalid(TypeClientHello, "macAddress must not be empty")
	}
	return nil
}

func (*PingResponse) Validate() error  { return nil }
func (*ActionSuccess) Validate() error { return nil }
func (*ActionFail) Validate() error    { return nil }
func (*PingSend) Validate() error      { return nil }
func (*EStop) Validate() error         { return nil }

func (p *QueryResponse) Validate() error {
	if err := checkVar(TypeQueryResponse, p.Var, p.VarType); err != nil {
		return err
	}
	return checkFinite(TypeQueryResponse, "value", p.Value)
}

func (p *ServerHello) Validate() error {
	if p.Protocol < 1 {
		return invalid(TypeServerHello, "protocol must be >= 1")
	}
	if p.Config == nil {
		return invalid(TypeServerHello, "config is required")
	}
	for k, v := range p.Config {
		if err := checkFinite(TypeServerHello, "config."+k, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *QueryVar) Validate() error {
	return checkVar(TypeQueryVar, p.Var, p.VarType)
}

func (p *SetVar) Validate() error {
	if err := checkVar(TypeSetVar, p.Var, p.VarType); err != nil {
		return err
	}
	return checkFinite(TypeSetVar, "value", p.Value)
}

func (p *TurnByAngle) Validate() error {
	return checkFinite(TypeTurnByAngle, "deltaHeadingRadians", p.DeltaHeadingRadians)
}

func (p *DriveTiles) Validate() error {
	return checkFinite(TypeDriveTiles, "tileDistance", p.TileDistance)
}

func (p *DriveTank) Validate() error {
	if err := checkPower(TypeDriveTank, "left", p.Left); err != nil {
		return err
	}
	return checkPower(TypeDriveTank, "right", p.Right)
}

func checkVar(t PacketType, name string, vt VarType) error {
	if name == "" {
		return invalid(t, "var must not be empty")
	}
	if !vt.valid() {
		return invalid(t, fmt.Sprintf("unknown varType %q", vt))
	}
	return nil
}

func checkFinite(t PacketType, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(t, field+" must be finite")
	}
	return nil
}

func checkPower(t PacketType, field string, v float64) error {
	if err := checkFinite(t, field, v); err != nil {
		return err
	}
	if v < -1 || v > 1 {
		return invalid(t, fmt.Sprintf("%s must be in [-1, 1], got %v", field, v))
	}
	return nil
}

// Compile-time checks that every variant implements Packet.
var (
	_ Packet = (*ClientHello)(nil)
	_ Packet = (*PingResponse)(nil)
	_ Packet = (*QueryResponse)(nil)
	_ Packet = (*ActionSuccess)(nil)
	_ Packet = (*ActionFail)(nil)
	_ Packet = (*ServerHello)(nil)
	_ Packet = (*PingSend)(nil)
	_ Packet = (*QueryVar)(nil)
	_ Packet = (*SetVar)(nil)
	_ Packet = (*TurnByAngle)(nil)
	_ Packet = (*DriveTiles)(nil)
	_ Packet = (*DriveTank)(nil)
	_ Packet = (*EStop)(nil)
)
