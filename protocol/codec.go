package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Frame is a decoded packet together with its correlation id.
type Frame struct {
	PacketID string
	Packet   Packet
}

// ValidationError reports a frame rejected at decode (or encode) time.
type ValidationError struct {
	Type   PacketType
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Type == "" {
		return "protocol: invalid frame: " + e.Reason
	}
	return fmt.Sprintf("protocol: invalid %s: %s", e.Type, e.Reason)
}

func invalid(t PacketType, reason string) error {
	return &ValidationError{Type: t, Reason: reason}
}

// variant describes the fixed field set of one packet type.
type variant struct {
	required []string
	optional []string
	idNeeded bool
	new      func() Packet
}

var variants = map[PacketType]variant{
	TypeClientHello:   {required: []string{"macAddress"}, new: func() Packet { return &ClientHello{} }},
	TypePingResponse:  {new: func() Packet { return &PingResponse{} }},
	TypeQueryResponse: {required: []string{"var", "varType", "value"}, idNeeded: true, new: func() Packet { return &QueryResponse{} }},
	TypeActionSuccess: {idNeeded: true, new: func() Packet { return &ActionSuccess{} }},
	TypeActionFail:    {required: []string{"reason"}, idNeeded: true, new: func() Packet { return &ActionFail{} }},
	TypeServerHello:   {required: []string{"protocol", "config"}, new: func() Packet { return &ServerHello{} }},
	TypePingSend:      {new: func() Packet { return &PingSend{} }},
	TypeQueryVar:      {required: []string{"var", "varType"}, new: func() Packet { return &QueryVar{} }},
	TypeSetVar:        {required: []string{"var", "varType", "value"}, new: func() Packet { return &SetVar{} }},
	TypeTurnByAngle:   {required: []string{"deltaHeadingRadians"}, new: func() Packet { return &TurnByAngle{} }},
	TypeDriveTiles:    {required: []string{"tileDistance"}, new: func() Packet { return &DriveTiles{} }},
	TypeDriveTank:     {required: []string{"left", "right"}, new: func() Packet { return &DriveTank{} }},
	TypeEStop:         {new: func() Packet { return &EStop{} }},
}

// NewPacketID returns a fresh correlation id.
func NewPacketID() string {
	return uuid.New().String()
}

// Encode renders p as one delimited frame stamped with packetID.
func Encode(p Packet, packetID string) ([]byte, error) {
	if p == nil {
		return nil, invalid("", "nil packet")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", p.PacketType(), err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("protocol: reshape %s: %w", p.PacketType(), err)
	}
	fields["type"], _ = json.Marshal(p.PacketType())
	if packetID != "" {
		fields["packetId"], _ = json.Marshal(packetID)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}
	return append(out, Delimiter), nil
}

// Decode parses one frame (with or without its trailing delimiter).
// Any frame outside the closed packet set is rejected.
func Decode(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimSuffix(data, []byte{Delimiter})

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, invalid("", "malformed json: "+err.Error())
	}
	if fields == nil {
		return Frame{}, invalid("", "frame is not a json object")
	}

	rawType, ok := fields["type"]
	if !ok {
		return Frame{}, invalid("", "missing type")
	}
	var t PacketType
	if err := json.Unmarshal(rawType, &t); err != nil {
		return Frame{}, invalid("", "type must be a string")
	}
	v, ok := variants[t]
	if !ok {
		return Frame{}, invalid(t, "unknown packet type")
	}

	var frame Frame
	if rawID, ok := fields["packetId"]; ok {
		if err := json.Unmarshal(rawID, &frame.PacketID); err != nil {
			return Frame{}, invalid(t, "packetId must be a string")
		}
	}
	if v.idNeeded && frame.PacketID == "" {
		return Frame{}, invalid(t, "missing packetId")
	}

	allowed := map[string]bool{"type": true, "packetId": true}
	for _, f := range v.required {
		raw, ok := fields[f]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return Frame{}, invalid(t, "missing field "+f)
		}
		allowed[f] = true
	}
	for _, f := range v.optional {
		allowed[f] = true
	}
	for k := range fields {
		if !allowed[k] {
			return Frame{}, invalid(t, "unexpected field "+k)
		}
	}

	p := v.new()
	if err := json.Unmarshal(data, p); err != nil {
		return Frame{}, invalid(t, "wrong field shape: "+err.Error())
	}
	if err := p.Validate(); err != nil {
		return Frame{}, err
	}
	frame.Packet = p
	return frame, nil
}
