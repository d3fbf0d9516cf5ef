package tunnel

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// Virtual is an in-process stand-in for a robot link. Motion is acknowledged
// after a delay proportional to distance or angle.
type Virtual struct {
	RobotID string

	// TileTime and TurnTime scale simulated motion; zero acknowledges at once.
	TileTime time.Duration
	TurnTime time.Duration // per radian

	mu     sync.Mutex
	closed bool
	fail   map[protocol.PacketType]string
	vars   map[string]float64
	sent   []protocol.Packet
}

func NewVirtual(robotID string) *Virtual {
	return &Virtual{
		RobotID:  robotID,
		TileTime: 400 * time.Millisecond,
		TurnTime: 250 * time.Millisecond,
		fail:     make(map[protocol.PacketType]string),
		vars:     make(map[string]float64),
	}
}

// FailNext makes the next request of type t fail with reason.
func (v *Virtual) FailNext(t protocol.PacketType, reason string) {
	v.mu.Lock()
	v.fail[t] = reason
	v.mu.Unlock()
}

// Sent returns every packet received so far.
func (v *Virtual) Sent() []protocol.Packet {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]protocol.Packet, len(v.sent))
	copy(out, v.sent)
	return out
}

func (v *Virtual) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed
}

func (v *Virtual) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

func (v *Virtual) Send(ctx context.Context, p protocol.Packet) (protocol.Packet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrTunnelClosed
	}
	v.sent = append(v.sent, p)
	reason, failing := v.fail[p.PacketType()]
	delete(v.fail, p.PacketType())
	v.mu.Unlock()

	if !protocol.ExpectsReply(p.PacketType()) {
		return nil, nil
	}

	var d time.Duration
	switch pk := p.(type) {
	case *protocol.DriveTiles:
		d = time.Duration(math.Abs(pk.TileDistance) * float64(v.TileTime))
	case *protocol.TurnByAngle:
		d = time.Duration(math.Abs(pk.DeltaHeadingRadians) * float64(v.TurnTime))
	}
	if d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if failing {
		return nil, &ActionError{Type: p.PacketType(), Reason: reason}
	}
	switch pk := p.(type) {
	case *protocol.QueryVar:
		v.mu.Lock()
		val := v.vars[pk.Var]
		v.mu.Unlock()
		return &protocol.QueryResponse{Var: pk.Var, VarType: pk.VarType, Value: val}, nil
	case *protocol.SetVar:
		v.mu.Lock()
		v.vars[pk.Var] = pk.Value
		v.mu.Unlock()
	}
	return &protocol.ActionSuccess{}, nil
}

var _ fleet.Tunnel = (*Virtual)(nil)
