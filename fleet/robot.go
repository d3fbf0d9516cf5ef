package fleet

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

const poseEpsilon = 1e-6

// Robot is one physical or simulated unit. Position and heading change only
// after the robot acknowledges the action that moved it.
type Robot struct {
	Info

	mu      sync.RWMutex
	piece   string
	pos     grid.Position
	heading float64
	tunnel  Tunnel

	reg *Registry
}

// NewRobot creates a robot parked at the centre of its home cell.
func NewRobot(info Info) *Robot {
	return &Robot{
		Info:    info,
		piece:   info.Piece,
		pos:     info.Home.Center(),
		heading: grid.NormalizeHeading(info.DefaultHeading),
	}
}

func (r *Robot) Position() grid.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pos
}

func (r *Robot) Heading() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.heading
}

// Pose returns position and heading read together.
func (r *Robot) Pose() (grid.Position, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pos, r.heading
}

// Piece returns the current piece tag, which changes on promotion.
func (r *Robot) Piece() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.piece
}

func (r *Robot) SetPiece(piece string) {
	r.mu.Lock()
	r.piece = piece
	r.mu.Unlock()
}

// Connected is false while no tunnel is attached.
func (r *Robot) Connected() bool {
	r.mu.RLock()
	t := r.tunnel
	r.mu.RUnlock()
	return t != nil && t.Connected()
}

func (r *Robot) Tunnel() Tunnel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tunnel
}

func (r *Robot) setTunnel(t Tunnel) {
	r.mu.Lock()
	r.tunnel = t
	r.mu.Unlock()
}

func (r *Robot) setPose(pos grid.Position, heading float64) {
	r.mu.Lock()
	r.pos = pos
	r.heading = grid.NormalizeHeading(heading)
	r.mu.Unlock()
}

func (r *Robot) send(ctx context.Context, p protocol.Packet) (protocol.Packet, error) {
	t := r.Tunnel()
	if t == nil || !t.Connected() {
		return nil, fmt.Errorf("%s: %w", r.ID, ErrNotConnected)
	}
	reply, err := t.Send(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", r.ID, p.PacketType(), err)
	}
	return reply, nil
}

// commit moves the robot's cell in the registry, then stores the new pose.
// The occupancy map only follows the robot when it comes to rest on a cell
// centre; a robot nudged off-centre keeps its logical cell. If the cell is
// taken nothing changes, so pose and cell never disagree.
func (r *Robot) commit(pos grid.Position, heading float64, cause protocol.Packet) error {
	if r.reg == nil {
		r.setPose(pos, heading)
		return nil
	}
	cell := grid.FromPosition(pos)
	if cell.Center().ApproxEqual(pos, poseEpsilon) {
		if err := r.reg.Relocate(r.ID, cell); err != nil {
			return err
		}
	}
	r.setPose(pos, heading)
	r.reg.notify(r, cause)
	return nil
}

// RelativeRotate turns in place by delta radians (clockwise positive).
func (r *Robot) RelativeRotate(ctx context.Context, delta float64) error {
	p := &protocol.TurnByAngle{DeltaHeadingRadians: delta}
	if _, err := r.send(ctx, p); err != nil {
		return err
	}
	pos, heading := r.Pose()
	return r.commit(pos, heading+delta, p)
}

// AbsoluteRotate turns the shorter way to face heading.
func (r *Robot) AbsoluteRotate(ctx context.Context, heading float64) error {
	delta := grid.ShortestTurn(r.Heading(), heading)
	if math.Abs(delta) < poseEpsilon {
		return nil
	}
	p := &protocol.TurnByAngle{DeltaHeadingRadians: delta}
	if _, err := r.send(ctx, p); err != nil {
		return err
	}
	return r.commit(r.Position(), heading, p)
}

// DriveTiles drives straight along the current heading.
func (r *Robot) DriveTiles(ctx context.Context, tiles float64) error {
	p := &protocol.DriveTiles{TileDistance: tiles}
	if _, err := r.send(ctx, p); err != nil {
		return err
	}
	pos, heading := r.Pose()
	return r.commit(pos.Add(grid.HeadingVector(heading).Scale(tiles)), heading, p)
}

// DriveTo turns to face target, drives the distance and commits exactly
// target so rounding never accumulates.
func (r *Robot) DriveTo(ctx context.Context, target grid.Position) error {
	pos := r.Position()
	d := target.Sub(pos)
	dist := d.Length()
	if dist < poseEpsilon {
		return nil
	}
	if err := r.AbsoluteRotate(ctx, d.Angle()); err != nil {
		return err
	}
	p := &protocol.DriveTiles{TileDistance: dist}
	if _, err := r.send(ctx, p); err != nil {
		return err
	}
	return r.commit(target, r.Heading(), p)
}

// TankDrive sets raw wheel power. The pose is not tracked while tank driving.
func (r *Robot) TankDrive(ctx context.Context, left, right float64) error {
	p := &protocol.DriveTank{Left: left, Right: right}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := r.send(ctx, p); err != nil {
		return err
	}
	if r.reg != nil {
		r.reg.notify(r, p)
	}
	return nil
}

// EStop asks the robot to stop immediately.
func (r *Robot) EStop(ctx context.Context) error {
	_, err := r.send(ctx, &protocol.EStop{})
	return err
}

// QueryVar reads a firmware tunable.
func (r *Robot) QueryVar(ctx context.Context, name string, vt protocol.VarType) (float64, error) {
	reply, err := r.send(ctx, &protocol.QueryVar{Var: name, VarType: vt})
	if err != nil {
		return 0, err
	}
	qr, ok := reply.(*protocol.QueryResponse)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected reply %T to QUERY_VAR", r.ID, reply)
	}
	return qr.Value, nil
}

// SetVar writes a firmware tunable.
func (r *Robot) SetVar(ctx context.Context, name string, vt protocol.VarType, value float64) error {
	_, err := r.send(ctx, &protocol.SetVar{Var: name, VarType: vt, Value: value})
	return err
}
