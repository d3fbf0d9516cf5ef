package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// DriveToCommand drives a robot to a position. Its reverse drives back to
// wherever the robot was when it ran.
type DriveToCommand struct {
	Robot  *fleet.Robot
	Target grid.Position

	mu        sync.Mutex
	ran       bool
	start     grid.Position
	startHead float64
}

func DriveTo(r *fleet.Robot, target grid.Position) *DriveToCommand {
	return &DriveToCommand{Robot: r, Target: target}
}

func (c *DriveToCommand) Name() string {
	return fmt.Sprintf("drive %s to %s", c.Robot.ID, c.Target)
}

func (c *DriveToCommand) Requirements() RequirementSet { return Requires(c.Robot) }

func (c *DriveToCommand) Execute(ctx context.Context) error {
	pos, heading := c.Robot.Pose()
	c.mu.Lock()
	c.ran, c.start, c.startHead = true, pos, heading
	c.mu.Unlock()
	return c.Robot.DriveTo(ctx, c.Target)
}

func (c *DriveToCommand) Reverse() Command {
	return &undo{robot: c.Robot, label: "undo " + c.Name(), run: func(ctx context.Context) error {
		c.mu.Lock()
		ran, start, head := c.ran, c.start, c.startHead
		c.mu.Unlock()
		if !ran {
			return nil
		}
		if err := c.Robot.DriveTo(ctx, start); err != nil {
			return err
		}
		return c.Robot.AbsoluteRotate(ctx, head)
	}}
}

// RotateToCommand turns a robot to an absolute heading. Its reverse restores
// the heading the robot had when it ran.
type RotateToCommand struct {
	Robot   *fleet.Robot
	Heading float64

	mu        sync.Mutex
	ran       bool
	startHead float64
}

func RotateTo(r *fleet.Robot, heading float64) *RotateToCommand {
	return &RotateToCommand{Robot: r, Heading: heading}
}

func (c *RotateToCommand) Name() string {
	return fmt.Sprintf("rotate %s to %.3f", c.Robot.ID, c.Heading)
}

func (c *RotateToCommand) Requirements() RequirementSet { return Requires(c.Robot) }

func (c *RotateToCommand) Execute(ctx context.Context) error {
	h := c.Robot.Heading()
	c.mu.Lock()
	c.ran, c.startHead = true, h
	c.mu.Unlock()
	return c.Robot.AbsoluteRotate(ctx, c.Heading)
}

func (c *RotateToCommand) Reverse() Command {
	return &undo{robot: c.Robot, label: "undo " + c.Name(), run: func(ctx context.Context) error {
		c.mu.Lock()
		ran, head := c.ran, c.startHead
		c.mu.Unlock()
		if !ran {
			return nil
		}
		return c.Robot.AbsoluteRotate(ctx, head)
	}}
}

type undo struct {
	robot *fleet.Robot
	label string
	run   func(ctx context.Context) error
}

func (u *undo) Name() string                      { return u.label }
func (u *undo) Requirements() RequirementSet      { return Requires(u.robot) }
func (u *undo) Execute(ctx context.Context) error { return u.run(ctx) }

// RelativeRotateCommand turns by a delta. Not reversible.
type RelativeRotateCommand struct {
	Robot *fleet.Robot
	Delta float64
}

func RelativeRotate(r *fleet.Robot, delta float64) *RelativeRotateCommand {
	return &RelativeRotateCommand{Robot: r, Delta: delta}
}

func (c *RelativeRotateCommand) Name() string {
	return fmt.Sprintf("turn %s by %.3f", c.Robot.ID, c.Delta)
}
func (c *RelativeRotateCommand) Requirements() RequirementSet { return Requires(c.Robot) }
func (c *RelativeRotateCommand) Execute(ctx context.Context) error {
	return c.Robot.RelativeRotate(ctx, c.Delta)
}

// DriveTilesCommand drives along the current heading. Not reversible.
type DriveTilesCommand struct {
	Robot *fleet.Robot
	Tiles float64
}

func DriveTiles(r *fleet.Robot, tiles float64) *DriveTilesCommand {
	return &DriveTilesCommand{Robot: r, Tiles: tiles}
}

func (c *DriveTilesCommand) Name() string {
	return fmt.Sprintf("drive %s %.3f tiles", c.Robot.ID, c.Tiles)
}
func (c *DriveTilesCommand) Requirements() RequirementSet { return Requires(c.Robot) }
func (c *DriveTilesCommand) Execute(ctx context.Context) error {
	return c.Robot.DriveTiles(ctx, c.Tiles)
}

// RetagCommand changes a robot's piece tag, used for promotion.
type RetagCommand struct {
	Robot *fleet.Robot
	Piece string
}

func Retag(r *fleet.Robot, piece string) *RetagCommand {
	return &RetagCommand{Robot: r, Piece: piece}
}

func (c *RetagCommand) Name() string                 { return fmt.Sprintf("retag %s as %s", c.Robot.ID, c.Piece) }
func (c *RetagCommand) Requirements() RequirementSet { return Requires(c.Robot) }
func (c *RetagCommand) Execute(context.Context) error {
	c.Robot.SetPiece(c.Piece)
	return nil
}

// WaitCommand sleeps. It requires no robots.
type WaitCommand struct {
	Duration time.Duration
}

func Wait(d time.Duration) *WaitCommand { return &WaitCommand{Duration: d} }

func (c *WaitCommand) Name() string                 { return "wait " + c.Duration.String() }
func (c *WaitCommand) Requirements() RequirementSet { return RequirementSet{} }
func (c *WaitCommand) Execute(ctx context.Context) error {
	if c.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(c.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Reversible = (*DriveToCommand)(nil)
	_ Reversible = (*RotateToCommand)(nil)
	_ Command    = (*RelativeRotateCommand)(nil)
	_ Command    = (*DriveTilesCommand)(nil)
	_ Command    = (*RetagCommand)(nil)
	_ Command    = (*WaitCommand)(nil)
)
