package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// gatedTunnel acknowledges every packet, optionally blocking until released.
type gatedTunnel struct {
	mu      sync.Mutex
	sent    []protocol.Packet
	release chan struct{}
	fail    bool
}

func (g *gatedTunnel) Send(ctx context.Context, p protocol.Packet) (protocol.Packet, error) {
	g.mu.Lock()
	g.sent = append(g.sent, p)
	release, fail := g.release, g.fail
	g.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("stalled")
	}
	return &protocol.ActionSuccess{}, nil
}

func (g *gatedTunnel) Connected() bool { return true }
func (g *gatedTunnel) Close() error    { return nil }

func (g *gatedTunnel) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func testFleet(t *testing.T, n int) (*fleet.Registry, []*fleet.Robot, []*gatedTunnel) {
	t.Helper()
	reg := fleet.NewRegistry()
	var robots []*fleet.Robot
	var tunnels []*gatedTunnel
	// One robot per row, facing +x with a clear row ahead, so drives never
	// meet another robot's cell.
	for i := 0; i < n; i++ {
		r := fleet.NewRobot(fleet.Info{ID: string(rune('a' + i)), Home: grid.GridIndices{I: 2, J: 2 + 2*i}})
		if err := reg.Add(r); err != nil {
			t.Fatal(err)
		}
		tun := &gatedTunnel{}
		if err := reg.Attach(r.ID, tun); err != nil {
			t.Fatal(err)
		}
		robots = append(robots, r)
		tunnels = append(tunnels, tun)
	}
	return reg, robots, tunnels
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("%s did not finish", h.Name)
	}
	return err
}

func TestGroupRequirementsAreUnion(t *testing.T) {
	_, robots, _ := testFleet(t, 3)
	g := Sequential(
		DriveTo(robots[0], grid.Position{X: 2.5, Y: 3.5}),
		Parallel(RotateTo(robots[1], 0), Wait(time.Millisecond)),
	)
	ids := g.Requirements().IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("requirements = %v", ids)
	}
	if len(Wait(time.Second).Requirements()) != 0 {
		t.Error("wait should require nothing")
	}
}

func TestSequentialAbortsOnError(t *testing.T) {
	_, robots, tunnels := testFleet(t, 1)
	tunnels[0].fail = true
	var ran bool
	g := Sequential(
		DriveTiles(robots[0], 1),
		&funcCommand{fn: func() { ran = true }},
	)
	if err := g.Execute(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if ran {
		t.Error("child after failure should not run")
	}
}

func TestThenRunsInOrder(t *testing.T) {
	_, robots, tunnels := testFleet(t, 2)
	c := Then(DriveTiles(robots[0], 1), RotateTo(robots[1], 1))
	if len(c.Children) != 2 {
		t.Fatalf("children = %d", len(c.Children))
	}
	if ids := c.Requirements().IDs(); len(ids) != 2 {
		t.Errorf("requirements = %v", ids)
	}
	if err := c.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tunnels[0].count() != 1 || tunnels[1].count() != 1 {
		t.Errorf("packets a=%d b=%d", tunnels[0].count(), tunnels[1].count())
	}
	if h := robots[1].Heading(); h != 1 {
		t.Errorf("b heading = %v, want 1", h)
	}

	tunnels[0].fail = true
	ran := false
	if err := Then(DriveTiles(robots[0], 1), &funcCommand{fn: func() { ran = true }}).Execute(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if ran {
		t.Error("next ran after a failure")
	}
}

func TestPausedGroupSkipsChildren(t *testing.T) {
	_, robots, tunnels := testFleet(t, 2)
	var gate Switch
	gate.Pause()
	ctx := WithGate(context.Background(), &gate)

	if err := Sequential(DriveTiles(robots[0], 1)).Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if err := Parallel(DriveTiles(robots[1], 1)).Execute(ctx); err != nil {
		t.Fatal(err)
	}
	if tunnels[0].count()+tunnels[1].count() != 0 {
		t.Error("paused groups should not start children")
	}
}

func TestWithTimePointEnforcesMinimumDuration(t *testing.T) {
	_, robots, _ := testFleet(t, 1)
	start := time.Now()
	if err := WithTimePoint(RelativeRotate(robots[0], 0.5), 50*time.Millisecond).Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("time point finished early")
	}
}

func TestReverseRestoresPose(t *testing.T) {
	_, robots, _ := testFleet(t, 1)
	r := robots[0]
	startPos, startHead := r.Pose()

	shimmy := Sequential(
		DriveTo(r, startPos.Add(grid.Position{X: 0, Y: 0.8})),
		RotateTo(r, 1.0),
	)
	restore := shimmy.Reverse()

	// Undo of a command that never ran does nothing.
	if err := restore.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Position() != startPos {
		t.Fatal("reverse moved robot before forward ran")
	}

	if err := shimmy.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := restore.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	pos, head := r.Pose()
	if !pos.ApproxEqual(startPos, 1e-9) || head != startHead {
		t.Errorf("pose after undo = %v %v, want %v %v", pos, head, startPos, startHead)
	}
}

func TestReverseSkipsIrreversible(t *testing.T) {
	_, robots, _ := testFleet(t, 1)
	g := Parallel(DriveTiles(robots[0], 1), Wait(time.Second), RotateTo(robots[0], 1))
	rev := g.Reverse().(*ParallelGroup)
	if len(rev.Children) != 1 {
		t.Errorf("reverse children = %d, want 1", len(rev.Children))
	}
}

func TestExecutorDisjointCommandsBothSucceed(t *testing.T) {
	_, robots, _ := testFleet(t, 2)
	x := NewExecutor(nil)
	x.LogFunc = nil

	h1, err := x.Execute(context.Background(), DriveTiles(robots[0], 1))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := x.Execute(context.Background(), DriveTiles(robots[1], 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := waitHandle(t, h1); err != nil {
		t.Error(err)
	}
	if err := waitHandle(t, h2); err != nil {
		t.Error(err)
	}
	x.Wait()
	if n := len(x.History()); n != 2 {
		t.Errorf("history = %d, want 2", n)
	}
}

func TestExecutorConflictFailsFast(t *testing.T) {
	reg, robots, tunnels := testFleet(t, 2)
	tunnels[0].release = make(chan struct{})
	x := NewExecutor(nil)
	x.LogFunc = nil

	h1, err := x.Execute(context.Background(), DriveTiles(robots[0], 1))
	if err != nil {
		t.Fatal(err)
	}
	_, err = x.Execute(context.Background(), Parallel(DriveTiles(robots[1], 1), RelativeRotate(robots[0], 1)))
	if !errors.Is(err, ErrRequirementConflict) {
		t.Fatalf("second Execute = %v, want ErrRequirementConflict", err)
	}
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("second Execute = %T, want *ConflictError", err)
	}
	if len(cerr.Robots) != 1 || cerr.Robots[0] != "a" {
		t.Errorf("conflict robots = %v", cerr.Robots)
	}
	if tunnels[1].count() != 0 {
		t.Error("rejected command must not start")
	}
	if !x.Busy("a") || x.Busy("b") {
		t.Error("busy state wrong")
	}

	close(tunnels[0].release)
	if err := waitHandle(t, h1); err != nil {
		t.Fatalf("first command affected: %v", err)
	}
	x.Wait()
	if cell, _ := reg.CellOf("a"); cell != (grid.GridIndices{I: 3, J: 2}) {
		t.Errorf("a at %v, want (3,2)", cell)
	}
	if x.Busy("a") {
		t.Error("robot a still busy after completion")
	}
	if _, err := x.Execute(context.Background(), RelativeRotate(robots[0], 1)); err != nil {
		t.Errorf("resubmit after completion: %v", err)
	}
	x.Wait()
}

func TestExecutorHoldsWhilePaused(t *testing.T) {
	_, robots, tunnels := testFleet(t, 1)
	var gate Switch
	gate.Pause()
	x := NewExecutor(&gate)
	x.LogFunc = nil

	var records []Record
	var mu sync.Mutex
	x.OnComplete = func(r Record) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	}

	h, err := x.Execute(context.Background(), Sequential(DriveTiles(robots[0], 1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(x.Running()) != 1 {
		t.Fatal("held command should be registered as running")
	}
	if _, err := x.Execute(context.Background(), DriveTiles(robots[0], 1)); !errors.Is(err, ErrRequirementConflict) {
		t.Errorf("held command should still own its robots: %v", err)
	}
	if tunnels[0].count() != 0 {
		t.Fatal("held command started")
	}

	gate.Resume()
	if n := x.FinishExecution(); n != 1 {
		t.Errorf("FinishExecution = %d, want 1", n)
	}
	if err := waitHandle(t, h); err != nil {
		t.Fatal(err)
	}
	x.Wait()
	if tunnels[0].count() != 1 {
		t.Errorf("packets = %d, want 1", tunnels[0].count())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(records) != 1 || records[0].Robots[0] != "a" {
		t.Errorf("records = %+v", records)
	}
}

func TestClearExecution(t *testing.T) {
	_, robots, _ := testFleet(t, 1)
	var gate Switch
	gate.Pause()
	x := NewExecutor(&gate)
	x.LogFunc = nil

	h, _ := x.Execute(context.Background(), DriveTiles(robots[0], 1))
	if n := x.ClearExecution(); n != 1 {
		t.Errorf("cleared = %d", n)
	}
	if err := waitHandle(t, h); !errors.Is(err, ErrCleared) {
		t.Errorf("held handle err = %v, want ErrCleared", err)
	}
	if len(x.Running()) != 0 {
		t.Error("running set not empty")
	}
	if _, err := x.Execute(context.Background(), DriveTiles(robots[0], 1)); err != nil {
		t.Errorf("robot should be free after clear: %v", err)
	}
}

type funcCommand struct{ fn func() }

func (f *funcCommand) Name() string                 { return "func" }
func (f *funcCommand) Requirements() RequirementSet { return RequirementSet{} }
func (f *funcCommand) Execute(context.Context) error {
	f.fn()
	return nil
}
