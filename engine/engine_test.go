package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/messaging"
	"github.com/Comet-Robotics/chessbots-server-sub000/motion"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
	"github.com/Comet-Robotics/chessbots-server-sub000/robotstate"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Server.ListenAddr = ""
	cfg.Motion.TimePoint = 0
	cfg.Messaging.Backend = "mqtt"
	cfg.Robots = []config.RobotConfig{
		{ID: "robot-1", MAC: "virtual-01", Piece: "rook", Color: "white",
			Home: grid.GridIndices{I: 2, J: 0}, Default: grid.GridIndices{I: 2, J: 2}, Heading: math.Pi / 2, Virtual: true},
		{ID: "robot-2", MAC: "virtual-02", Piece: "knight", Color: "white",
			Home: grid.GridIndices{I: 3, J: 0}, Default: grid.GridIndices{I: 3, J: 2}, Heading: math.Pi / 2, Virtual: true},
	}
	return cfg
}

func openDB(t *testing.T, path string) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: path}})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEngine(t *testing.T, db *store.DB) *Engine {
	t.Helper()
	e, err := New(Config{
		AppConfig:  testConfig(),
		DB:         db,
		RobotState: robotstate.NewManager(db, nil),
		LogFunc:    func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, r := range e.Registry().All() {
		if v, ok := e.Virtual(r.ID); ok {
			v.TileTime, v.TurnTime = 0, 0
		}
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func startEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db := openDB(t, filepath.Join(t.TempDir(), "engine.db"))
	return newEngine(t, db), db
}

func wait(t *testing.T, h *command.Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

// setUp drives both robots to their default squares.
func setUp(t *testing.T, e *Engine) {
	t.Helper()
	h, err := e.Setup(context.Background(), false)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := wait(t, h); err != nil {
		t.Fatalf("setup: %v", err)
	}
	e.Executor().Wait()
}

func squareMove(t *testing.T, from, to string) motion.Move {
	t.Helper()
	mv, err := motion.SquareMove{From: from, To: to}.Move()
	if err != nil {
		t.Fatalf("Move(%s-%s): %v", from, to, err)
	}
	return mv
}

func outboxTypes(t *testing.T, db *store.DB) map[string]int {
	t.Helper()
	msgs, err := db.ListPendingOutbox(1000, 0)
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	out := map[string]int{}
	for _, m := range msgs {
		out[m.MsgType]++
	}
	return out
}

func TestSetupAndMoveArePersisted(t *testing.T) {
	e, db := startEngine(t)
	setUp(t, e)

	if c, _ := e.Registry().CellOf("robot-1"); c != (grid.GridIndices{I: 2, J: 2}) {
		t.Fatalf("robot-1 at %v after setup", c)
	}

	h, plan, err := e.HandleMove(context.Background(), squareMove(t, "a1", "a4"), "req-7")
	if err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	if plan.Type != motion.Vertical {
		t.Errorf("move type = %v", plan.Type)
	}
	if err := wait(t, h); err != nil {
		t.Fatalf("move: %v", err)
	}
	e.Executor().Wait()

	s, err := e.RobotState().Get("robot-1")
	if err != nil {
		t.Fatalf("robot state: %v", err)
	}
	if s.Cell != (grid.GridIndices{I: 2, J: 5}) {
		t.Errorf("persisted cell = %v, want (2,5)", s.Cell)
	}

	actions, err := db.ListActions(10)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %d, want 2 (setup + move)", len(actions))
	}
	for _, a := range actions {
		if a.Status != store.ActionSucceeded {
			t.Errorf("action %q status = %s", a.Name, a.Status)
		}
	}
	if actions[0].CommandID != int64(h.ID) {
		t.Errorf("newest action command id = %d, want %d", actions[0].CommandID, h.ID)
	}

	types := outboxTypes(t, db)
	if types[messaging.TypeActionOutcome] != 2 {
		t.Errorf("action.outcome messages = %d", types[messaging.TypeActionOutcome])
	}
	if types[messaging.TypeRobotUpdate] == 0 {
		t.Error("no robot.update messages queued")
	}

	msgs, _ := db.ListPendingOutbox(1000, 0)
	found := false
	for _, m := range msgs {
		if m.MsgType != messaging.TypeActionOutcome {
			continue
		}
		env, err := messaging.DecodeEnvelope(m.Payload)
		if err != nil {
			t.Fatalf("decode outbox: %v", err)
		}
		if o := env.Payload.(messaging.ActionOutcome); o.RequestID == "req-7" {
			found = true
		}
	}
	if !found {
		t.Error("outcome for req-7 not queued")
	}
}

func TestMoveFailureRecorded(t *testing.T) {
	e, db := startEngine(t)
	setUp(t, e)

	v, _ := e.Virtual("robot-1")
	v.FailNext(protocol.TypeDriveTiles, "wheel slip")
	h, _, err := e.HandleMove(context.Background(), squareMove(t, "a1", "a3"), "")
	if err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	if err := wait(t, h); err == nil {
		t.Fatal("expected move to fail")
	}
	e.Executor().Wait()

	actions, _ := db.ListActions(1)
	if len(actions) != 1 || actions[0].Status != store.ActionFailed {
		t.Fatalf("latest action = %+v", actions)
	}
	audit, _ := db.ListAuditLog(50)
	failed := false
	for _, a := range audit {
		if a.Subject == store.AuditCommand && a.Action == "failed" && a.SubjectID == fmt.Sprint(h.ID) {
			failed = true
		}
	}
	if !failed {
		t.Error("no audit entry for failed command")
	}
}

func TestConflictingMoveRejected(t *testing.T) {
	e, _ := startEngine(t)
	setUp(t, e)

	e.Pause("hold", "test")
	h, _, err := e.HandleMove(context.Background(), squareMove(t, "a1", "a4"), "")
	if err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	_, _, err = e.HandleMove(context.Background(), squareMove(t, "a1", "a3"), "")
	if !errors.Is(err, command.ErrRequirementConflict) {
		t.Fatalf("second move err = %v, want requirement conflict", err)
	}
	e.Unpause("test")
	if err := wait(t, h); err != nil {
		t.Fatalf("held move: %v", err)
	}
}

func TestPauseHoldsUntilUnpause(t *testing.T) {
	e, db := startEngine(t)
	setUp(t, e)

	if !e.Pause("arbiter", "test") {
		t.Fatal("Pause should report a change")
	}
	if e.Pause("again", "test") {
		t.Error("second Pause should be a no-op")
	}
	if paused, reason := e.Paused(); !paused || reason != "arbiter" {
		t.Errorf("Paused = %v %q", paused, reason)
	}

	h, _, err := e.HandleMove(context.Background(), squareMove(t, "b1", "c3"), "")
	if err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	select {
	case <-h.Done():
		t.Fatal("move ran while paused")
	case <-time.After(50 * time.Millisecond):
	}

	if !e.Unpause("test") {
		t.Fatal("Unpause should report a change")
	}
	if err := wait(t, h); err != nil {
		t.Fatalf("move after unpause: %v", err)
	}
	if c, _ := e.Registry().CellOf("robot-2"); c != (grid.GridIndices{I: 4, J: 4}) {
		t.Errorf("robot-2 at %v, want c3", c)
	}

	audit, _ := db.ListSubjectAudit(store.AuditFleet, store.FleetSubjectID, 0)
	var actions []string
	for _, a := range audit {
		actions = append(actions, a.Action)
	}
	if len(actions) != 2 {
		t.Errorf("fleet audit = %v", actions)
	}
	if outboxTypes(t, db)[messaging.TypeFleetStatus] != 2 {
		t.Error("expected a fleet.status message per pause and unpause")
	}
}

func TestDisconnectPausesAndReconnectResumes(t *testing.T) {
	e, _ := startEngine(t)
	em := &tunnelEmitter{bus: e.Events}

	em.EmitRobotDisconnected("robot-1", "heartbeat timeout")
	em.EmitRobotDisconnected("robot-2", "heartbeat timeout")
	paused, reason := e.Paused()
	if !paused || reason != "robot robot-1 disconnected" {
		t.Fatalf("Paused = %v %q", paused, reason)
	}

	em.EmitRobotReconnected("robot-1", 1)
	if paused, _ := e.Paused(); !paused {
		t.Fatal("fleet resumed with a robot still missing")
	}
	em.EmitRobotReconnected("robot-2", 0)
	if paused, _ := e.Paused(); paused {
		t.Fatal("fleet still paused after last robot reconnected")
	}

	s, err := e.RobotState().Get("robot-2")
	if err != nil || !s.Connected {
		t.Errorf("robot-2 state = %+v, %v", s, err)
	}
}

func TestSnapshotAndRollback(t *testing.T) {
	e, db := startEngine(t)
	setUp(t, e)

	if _, err := e.SaveSnapshot("before e-pawn"); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	h, _, err := e.HandleMove(context.Background(), squareMove(t, "a1", "a5"), "")
	if err != nil {
		t.Fatalf("HandleMove: %v", err)
	}
	if err := wait(t, h); err != nil {
		t.Fatalf("move: %v", err)
	}
	e.Executor().Wait()

	snap, err := e.Rollback("test")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if snap.Label != "before e-pawn" {
		t.Errorf("rolled back to %q", snap.Label)
	}
	if c, _ := e.Registry().CellOf("robot-1"); c != (grid.GridIndices{I: 2, J: 2}) {
		t.Errorf("robot-1 at %v after rollback", c)
	}
	s, _ := e.RobotState().Get("robot-1")
	if s.Cell != (grid.GridIndices{I: 2, J: 2}) {
		t.Errorf("persisted cell after rollback = %v", s.Cell)
	}

	saved, err := db.ListSnapshots(10)
	if err != nil || len(saved) != 1 {
		t.Fatalf("snapshots = %+v, %v", saved, err)
	}
}

func TestRestartRestoresPoses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
	db := openDB(t, path)
	e := newEngine(t, db)
	setUp(t, e)
	e.Stop()

	e2 := newEngine(t, db)
	if c, _ := e2.Registry().CellOf("robot-2"); c != (grid.GridIndices{I: 3, J: 2}) {
		t.Errorf("robot-2 at %v after restart, want its default square", c)
	}
}

func TestGameHandler(t *testing.T) {
	e, db := startEngine(t)
	setUp(t, e)
	gh := &gameHandler{engine: e}
	env := &messaging.Envelope{Source: "game-1"}

	gh.HandleGamePause(env, messaging.GamePause{})
	if paused, reason := e.Paused(); !paused || reason != "game paused" {
		t.Fatalf("Paused = %v %q", paused, reason)
	}
	gh.HandleGameUnpause(env)
	if paused, _ := e.Paused(); paused {
		t.Fatal("still paused")
	}

	gh.HandleMoveRequest(env, messaging.MoveRequest{RequestID: "bad", From: "z9", To: "a1"})
	msgs, _ := db.ListPendingOutbox(1000, 0)
	var rejected *messaging.ActionOutcome
	for _, m := range msgs {
		if m.MsgType != messaging.TypeActionOutcome {
			continue
		}
		var raw struct {
			Payload messaging.ActionOutcome `json:"payload"`
		}
		if err := json.Unmarshal(m.Payload, &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if raw.Payload.RequestID == "bad" {
			rejected = &raw.Payload
		}
	}
	if rejected == nil || rejected.Status != outcomeRejected {
		t.Fatalf("rejection outcome = %+v", rejected)
	}

	gh.HandleMoveRequest(env, messaging.MoveRequest{RequestID: "ok", From: "b1", To: "a3"})
	e.Executor().Wait()
	if c, _ := e.Registry().CellOf("robot-2"); c != (grid.GridIndices{I: 2, J: 4}) {
		t.Errorf("robot-2 at %v, want a3", c)
	}
}

func TestEStopPausesAndSendsStop(t *testing.T) {
	e, _ := startEngine(t)
	if err := e.EStop(context.Background(), "test"); err != nil {
		t.Fatalf("EStop: %v", err)
	}
	if paused, _ := e.Paused(); !paused {
		t.Error("estop should pause the fleet")
	}
	v, _ := e.Virtual("robot-1")
	sent := v.Sent()
	if len(sent) == 0 || sent[len(sent)-1].PacketType() != protocol.TypeEStop {
		t.Errorf("sent = %v", sent)
	}
}
