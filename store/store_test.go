package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(&config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`UPDATE robots SET pos_x=?, pos_y=? WHERE id=?`)
	want := `UPDATE robots SET pos_x=$1, pos_y=$2 WHERE id=$3`
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
	pg := &DB{dialect: postgresDialect{}, driver: "postgres"}
	if q := pg.Q(`SELECT 1 WHERE a=? AND b=?`); q != `SELECT 1 WHERE a=$1 AND b=$2` {
		t.Errorf("Q = %q", q)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 10, 19, 19, 37, 20, 868153343, time.UTC)
	for _, in := range []any{
		"2026-10-19 19:37:20.868153343 +0000 UTC",
		"2026-10-19T19:37:20.868153343Z",
		[]byte("2026-10-19T14:37:20.868153343-05:00"),
		want.In(time.FixedZone("CDT", -5*3600)),
	} {
		if got := parseTime(in); !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("parseTime(%v) = %v, want %v", in, got, want)
		}
	}
	if got := parseTime("2026-10-19 19:37:20"); !got.Equal(want.Truncate(time.Second)) {
		t.Errorf("seconds layout = %v", got)
	}
	if got := parseTime(nil); !got.IsZero() {
		t.Errorf("nil = %v", got)
	}
	if parseTimePtr("garbage") != nil {
		t.Error("unparseable time should be nil")
	}
}

func TestRobotUpsertAndPose(t *testing.T) {
	db := testDB(t)

	r := &Robot{
		ID: "robot-1", MAC: "aa:bb", Piece: "rook", Color: "white",
		Home: grid.GridIndices{I: 2, J: 0}, Default: grid.GridIndices{I: 2, J: 2},
		Position: grid.Position{X: 2.5, Y: 0.5}, Heading: 1.5, Cell: grid.GridIndices{I: 2, J: 0},
	}
	if err := db.UpsertRobot(r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.MAC = "cc:dd"
	if err := db.UpsertRobot(r); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	if err := db.UpdateRobotPose("robot-1", grid.Position{X: 2.5, Y: 2.5}, 0.25, grid.GridIndices{I: 2, J: 2}, "queen"); err != nil {
		t.Fatalf("update pose: %v", err)
	}
	if err := db.SetRobotConnected("robot-1", true); err != nil {
		t.Fatalf("set connected: %v", err)
	}

	got, err := db.GetRobot("robot-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MAC != "cc:dd" {
		t.Errorf("MAC = %q, want cc:dd", got.MAC)
	}
	if got.Cell != (grid.GridIndices{I: 2, J: 2}) || got.Position.Y != 2.5 || got.Heading != 0.25 {
		t.Errorf("pose = %+v", got)
	}
	if got.Piece != "queen" {
		t.Errorf("Piece = %q", got.Piece)
	}
	if !got.Connected {
		t.Error("Connected should be true")
	}
	if got.Home != (grid.GridIndices{I: 2, J: 0}) || got.Default != (grid.GridIndices{I: 2, J: 2}) {
		t.Errorf("home/default = %v %v", got.Home, got.Default)
	}

	ids, err := db.ListConnectedRobots()
	if err != nil {
		t.Fatalf("list connected: %v", err)
	}
	if len(ids) != 1 || ids[0] != "robot-1" {
		t.Errorf("connected = %v", ids)
	}

	if _, err := db.GetRobot("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing robot err = %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	s := &Snapshot{Label: "before e2e4", Robots: []SnapshotRobot{
		{RobotID: "robot-5", Position: grid.Position{X: 6.5, Y: 3.5}, Heading: 1.57, Cell: grid.GridIndices{I: 6, J: 3}, Piece: "pawn"},
		{RobotID: "robot-1", Position: grid.Position{X: 2.5, Y: 2.5}, Heading: 1.57, Cell: grid.GridIndices{I: 2, J: 2}, Piece: "rook"},
	}}
	if err := db.SaveSnapshot(s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.ID == 0 {
		t.Fatal("ID should be assigned")
	}
	second := &Snapshot{Label: "after"}
	if err := db.SaveSnapshot(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := db.GetSnapshot(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "before e2e4" || len(got.Robots) != 2 {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.Robots[0].RobotID != "robot-1" || got.Robots[1].Cell != (grid.GridIndices{I: 6, J: 3}) {
		t.Errorf("robots = %+v", got.Robots)
	}
	if got.TakenAt.IsZero() {
		t.Error("TakenAt should be set")
	}

	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest = %d, want %d", latest.ID, second.ID)
	}

	list, err := db.ListSnapshots(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("list = %+v", list)
	}

	if err := db.DeleteSnapshot(s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetSnapshot(s.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("deleted snapshot err = %v", err)
	}
	if err := db.DeleteSnapshot(s.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestActionHistory(t *testing.T) {
	db := testDB(t)

	start := time.Now().Add(-time.Second)
	end := time.Now()
	a := &Action{CommandID: 1, Name: "move robot-1 a2->a4", Robots: []string{"robot-1", "robot-9"}, Status: ActionSucceeded, StartedAt: &start, FinishedAt: &end}
	if err := db.InsertAction(a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertAction(&Action{CommandID: 2, Name: "reset all", Status: ActionFailed, Error: "stalled"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.ListActions(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].CommandID != 2 || got[0].Error != "stalled" || got[0].StartedAt != nil {
		t.Errorf("newest = %+v", got[0])
	}
	if len(got[1].Robots) != 2 || got[1].Robots[1] != "robot-9" {
		t.Errorf("robots = %v", got[1].Robots)
	}
	if got[1].FinishedAt == nil || !got[1].FinishedAt.Equal(end) {
		t.Errorf("finished = %v, want %v", got[1].FinishedAt, end)
	}
	if got[1].StartedAt == nil || !got[1].StartedAt.Equal(start) {
		t.Errorf("started = %v, want %v", got[1].StartedAt, start)
	}
}

func TestAuditLog(t *testing.T) {
	db := testDB(t)

	for _, e := range []*AuditEntry{
		{Subject: AuditRobot, SubjectID: "robot-3", Action: "disconnected", Detail: "heartbeat"},
		{Subject: AuditFleet, SubjectID: FleetSubjectID, Action: "paused", Detail: "robot-3 disconnected"},
		{Subject: AuditRobot, SubjectID: "robot-3", Action: "reconnected", Actor: "admin"},
	} {
		if err := db.RecordAudit(e); err != nil {
			t.Fatalf("record: %v", err)
		}
		if e.ID == 0 {
			t.Fatal("ID should be assigned")
		}
	}

	all, err := db.ListAuditLog(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Action != "reconnected" || all[0].Actor != "admin" {
		t.Fatalf("audit = %+v", all)
	}
	if all[1].Actor != "system" || all[1].CreatedAt.IsZero() {
		t.Errorf("fleet entry = %+v", all[1])
	}
	mine, err := db.ListSubjectAudit(AuditRobot, "robot-3", 0)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if len(mine) != 2 || mine[1].Detail != "heartbeat" {
		t.Errorf("subject audit = %+v", mine)
	}
	one, _ := db.ListSubjectAudit(AuditRobot, "robot-3", 1)
	if len(one) != 1 {
		t.Errorf("limited = %d, want 1", len(one))
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)

	first := &OutboxMessage{Topic: "chessbots.fleet", MsgType: "robot.update", MsgID: "m1", Source: "chessbotsd", Payload: []byte(`{"a":1}`)}
	second := &OutboxMessage{Topic: "chessbots.fleet", MsgType: "fleet.status", MsgID: "m2", Source: "chessbotsd", Payload: []byte(`{"a":2}`)}
	for _, m := range []*OutboxMessage{first, second} {
		if err := db.EnqueueOutbox(m); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	msgs, err := db.ListPendingOutbox(10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].MsgType != "robot.update" || msgs[0].MsgID != "m1" || string(msgs[1].Payload) != `{"a":2}` {
		t.Fatalf("pending = %+v", msgs)
	}
	if err := db.FailOutbox(second.ID, errors.New("broker down")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := db.AckOutbox(first.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	msgs, _ = db.ListPendingOutbox(10, 0)
	if len(msgs) != 1 || msgs[0].Retries != 1 || msgs[0].LastError != "broker down" {
		t.Errorf("after ack = %+v", msgs)
	}
	if n, _ := db.CountPendingOutbox(1); n != 0 {
		t.Errorf("pending under 1 retry = %d, want 0", n)
	}
	if n, _ := db.CountPendingOutbox(0); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestOperators(t *testing.T) {
	db := testDB(t)

	exists, err := db.HasOperators()
	if err != nil || exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}
	if err := db.CreateOperator("admin", "hash1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.CreateOperator("admin", "hash2"); err == nil {
		t.Error("duplicate username should fail")
	}
	if err := db.SetOperatorPassword("admin", "hash3"); err != nil {
		t.Fatalf("update: %v", err)
	}
	o, err := db.GetOperator("admin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.PasswordHash != "hash3" || o.LastLogin != nil || o.CreatedAt.IsZero() {
		t.Errorf("operator = %+v", o)
	}
	if err := db.RecordOperatorLogin("admin"); err != nil {
		t.Fatalf("login: %v", err)
	}
	o, _ = db.GetOperator("admin")
	if o.LastLogin == nil {
		t.Error("LastLogin should be set")
	}
	exists, _ = db.HasOperators()
	if !exists {
		t.Error("operator should exist")
	}
}
