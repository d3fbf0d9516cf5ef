package messaging

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

type fakePublisher struct {
	connected bool
	fail      bool
	sent      []string
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, topic+":"+string(payload))
	return nil
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func enqueue(t *testing.T, db *store.DB, topic, msgType, payload string) {
	t.Helper()
	err := db.EnqueueOutbox(&store.OutboxMessage{Topic: topic, MsgType: msgType, MsgID: "id-" + payload, Source: "s1", Payload: []byte(payload)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "outbox.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOutboxDrain(t *testing.T) {
	db := testDB(t)
	enqueue(t, db, "chessbots.fleet", TypeRobotUpdate, "a")
	enqueue(t, db, "chessbots.fleet", TypeFleetStatus, "b")

	pub := &fakePublisher{}
	d := NewOutboxDrainer(db, pub, time.Hour)
	if n := d.Drain(); n != 0 {
		t.Errorf("drained %d while disconnected", n)
	}

	pub.connected = true
	pub.fail = true
	if n := d.Drain(); n != 0 {
		t.Errorf("drained %d while publish failing", n)
	}
	pending, _ := db.ListPendingOutbox(10, 0)
	if len(pending) != 2 || pending[0].Retries != 1 || pending[0].LastError != "broker down" {
		t.Fatalf("pending after failure = %+v", pending)
	}

	pub.fail = false
	if n := d.Drain(); n != 2 {
		t.Errorf("drained %d, want 2", n)
	}
	if len(pub.sent) != 2 || pub.sent[0] != "chessbots.fleet:a" {
		t.Errorf("sent = %v", pub.sent)
	}
	pending, _ = db.ListPendingOutbox(10, 0)
	if len(pending) != 0 {
		t.Errorf("pending after drain = %d", len(pending))
	}
}

func TestOutboxGivesUpAfterRetries(t *testing.T) {
	db := testDB(t)
	enqueue(t, db, "t", TypeActionOutcome, "x")

	pub := &fakePublisher{connected: true, fail: true}
	d := NewOutboxDrainer(db, pub, time.Hour)
	for i := 0; i < maxOutboxRetries+2; i++ {
		d.Drain()
	}
	pending, _ := db.ListPendingOutbox(10, 0)
	if len(pending) != 1 || pending[0].Retries != maxOutboxRetries {
		t.Errorf("pending = %+v", pending)
	}
	if n, _ := db.CountPendingOutbox(maxOutboxRetries); n != 0 {
		t.Errorf("eligible = %d, want 0", n)
	}
}

func TestOutboxStartStop(t *testing.T) {
	db := testDB(t)
	d := NewOutboxDrainer(db, &fakePublisher{}, 10*time.Millisecond)
	d.Start()
	d.Stop()
	d.Stop()
}
