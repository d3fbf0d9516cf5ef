package robotstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

type memCache struct {
	states map[string]*RobotState
	sets   int
}

func newMemCache() *memCache { return &memCache{states: map[string]*RobotState{}} }

func (c *memCache) SetState(_ context.Context, s *RobotState) error {
	cp := *s
	c.states[s.ID] = &cp
	c.sets++
	return nil
}

func (c *memCache) GetState(_ context.Context, id string) (*RobotState, error) {
	s, ok := c.states[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (c *memCache) GetAllIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(c.states))
	for id := range c.states {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *memCache) FlushAll(context.Context) error {
	c.states = map[string]*RobotState{}
	return nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func register(t *testing.T, m *Manager, id string) {
	t.Helper()
	err := m.Register(&store.Robot{
		ID: id, Piece: "pawn", Color: "white",
		Home: grid.GridIndices{I: 2, J: 0}, Default: grid.GridIndices{I: 2, J: 3},
		Position: grid.Position{X: 2.5, Y: 0.5}, Cell: grid.GridIndices{I: 2, J: 0},
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

func TestManagerWritesThroughToCache(t *testing.T) {
	db := testDB(t)
	cache := newMemCache()
	m := NewManager(db, cache)
	register(t, m, "robot-1")

	if _, ok := cache.states["robot-1"]; !ok {
		t.Fatal("register did not populate cache")
	}

	pos := grid.Position{X: 2.5, Y: 3.5}
	if err := m.UpdatePose("robot-1", pos, 0.5, grid.GridIndices{I: 2, J: 3}, "queen"); err != nil {
		t.Fatalf("UpdatePose: %v", err)
	}
	s := cache.states["robot-1"]
	if s.Position != pos || s.Piece != "queen" || s.Cell.J != 3 {
		t.Errorf("cache state = %+v", s)
	}

	row, err := db.GetRobot("robot-1")
	if err != nil {
		t.Fatalf("GetRobot: %v", err)
	}
	if row.Position != pos || row.Piece != "queen" {
		t.Errorf("sql row = %+v", row)
	}
}

func TestManagerFallsBackToSQL(t *testing.T) {
	db := testDB(t)
	m := NewManager(db, nil)
	register(t, m, "robot-2")
	register(t, m, "robot-1")

	if err := m.SetConnected("robot-2", true); err != nil {
		t.Fatalf("SetConnected: %v", err)
	}
	s, err := m.Get("robot-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !s.Connected {
		t.Error("robot-2 should be connected")
	}

	all, err := m.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != "robot-1" {
		t.Errorf("GetAll = %+v", all)
	}
	if err := m.SyncRedisFromSQL(); err != nil {
		t.Errorf("SyncRedisFromSQL without cache: %v", err)
	}
}

func TestSyncRedisFromSQL(t *testing.T) {
	db := testDB(t)
	m := NewManager(db, nil)
	register(t, m, "robot-1")
	register(t, m, "robot-2")

	cache := newMemCache()
	cache.states["stale"] = &RobotState{ID: "stale"}
	m = NewManager(db, cache)
	if err := m.SyncRedisFromSQL(); err != nil {
		t.Fatalf("SyncRedisFromSQL: %v", err)
	}
	if _, ok := cache.states["stale"]; ok {
		t.Error("stale entry survived sync")
	}
	all, err := m.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 || all[0].ID != "robot-1" || all[1].ID != "robot-2" {
		t.Errorf("GetAll = %+v", all)
	}
}
