package robotstate

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

// Manager provides write-through robot state: SQL first, then the cache.
// A nil cache leaves SQL as the only source.
type Manager struct {
	db    *store.DB
	cache Cache
}

func NewManager(db *store.DB, cache Cache) *Manager {
	return &Manager{db: db, cache: cache}
}

// Register stores a robot's identity and current pose.
func (m *Manager) Register(r *store.Robot) error {
	if err := m.db.UpsertRobot(r); err != nil {
		return err
	}
	m.refresh(r.ID)
	return nil
}

// UpdatePose records a committed pose.
func (m *Manager) UpdatePose(id string, pos grid.Position, heading float64, cell grid.GridIndices, piece string) error {
	if err := m.db.UpdateRobotPose(id, pos, heading, cell, piece); err != nil {
		return err
	}
	if m.cache == nil {
		return nil
	}
	ctx := context.Background()
	s, err := m.cache.GetState(ctx, id)
	if err != nil || s == nil {
		m.refresh(id)
		return nil
	}
	s.Position, s.Heading, s.Cell, s.Piece = pos, heading, cell, piece
	s.UpdatedAt = time.Now()
	if err := m.cache.SetState(ctx, s); err != nil {
		log.Printf("robotstate: cache pose for %s: %v", id, err)
	}
	return nil
}

func (m *Manager) SetConnected(id string, connected bool) error {
	if err := m.db.SetRobotConnected(id, connected); err != nil {
		return err
	}
	m.refresh(id)
	return nil
}

// Get reads a robot's state from the cache, falling back to SQL.
func (m *Manager) Get(id string) (*RobotState, error) {
	if m.cache != nil {
		if s, err := m.cache.GetState(context.Background(), id); err == nil && s != nil {
			return s, nil
		}
	}
	r, err := m.db.GetRobot(id)
	if err != nil {
		return nil, err
	}
	return fromRow(r), nil
}

// GetAll returns every robot's state sorted by id, preferring the cache.
func (m *Manager) GetAll() ([]*RobotState, error) {
	if m.cache != nil {
		ids, err := m.cache.GetAllIDs(context.Background())
		if err == nil && len(ids) > 0 {
			out := make([]*RobotState, 0, len(ids))
			for _, id := range ids {
				if s, err := m.Get(id); err == nil {
					out = append(out, s)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
			return out, nil
		}
	}
	rows, err := m.db.ListRobots()
	if err != nil {
		return nil, err
	}
	out := make([]*RobotState, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

// SyncRedisFromSQL rebuilds the cache from SQL. Called on startup.
func (m *Manager) SyncRedisFromSQL() error {
	if m.cache == nil {
		return nil
	}
	ctx := context.Background()
	m.cache.FlushAll(ctx)

	rows, err := m.db.ListRobots()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := m.cache.SetState(ctx, fromRow(r)); err != nil {
			log.Printf("robotstate: sync %s: %v", r.ID, err)
		}
	}
	log.Printf("robotstate: synced %d robots to redis", len(rows))
	return nil
}

func (m *Manager) refresh(id string) {
	if m.cache == nil {
		return
	}
	r, err := m.db.GetRobot(id)
	if err != nil {
		log.Printf("robotstate: refresh %s: %v", id, err)
		return
	}
	if err := m.cache.SetState(context.Background(), fromRow(r)); err != nil {
		log.Printf("robotstate: refresh %s: %v", id, err)
	}
}
