package fleet

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// Registry maps robot id <-> Robot and cell <-> robot id. A cell holds at most
// one robot; Relocate swaps a robot's mapping under a single lock.
type Registry struct {
	mu       sync.RWMutex
	robots   map[string]*Robot
	byCell   map[grid.GridIndices]string
	cellOf   map[string]grid.GridIndices
	detached map[string]bool

	obsMu     sync.RWMutex
	observers []func(Update)

	// DebugStacks attaches the caller's stack to every Update.
	DebugStacks bool
}

func NewRegistry() *Registry {
	return &Registry{
		robots:   make(map[string]*Robot),
		byCell:   make(map[grid.GridIndices]string),
		cellOf:   make(map[string]grid.GridIndices),
		detached: make(map[string]bool),
	}
}

// Add registers a robot at the cell containing its current position.
func (g *Registry) Add(r *Robot) error {
	cell := grid.FromPosition(r.Position())
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.robots[r.ID]; ok {
		return fmt.Errorf("%s: %w", r.ID, ErrDuplicateRobot)
	}
	if other, ok := g.byCell[cell]; ok {
		return fmt.Errorf("add %s at %s held by %s: %w", r.ID, cell, other, ErrCellOccupied)
	}
	r.reg = g
	g.robots[r.ID] = r
	g.byCell[cell] = r.ID
	g.cellOf[r.ID] = cell
	return nil
}

func (g *Registry) Get(id string) (*Robot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.robots[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrRobotNotFound)
	}
	return r, nil
}

// RobotAt returns the robot mapped to cell.
func (g *Registry) RobotAt(cell grid.GridIndices) (*Robot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byCell[cell]
	if !ok {
		return nil, fmt.Errorf("%s: %w", cell, ErrCellEmpty)
	}
	return g.robots[id], nil
}

func (g *Registry) IsOccupied(cell grid.GridIndices) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byCell[cell]
	return ok
}

// CellOf returns the logical cell of a robot.
func (g *Registry) CellOf(id string) (grid.GridIndices, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cell, ok := g.cellOf[id]
	if !ok {
		return grid.GridIndices{}, fmt.Errorf("%q: %w", id, ErrRobotNotFound)
	}
	return cell, nil
}

// All returns every robot sorted by id.
func (g *Registry) All() []*Robot {
	g.mu.RLock()
	out := make([]*Robot, 0, len(g.robots))
	for _, r := range g.robots {
		out = append(out, r)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDsByCell returns a copy of the occupancy map.
func (g *Registry) IDsByCell() map[grid.GridIndices]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[grid.GridIndices]string, len(g.byCell))
	for k, v := range g.byCell {
		out[k] = v
	}
	return out
}

// Relocate moves id's mapping to cell.
func (g *Registry) Relocate(id string, cell grid.GridIndices) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.cellOf[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrRobotNotFound)
	}
	if old == cell {
		return nil
	}
	if other, ok := g.byCell[cell]; ok {
		return fmt.Errorf("relocate %s to %s held by %s: %w", id, cell, other, ErrCellOccupied)
	}
	delete(g.byCell, old)
	g.byCell[cell] = id
	g.cellOf[id] = cell
	return nil
}

// Attach binds a tunnel to a robot and clears its disconnected mark.
func (g *Registry) Attach(id string, t Tunnel) error {
	r, err := g.Get(id)
	if err != nil {
		return err
	}
	r.setTunnel(t)
	g.mu.Lock()
	delete(g.detached, id)
	g.mu.Unlock()
	return nil
}

// Detach drops a robot's tunnel and marks it disconnected. The robot keeps
// its identity and cell.
func (g *Registry) Detach(id string) error {
	r, err := g.Get(id)
	if err != nil {
		return err
	}
	r.setTunnel(nil)
	g.mu.Lock()
	g.detached[id] = true
	g.mu.Unlock()
	return nil
}

// Disconnected lists robots detached since their last Attach, sorted.
func (g *Registry) Disconnected() []string {
	g.mu.RLock()
	out := make([]string, 0, len(g.detached))
	for id := range g.detached {
		out = append(out, id)
	}
	g.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subscribe registers fn to receive every Update.
func (g *Registry) Subscribe(fn func(Update)) {
	g.obsMu.Lock()
	g.observers = append(g.observers, fn)
	g.obsMu.Unlock()
}

func (g *Registry) notify(r *Robot, cause protocol.Packet) {
	pos, heading := r.Pose()
	u := Update{
		RobotID:  r.ID,
		Position: pos,
		Heading:  heading,
		Packet:   cause,
		Time:     time.Now().UTC(),
	}
	u.Cell, _ = g.CellOf(r.ID)
	if g.DebugStacks {
		u.Stack = string(debug.Stack())
	}
	g.obsMu.RLock()
	obs := g.observers
	g.obsMu.RUnlock()
	for _, fn := range obs {
		fn(u)
	}
}
