package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

var (
	ErrDestinationOccupied = errors.New("destination occupied")
	ErrUnknownSquare       = errors.New("unknown square")
	ErrNoPiece             = errors.New("no robot on source square")
	ErrNothingToCapture    = errors.New("no robot to capture")
	ErrBadCastle           = errors.New("invalid castling move")
)

// CastleSide marks a castling move.
type CastleSide string

const (
	NoCastle  CastleSide = ""
	KingSide  CastleSide = "king"
	QueenSide CastleSide = "queen"
)

// Move is an abstract move supplied by the rules layer.
type Move struct {
	From      grid.GridIndices `json:"from"`
	To        grid.GridIndices `json:"to"`
	Capture   bool             `json:"capture,omitempty"`
	EnPassant bool             `json:"enPassant,omitempty"`
	Castle    CastleSide       `json:"castle,omitempty"`
	Promotion string           `json:"promotion,omitempty"`
}

// SquareMove is a Move written with algebraic squares.
type SquareMove struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Capture   bool       `json:"capture,omitempty"`
	EnPassant bool       `json:"enPassant,omitempty"`
	Castle    CastleSide `json:"castle,omitempty"`
	Promotion string     `json:"promotion,omitempty"`
}

// Move converts squares to cells.
func (s SquareMove) Move() (Move, error) {
	from, err := grid.ParseSquare(s.From)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrUnknownSquare, err)
	}
	to, err := grid.ParseSquare(s.To)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrUnknownSquare, err)
	}
	return Move{From: from, To: to, Capture: s.Capture, EnPassant: s.EnPassant, Castle: s.Castle, Promotion: s.Promotion}, nil
}

// Plan is a compiled move.
type Plan struct {
	Type       MoveType
	Collisions []string
	Captured   string
	Command    command.Command
}

// Materializer turns moves into command trees against the registry's
// current occupancy.
type Materializer struct {
	reg *fleet.Registry

	Clearance     float64
	TimePoint     time.Duration
	PawnBatchSize int
}

func New(reg *fleet.Registry, cfg config.MotionConfig) *Materializer {
	m := &Materializer{
		reg:           reg,
		Clearance:     cfg.ShimmyClearance,
		TimePoint:     cfg.TimePoint,
		PawnBatchSize: cfg.PawnBatchSize,
	}
	if m.Clearance <= 0 {
		m.Clearance = 0.8
	}
	if m.PawnBatchSize <= 0 {
		m.PawnBatchSize = 4
	}
	return m
}

// Materialize compiles mv into a runnable command.
func (m *Materializer) Materialize(mv Move) (command.Command, error) {
	p, err := m.Plan(mv)
	if err != nil {
		return nil, err
	}
	return p.Command, nil
}

// Plan compiles mv and reports what it found along the way.
func (m *Materializer) Plan(mv Move) (*Plan, error) {
	if !mv.From.IsBoard() || !mv.To.IsBoard() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownSquare, mv.From, mv.To)
	}
	if mv.From == mv.To {
		return nil, fmt.Errorf("move %s to itself", mv.From)
	}
	w := m.world()
	moverID, ok := w.occ[mv.From]
	if !ok {
		return nil, fmt.Errorf("%s: %w", mv.From.Square(), ErrNoPiece)
	}
	if mv.Castle != NoCastle {
		return m.planCastle(w, mv)
	}

	var steps []command.Command
	plan := &Plan{}

	capturedCell, capturing := mv.To, mv.Capture || mv.EnPassant
	if mv.EnPassant {
		capturedCell = grid.GridIndices{I: mv.To.I, J: mv.From.J}
	}
	if capturing {
		victim, ok := w.occ[capturedCell]
		if !ok {
			return nil, fmt.Errorf("%s: %w", capturedCell.Square(), ErrNothingToCapture)
		}
		if mv.EnPassant {
			if _, blocked := w.occ[mv.To]; blocked {
				return nil, fmt.Errorf("en passant to %s: %w", mv.To.Square(), ErrDestinationOccupied)
			}
		}
		home, err := m.planHome(w, victim)
		if err != nil {
			return nil, err
		}
		plan.Captured = victim
		steps = append(steps, home)
	} else if holder, ok := w.occ[mv.To]; ok {
		return nil, fmt.Errorf("%s held by %s: %w", mv.To.Square(), holder, ErrDestinationOccupied)
	}

	mover, err := m.reg.Get(moverID)
	if err != nil {
		return nil, err
	}
	cmd, leg, err := m.planStraight(w, moverID, mv.From, mv.To, true, mover.DefaultHeading)
	if err != nil {
		return nil, err
	}
	plan.Type, plan.Collisions = leg.typ, leg.collisions
	steps = append(steps, cmd)
	if mv.Promotion != "" {
		steps = append(steps, command.Retag(mover, mv.Promotion))
	}

	if len(steps) == 1 {
		plan.Command = steps[0]
	} else {
		seq := command.Sequential(steps...)
		seq.Label = fmt.Sprintf("move %s %s->%s", moverID, mv.From.Square(), mv.To.Square())
		plan.Command = seq
	}
	return plan, nil
}

type legInfo struct {
	typ        MoveType
	collisions []string
}

// planStraight plans one robot moving from one cell to another with shimmies
// for anything in the way. The world is updated to the post-move state.
func (m *Materializer) planStraight(w *world, id string, from, to grid.GridIndices, face bool, heading float64) (command.Command, legInfo, error) {
	r, err := m.reg.Get(id)
	if err != nil {
		return nil, legInfo{}, err
	}
	typ := Classify(from, to)
	collisions := DetectCollisions(w.occ, GridMove{From: from, To: to}, typ)
	info := legInfo{typ: typ, collisions: collisions}

	fromC, toC := from.Center(), to.Center()
	line := Line{From: fromC, To: toC}
	first := line.Direction().Normal()
	path := []grid.Position{toC}

	if typ == Horizontal || typ == Vertical {
		n := laneOffset(from, to)
		first = grid.Position{X: float64(n.I), Y: float64(n.J)}
		if len(collisions) > 1 {
			half := first.Scale(0.5)
			line = Line{From: fromC.Add(half), To: toC.Add(half)}
			path = []grid.Position{line.From, line.To, toC}
		}
	}

	var legs []command.Command
	for _, p := range path {
		legs = append(legs, command.DriveTo(r, p))
	}
	if face {
		legs = append(legs, command.RotateTo(r, heading))
	}
	moverSeq := command.Sequential(legs...)
	moverSeq.Label = fmt.Sprintf("drive %s %s->%s", id, from, to)
	mover := command.WithTimePoint(moverSeq, m.TimePoint)

	w.move(id, to)
	if face {
		w.heading[id] = heading
	}
	if len(collisions) == 0 {
		return mover, info, nil
	}

	shimmies := make([]command.Command, 0, len(collisions))
	for _, cid := range collisions {
		b, err := m.reg.Get(cid)
		if err != nil {
			return nil, info, err
		}
		target := ShimmyTarget(line, w.cellOf[cid].Center(), first, m.Clearance)
		s := command.Sequential(command.DriveTo(b, target), command.RotateTo(b, w.heading[cid]))
		s.Label = fmt.Sprintf("shimmy %s to %s", cid, target)
		shimmies = append(shimmies, command.WithTimePoint(s, m.TimePoint))
	}
	out := command.Parallel(shimmies...)
	out.Label = "shimmy " + id
	restore := out.Reverse()
	seq := command.Sequential(out, mover, restore)
	seq.Label = fmt.Sprintf("move %s %s->%s around %v", id, from, to, collisions)
	return seq, info, nil
}

// world is the planner's view of occupancy, advanced as legs are planned so
// later legs see earlier ones as done.
type world struct {
	occ     Occupancy
	cellOf  map[string]grid.GridIndices
	heading map[string]float64
}

func (m *Materializer) world() *world {
	w := &world{
		occ:     Occupancy(m.reg.IDsByCell()),
		cellOf:  make(map[string]grid.GridIndices),
		heading: make(map[string]float64),
	}
	for cell, id := range w.occ {
		w.cellOf[id] = cell
	}
	for _, r := range m.reg.All() {
		w.heading[r.ID] = r.Heading()
	}
	return w
}

func (w *world) move(id string, to grid.GridIndices) {
	if old, ok := w.cellOf[id]; ok && w.occ[old] == id {
		delete(w.occ, old)
	}
	w.occ[to] = id
	w.cellOf[id] = to
}
