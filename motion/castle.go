package motion

import (
	"fmt"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
)

const kingFile = grid.BoardMin + 4

// castleSquares returns the rook's start and target cells and the king's
// target for a castle on the given rank row.
func castleSquares(side CastleSide, j int) (rookFrom, rookTo, kingTo grid.GridIndices, err error) {
	switch side {
	case KingSide:
		return grid.GridIndices{I: grid.BoardMax, J: j}, grid.GridIndices{I: kingFile + 1, J: j}, grid.GridIndices{I: kingFile + 2, J: j}, nil
	case QueenSide:
		return grid.GridIndices{I: grid.BoardMin, J: j}, grid.GridIndices{I: kingFile - 1, J: j}, grid.GridIndices{I: kingFile - 2, J: j}, nil
	}
	return rookFrom, rookTo, kingTo, fmt.Errorf("%w: side %q", ErrBadCastle, side)
}

// behindRow is the deadzone row on the far side of a back rank.
func behindRow(j int) (int, bool) {
	switch j {
	case grid.BoardMin:
		return grid.DeadzoneLow, true
	case grid.BoardMax:
		return grid.DeadzoneHigh, true
	}
	return 0, false
}

func (m *Materializer) planCastle(w *world, mv Move) (*Plan, error) {
	j := mv.From.J
	behind, ok := behindRow(j)
	if !ok || mv.From.I != kingFile {
		return nil, fmt.Errorf("%w: king not on its start square (%s)", ErrBadCastle, mv.From)
	}
	rookFrom, rookTo, kingTo, err := castleSquares(mv.Castle, j)
	if err != nil {
		return nil, err
	}
	if mv.To != kingTo {
		return nil, fmt.Errorf("%w: king must land on %s, not %s", ErrBadCastle, kingTo.Square(), mv.To.Square())
	}
	kingID := w.occ[mv.From]
	rookID, ok := w.occ[rookFrom]
	if !ok {
		return nil, fmt.Errorf("%w: no rook on %s", ErrBadCastle, rookFrom.Square())
	}
	for _, c := range []grid.GridIndices{kingTo, rookTo} {
		if holder, ok := w.occ[c]; ok {
			return nil, fmt.Errorf("castle onto %s held by %s: %w", c.Square(), holder, ErrDestinationOccupied)
		}
	}
	king, err := m.reg.Get(kingID)
	if err != nil {
		return nil, err
	}
	rook, err := m.reg.Get(rookID)
	if err != nil {
		return nil, err
	}

	out := grid.GridIndices{I: rookFrom.I, J: behind}
	along := grid.GridIndices{I: rookTo.I, J: behind}
	for _, c := range []grid.GridIndices{out, along} {
		if holder, ok := w.occ[c]; ok {
			return nil, fmt.Errorf("castle route %s held by %s: %w", c, holder, ErrNoRoute)
		}
	}

	leg1 := command.DriveTo(rook, out.Center())
	w.move(rookID, out)
	kingCmd, info, err := m.planStraight(w, kingID, mv.From, kingTo, true, king.DefaultHeading)
	if err != nil {
		return nil, err
	}
	leg2 := command.DriveTo(rook, along.Center())
	leg3 := command.Sequential(command.DriveTo(rook, rookTo.Center()), command.RotateTo(rook, rook.DefaultHeading))
	w.move(rookID, rookTo)
	w.heading[rookID] = rook.DefaultHeading

	mid := command.Parallel(kingCmd, command.WithTimePoint(leg2, m.TimePoint))
	mid.Label = fmt.Sprintf("castle %s: king and rook", mv.Castle)
	seq := command.Sequential(
		command.WithTimePoint(leg1, m.TimePoint),
		mid,
		command.WithTimePoint(leg3, m.TimePoint),
	)
	seq.Label = fmt.Sprintf("castle %s %s", mv.Castle, mv.From.Square())
	return &Plan{Type: info.typ, Collisions: info.collisions, Command: seq}, nil
}
