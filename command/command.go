// Package command models robot work as composable commands with declared
// robot requirements, and runs them through a fail-fast executor.
package command

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
)

// Command is a unit of robot work.
type Command interface {
	Name() string
	// Requirements lists every robot the command may touch.
	Requirements() RequirementSet
	Execute(ctx context.Context) error
}

// Reversible commands can build their own undo.
type Reversible interface {
	Command
	Reverse() Command
}

// RequirementSet is a set of robots keyed by id.
type RequirementSet map[string]*fleet.Robot

func Requires(robots ...*fleet.Robot) RequirementSet {
	s := make(RequirementSet, len(robots))
	for _, r := range robots {
		s[r.ID] = r
	}
	return s
}

// Union returns a new set holding every member of s and others.
func (s RequirementSet) Union(others ...RequirementSet) RequirementSet {
	out := make(RequirementSet, len(s))
	for id, r := range s {
		out[id] = r
	}
	for _, o := range others {
		for id, r := range o {
			out[id] = r
		}
	}
	return out
}

// Overlap returns the sorted ids present in both sets.
func (s RequirementSet) Overlap(o RequirementSet) []string {
	var ids []string
	for id := range s {
		if _, ok := o[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IDs returns the sorted member ids.
func (s RequirementSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Gate reports whether the fleet is paused. Groups consult it before
// starting each child.
type Gate interface {
	Paused() bool
}

// Switch is a Gate toggled by hand.
type Switch struct {
	paused atomic.Bool
}

func (s *Switch) Pause()       { s.paused.Store(true) }
func (s *Switch) Resume()      { s.paused.Store(false) }
func (s *Switch) Paused() bool { return s.paused.Load() }

type gateKey struct{}

// WithGate returns a context carrying g.
func WithGate(ctx context.Context, g Gate) context.Context {
	return context.WithValue(ctx, gateKey{}, g)
}

func paused(ctx context.Context) bool {
	g, ok := ctx.Value(gateKey{}).(Gate)
	return ok && g != nil && g.Paused()
}
