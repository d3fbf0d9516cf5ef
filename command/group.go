package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SequentialGroup runs children strictly in order. A child due to start while
// the fleet is paused is skipped; the first child error aborts the rest.
type SequentialGroup struct {
	Label    string
	Children []Command
}

func Sequential(children ...Command) *SequentialGroup {
	return &SequentialGroup{Children: compact(children)}
}

func (g *SequentialGroup) Name() string {
	if g.Label != "" {
		return g.Label
	}
	return "sequential(" + names(g.Children) + ")"
}

func (g *SequentialGroup) Requirements() RequirementSet { return union(g.Children) }

func (g *SequentialGroup) Execute(ctx context.Context) error {
	for _, c := range g.Children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if paused(ctx) {
			continue
		}
		if err := c.Execute(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	return nil
}

// Reverse undoes reversible children last-to-first.
func (g *SequentialGroup) Reverse() Command {
	var rev []Command
	for i := len(g.Children) - 1; i >= 0; i-- {
		if r, ok := g.Children[i].(Reversible); ok {
			rev = append(rev, r.Reverse())
		}
	}
	return &SequentialGroup{Label: "undo " + g.Name(), Children: rev}
}

// ParallelGroup starts every child together and finishes when all have.
type ParallelGroup struct {
	Label    string
	Children []Command
}

func Parallel(children ...Command) *ParallelGroup {
	return &ParallelGroup{Children: compact(children)}
}

func (g *ParallelGroup) Name() string {
	if g.Label != "" {
		return g.Label
	}
	return "parallel(" + names(g.Children) + ")"
}

func (g *ParallelGroup) Requirements() RequirementSet { return union(g.Children) }

func (g *ParallelGroup) Execute(ctx context.Context) error {
	errs := make([]error, len(g.Children))
	var wg sync.WaitGroup
	for i, c := range g.Children {
		if paused(ctx) {
			continue
		}
		wg.Add(1)
		go func(i int, c Command) {
			defer wg.Done()
			if err := c.Execute(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.Name(), err)
			}
		}(i, c)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Reverse undoes reversible children together.
func (g *ParallelGroup) Reverse() Command {
	var rev []Command
	for _, c := range g.Children {
		if r, ok := c.(Reversible); ok {
			rev = append(rev, r.Reverse())
		}
	}
	return &ParallelGroup{Label: "undo " + g.Name(), Children: rev}
}

// WithTimePoint makes c take at least d.
func WithTimePoint(c Command, d time.Duration) *ParallelGroup {
	return Parallel(c, Wait(d))
}

// Then chains next after c.
func Then(c, next Command) *SequentialGroup {
	return Sequential(c, next)
}

func compact(cs []Command) []Command {
	out := cs[:0:0]
	for _, c := range cs {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func union(cs []Command) RequirementSet {
	out := RequirementSet{}
	for _, c := range cs {
		for id, r := range c.Requirements() {
			out[id] = r
		}
	}
	return out
}

func names(cs []Command) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.Name()
	}
	return strings.Join(parts, ", ")
}

var (
	_ Reversible = (*SequentialGroup)(nil)
	_ Reversible = (*ParallelGroup)(nil)
)
