package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRequirementConflict is returned when a submitted command needs a
	// robot that a running command already holds.
	ErrRequirementConflict = errors.New("requirement conflict")
	// ErrCleared resolves handles of held commands dropped by ClearExecution.
	ErrCleared = errors.New("execution cleared")
)

// ConflictError names the command that was rejected and the robots it
// shares with running work.
type ConflictError struct {
	Command string
	Robots  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %v: robots %s already in use", e.Command, ErrRequirementConflict, strings.Join(e.Robots, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrRequirementConflict }

// Record is one finished command.
type Record struct {
	ID       uint64
	Name     string
	Robots   []string
	Err      error
	Started  time.Time
	Finished time.Time
}

// Handle tracks a submitted command.
type Handle struct {
	ID   uint64
	Name string

	done chan struct{}
	err  error
}

// Done is closed when the command has finished or been cleared.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is valid after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the command finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type entry struct {
	cmd     Command
	reqs    RequirementSet
	handle  *Handle
	ctx     context.Context
	started time.Time
	held    bool
}

// Executor runs commands asynchronously, allowing at most one running command
// per robot. Conflicting submissions fail immediately rather than queue.
type Executor struct {
	gate Gate

	mu       sync.Mutex
	nextID   uint64
	running  map[uint64]*entry
	history  []Record
	maxHist  int
	inflight sync.WaitGroup

	// OnComplete is called after each command finishes.
	OnComplete func(Record)
	LogFunc    func(format string, args ...any)
}

// NewExecutor creates an executor. gate may be nil.
func NewExecutor(gate Gate) *Executor {
	return &Executor{
		gate:    gate,
		running: make(map[uint64]*entry),
		maxHist: 512,
		LogFunc: log.Printf,
	}
}

// Execute registers cmd and starts it. Commands submitted while the gate is
// paused are registered but held until FinishExecution.
func (x *Executor) Execute(ctx context.Context, cmd Command) (*Handle, error) {
	reqs := cmd.Requirements()

	x.mu.Lock()
	busy := RequirementSet{}
	for _, e := range x.running {
		for id, r := range e.reqs {
			busy[id] = r
		}
	}
	if overlap := reqs.Overlap(busy); len(overlap) > 0 {
		x.mu.Unlock()
		return nil, &ConflictError{Command: cmd.Name(), Robots: overlap}
	}
	x.nextID++
	e := &entry{
		cmd:    cmd,
		reqs:   reqs,
		handle: &Handle{ID: x.nextID, Name: cmd.Name(), done: make(chan struct{})},
		ctx:    context.WithoutCancel(ctx),
		held:   x.gate != nil && x.gate.Paused(),
	}
	x.running[e.handle.ID] = e
	x.mu.Unlock()

	if e.held {
		x.logf("executor: holding %q while paused", e.handle.Name)
		return e.handle, nil
	}
	x.start(e)
	return e.handle, nil
}

func (x *Executor) start(e *entry) {
	e.started = time.Now().UTC()
	ctx := e.ctx
	if x.gate != nil {
		ctx = WithGate(ctx, x.gate)
	}
	x.inflight.Add(1)
	go func() {
		defer x.inflight.Done()
		err := e.cmd.Execute(ctx)
		x.finish(e, err)
	}()
}

func (x *Executor) finish(e *entry, err error) {
	rec := Record{
		ID:       e.handle.ID,
		Name:     e.handle.Name,
		Robots:   e.reqs.IDs(),
		Err:      err,
		Started:  e.started,
		Finished: time.Now().UTC(),
	}
	x.mu.Lock()
	delete(x.running, e.handle.ID)
	x.history = append(x.history, rec)
	if len(x.history) > x.maxHist {
		x.history = x.history[len(x.history)-x.maxHist:]
	}
	x.mu.Unlock()

	e.handle.err = err
	close(e.handle.done)
	if err != nil {
		x.logf("executor: %q failed: %v", rec.Name, err)
	}
	if x.OnComplete != nil {
		x.OnComplete(rec)
	}
}

// FinishExecution starts every command held while paused and returns how
// many were started.
func (x *Executor) FinishExecution() int {
	x.mu.Lock()
	var held []*entry
	for _, e := range x.running {
		if e.held {
			e.held = false
			held = append(held, e)
		}
	}
	x.mu.Unlock()
	for _, e := range held {
		x.start(e)
	}
	return len(held)
}

// ClearExecution forgets every running command. In-flight robot actions keep
// going; only the bookkeeping is dropped. Held commands resolve with ErrCleared.
func (x *Executor) ClearExecution() int {
	x.mu.Lock()
	cleared := x.running
	x.running = make(map[uint64]*entry)
	x.mu.Unlock()
	for _, e := range cleared {
		if e.held {
			e.handle.err = ErrCleared
			close(e.handle.done)
		}
	}
	if len(cleared) > 0 {
		x.logf("executor: cleared %d running command(s)", len(cleared))
	}
	return len(cleared)
}

// Running returns the names of registered commands.
func (x *Executor) Running() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.running))
	for _, e := range x.running {
		out = append(out, e.handle.Name)
	}
	return out
}

// Busy reports whether a running command holds robot id.
func (x *Executor) Busy(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.running {
		if _, ok := e.reqs[id]; ok {
			return true
		}
	}
	return false
}

// History returns finished commands, oldest first.
func (x *Executor) History() []Record {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]Record, len(x.history))
	copy(out, x.history)
	return out
}

// Wait blocks until every started command has returned.
func (x *Executor) Wait() {
	x.inflight.Wait()
}

func (x *Executor) logf(format string, args ...any) {
	if x.LogFunc != nil {
		x.LogFunc(format, args...)
	}
}
