// Package engine wires the fleet together: registry, robot link server,
// executor, planner, persistence and the game-layer link, joined by an
// in-process event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/config"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/messaging"
	"github.com/Comet-Robotics/chessbots-server-sub000/motion"
	"github.com/Comet-Robotics/chessbots-server-sub000/robotstate"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
	"github.com/Comet-Robotics/chessbots-server-sub000/tunnel"
)

type LogFunc func(format string, args ...any)

var ErrNoSnapshot = errors.New("no snapshot saved")

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	RobotState *robotstate.Manager
	MsgClient  *messaging.Client
	LogFunc    LogFunc
	Debug      bool
}

type Engine struct {
	cfg          *config.Config
	configPath   string
	db           *store.DB
	robotState   *robotstate.Manager
	msgClient    *messaging.Client
	registry     *fleet.Registry
	server       *tunnel.Server
	executor     *command.Executor
	gate         *command.Switch
	materializer *motion.Materializer
	consumer     *messaging.Consumer
	drainer      *messaging.OutboxDrainer
	Events       *EventBus
	logFn        LogFunc

	mu          sync.Mutex
	pauseReason string
	snapshot    *fleet.Snapshot
	requests    map[uint64]string
	virtual     map[string]*tunnel.Virtual

	stopChan     chan struct{}
	stopOnce     sync.Once
	msgConnected bool
}

// New builds the registry from the configured robots and constructs every
// service. Virtual robots are attached to simulated tunnels immediately.
func New(c Config) (*Engine, error) {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		robotState: c.RobotState,
		msgClient:  c.MsgClient,
		registry:   fleet.NewRegistry(),
		gate:       &command.Switch{},
		Events:     NewEventBus(logFn),
		logFn:      logFn,
		requests:   make(map[uint64]string),
		virtual:    make(map[string]*tunnel.Virtual),
		stopChan:   make(chan struct{}),
	}
	e.registry.DebugStacks = c.Debug || c.AppConfig.Web.DebugStacks

	for _, rc := range c.AppConfig.Robots {
		r := fleet.NewRobot(fleet.Info{
			ID:             rc.ID,
			MAC:            rc.MAC,
			Piece:          rc.Piece,
			Color:          rc.Color,
			Home:           rc.Home,
			Default:        rc.Default,
			DefaultHeading: rc.Heading,
		})
		if err := e.registry.Add(r); err != nil {
			return nil, fmt.Errorf("engine: register %s: %w", rc.ID, err)
		}
		if rc.Virtual {
			v := tunnel.NewVirtual(rc.ID)
			if err := e.registry.Attach(rc.ID, v); err != nil {
				return nil, fmt.Errorf("engine: attach virtual %s: %w", rc.ID, err)
			}
			e.virtual[rc.ID] = v
		}
	}

	e.restorePoses()

	e.executor = command.NewExecutor(e.gate)
	e.executor.LogFunc = logFn
	e.executor.OnComplete = e.onCommandComplete
	e.materializer = motion.New(e.registry, c.AppConfig.Motion)

	e.server = tunnel.NewServer(c.AppConfig, e.registry, &tunnelEmitter{bus: e.Events}, tunnel.OptionsFromConfig(c.AppConfig.Server))
	e.server.LogFunc = logFn
	e.registry.Subscribe(e.onRobotUpdate)

	snap := e.registry.Snapshot("startup")
	e.snapshot = &snap
	return e, nil
}

// Start wires event handlers, opens the robot listener and the game link,
// and begins the periodic health log.
func (e *Engine) Start() error {
	e.wireEventHandlers()
	e.registerRobots()

	if e.robotState != nil {
		if err := e.robotState.SyncRedisFromSQL(); err != nil {
			e.logFn("engine: sync robot state: %v", err)
		}
	}

	if addr := e.cfg.Server.ListenAddr; addr != "" {
		if err := e.server.Listen(addr); err != nil {
			return fmt.Errorf("engine: listen %s: %w", addr, err)
		}
	}

	if e.msgClient != nil {
		e.consumer = messaging.NewConsumer(e.msgClient, e.cfg.Messaging.InboundTopic, &gameHandler{engine: e})
		if err := e.consumer.Start(); err != nil {
			e.logFn("engine: subscribe %s: %v", e.cfg.Messaging.InboundTopic, err)
		}
		if e.db != nil {
			e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval)
			e.drainer.Start()
		}
	}

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.logFn("engine: started with %d robots", len(e.registry.All()))
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.server.Stop()
	if e.drainer != nil {
		e.drainer.Stop()
	}
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                      { return e.db }
func (e *Engine) AppConfig() *config.Config          { return e.cfg }
func (e *Engine) ConfigPath() string                 { return e.configPath }
func (e *Engine) Registry() *fleet.Registry          { return e.registry }
func (e *Engine) Executor() *command.Executor        { return e.executor }
func (e *Engine) Server() *tunnel.Server             { return e.server }
func (e *Engine) Materializer() *motion.Materializer { return e.materializer }
func (e *Engine) RobotState() *robotstate.Manager    { return e.robotState }
func (e *Engine) MsgClient() *messaging.Client       { return e.msgClient }

// Virtual returns the simulated tunnel of a virtual robot.
func (e *Engine) Virtual(id string) (*tunnel.Virtual, bool) {
	v, ok := e.virtual[id]
	return v, ok
}

// HandleMove plans mv against the current registry and submits it.
// requestID is echoed in the outcome notification and may be empty.
func (e *Engine) HandleMove(ctx context.Context, mv motion.Move, requestID string) (*command.Handle, *motion.Plan, error) {
	plan, err := e.materializer.Plan(mv)
	if err != nil {
		return nil, nil, err
	}
	h, err := e.submit(ctx, plan.Command, requestID)
	if err != nil {
		return nil, plan, err
	}
	e.Events.Emit(Event{Type: EventMoveAccepted, Payload: MoveAcceptedEvent{
		CommandID:  h.ID,
		RequestID:  requestID,
		Name:       h.Name,
		MoveType:   plan.Type.String(),
		Collisions: plan.Collisions,
		Captured:   plan.Captured,
		Robots:     plan.Command.Requirements().IDs(),
	}})
	return h, plan, nil
}

// Setup drives every robot to its default square.
func (e *Engine) Setup(ctx context.Context, optimized bool) (*command.Handle, error) {
	var cmd command.Command
	var err error
	if optimized {
		cmd, err = e.materializer.SetupAllOptimized()
	} else {
		cmd, err = e.materializer.SetupAll()
	}
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, cmd, "")
}

// Reset drives every robot back to its home cell.
func (e *Engine) Reset(ctx context.Context) (*command.Handle, error) {
	cmd, err := e.materializer.ResetAll()
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, cmd, "")
}

func (e *Engine) submit(ctx context.Context, cmd command.Command, requestID string) (*command.Handle, error) {
	// Hold the lock across Execute so a fast completion cannot miss its request id.
	e.mu.Lock()
	defer e.mu.Unlock()
	h, err := e.executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if requestID != "" {
		e.requests[h.ID] = requestID
	}
	return h, nil
}

func (e *Engine) takeRequestID(id uint64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	rid := e.requests[id]
	delete(e.requests, id)
	return rid
}

// Pause freezes the fleet. Legs not yet started are held back; actions
// already sent to robots finish. Returns false if already paused.
func (e *Engine) Pause(reason, actor string) bool {
	e.mu.Lock()
	if e.gate.Paused() {
		e.mu.Unlock()
		return false
	}
	e.gate.Pause()
	e.pauseReason = reason
	e.mu.Unlock()

	e.Events.Emit(Event{Type: EventPaused, Payload: PauseEvent{Reason: reason, Actor: actor}})
	return true
}

// Unpause resumes the fleet and starts every command held while paused.
// Returns false if the fleet was not paused.
func (e *Engine) Unpause(actor string) bool {
	e.mu.Lock()
	if !e.gate.Paused() {
		e.mu.Unlock()
		return false
	}
	e.gate.Resume()
	e.pauseReason = ""
	e.mu.Unlock()

	started := e.executor.FinishExecution()
	e.Events.Emit(Event{Type: EventUnpaused, Payload: PauseEvent{Actor: actor, Started: started}})
	return true
}

// Paused reports whether the fleet is paused and why.
func (e *Engine) Paused() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.Paused(), e.pauseReason
}

// FinishExecution starts every held command without lifting the pause.
func (e *Engine) FinishExecution() int {
	return e.executor.FinishExecution()
}

// ClearExecution drops all executor bookkeeping.
func (e *Engine) ClearExecution(actor string) int {
	n := e.executor.ClearExecution()
	e.Events.Emit(Event{Type: EventExecutionCleared, Payload: ClearedEvent{Cleared: n, Actor: actor}})
	return n
}

// SaveSnapshot records the registry state as the rollback point.
func (e *Engine) SaveSnapshot(label string) (fleet.Snapshot, error) {
	snap := e.registry.Snapshot(label)
	e.mu.Lock()
	e.snapshot = &snap
	e.mu.Unlock()

	var id int64
	if e.db != nil {
		row := snapshotRow(snap)
		if err := e.db.SaveSnapshot(row); err != nil {
			return snap, fmt.Errorf("engine: save snapshot: %w", err)
		}
		id = row.ID
	}
	e.Events.Emit(Event{Type: EventSnapshotSaved, Payload: SnapshotEvent{ID: id, Label: label, Robots: len(snap.Poses)}})
	return snap, nil
}

// Rollback resets the registry to the last saved snapshot and clears the
// executor. No packets are sent; robots are assumed to have been moved back
// by hand.
func (e *Engine) Rollback(actor string) (fleet.Snapshot, error) {
	e.mu.Lock()
	snap := e.snapshot
	e.mu.Unlock()

	if snap == nil && e.db != nil {
		row, err := e.db.LatestSnapshot()
		if err == nil {
			s := fleetSnapshot(row)
			snap = &s
		}
	}
	if snap == nil {
		return fleet.Snapshot{}, ErrNoSnapshot
	}
	if err := e.registry.Restore(*snap); err != nil {
		return *snap, fmt.Errorf("engine: rollback to %q: %w", snap.Label, err)
	}
	cleared := e.executor.ClearExecution()
	e.Events.Emit(Event{Type: EventRollback, Payload: RollbackEvent{Label: snap.Label, Cleared: cleared, Actor: actor}})
	return *snap, nil
}

// EStop sends an emergency stop to every connected robot and pauses the fleet.
func (e *Engine) EStop(ctx context.Context, actor string) error {
	e.Pause("emergency stop", actor)
	var errs []error
	for _, r := range e.registry.All() {
		if !r.Connected() {
			continue
		}
		if err := r.EStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Status summarizes the fleet for the game layer and the dashboard.
func (e *Engine) Status() messaging.FleetStatus {
	paused, reason := e.Paused()
	disconnected := e.registry.Disconnected()
	running := e.executor.Running()
	if disconnected == nil {
		disconnected = []string{}
	}
	return messaging.FleetStatus{
		Paused:       paused,
		Reason:       reason,
		Disconnected: disconnected,
		Running:      running,
	}
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured")
	}
	e.checkConnectionStatus()
}

// restorePoses moves robots to the poses last persisted, if any.
func (e *Engine) restorePoses() {
	if e.db == nil {
		return
	}
	rows, err := e.db.ListRobots()
	if err != nil {
		e.logFn("engine: load robot poses: %v", err)
		return
	}
	snap := fleet.Snapshot{Label: "persisted", Taken: time.Now().UTC()}
	for _, row := range rows {
		if _, err := e.registry.Get(row.ID); err != nil {
			continue
		}
		snap.Poses = append(snap.Poses, fleet.RobotPose{
			ID: row.ID, Position: row.Position, Heading: row.Heading, Cell: row.Cell, Piece: row.Piece,
		})
	}
	if len(snap.Poses) == 0 {
		return
	}
	if err := e.registry.Restore(snap); err != nil {
		e.logFn("engine: restore persisted poses: %v", err)
		return
	}
	e.logFn("engine: restored %d robot poses", len(snap.Poses))
}

// registerRobots writes every robot's identity and pose through to storage.
func (e *Engine) registerRobots() {
	if e.robotState == nil {
		return
	}
	for _, r := range e.registry.All() {
		if err := e.robotState.Register(e.robotRow(r)); err != nil {
			e.logFn("engine: register %s: %v", r.ID, err)
		}
	}
}

func (e *Engine) robotRow(r *fleet.Robot) *store.Robot {
	pos, heading := r.Pose()
	cell, _ := e.registry.CellOf(r.ID)
	return &store.Robot{
		ID:        r.ID,
		MAC:       r.MAC,
		Piece:     r.Piece(),
		Color:     r.Color,
		Home:      r.Home,
		Default:   r.Default,
		Position:  pos,
		Heading:   heading,
		Cell:      cell,
		Connected: r.Connected(),
	}
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient == nil {
		return
	}
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else if e.msgConnected {
		e.msgConnected = false
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	interval := e.cfg.Server.HealthLogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
			e.logHealth()
		}
	}
}

func (e *Engine) logHealth() {
	all := e.registry.All()
	connected := 0
	for _, r := range all {
		if r.Connected() {
			connected++
		}
	}
	paused, reason := e.Paused()
	if paused {
		e.logFn("engine: health: %d/%d robots connected, %d running, paused (%s)", connected, len(all), len(e.executor.Running()), reason)
		return
	}
	e.logFn("engine: health: %d/%d robots connected, %d running", connected, len(all), len(e.executor.Running()))
}

func snapshotRow(s fleet.Snapshot) *store.Snapshot {
	row := &store.Snapshot{Label: s.Label, TakenAt: s.Taken}
	for _, p := range s.Poses {
		row.Robots = append(row.Robots, store.SnapshotRobot{
			RobotID: p.ID, Position: p.Position, Heading: p.Heading, Cell: p.Cell, Piece: p.Piece,
		})
	}
	return row
}

func fleetSnapshot(row *store.Snapshot) fleet.Snapshot {
	s := fleet.Snapshot{Label: row.Label, Taken: row.TakenAt}
	for _, r := range row.Robots {
		s.Poses = append(s.Poses, fleet.RobotPose{
			ID: r.RobotID, Position: r.Position, Heading: r.Heading, Cell: r.Cell, Piece: r.Piece,
		})
	}
	return s
}

func cellOut(c grid.GridIndices) messaging.Cell {
	return messaging.Cell{I: c.I, J: c.J}
}
