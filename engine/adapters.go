package engine

import (
	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
)

// tunnelEmitter bridges the tunnel server's lifecycle callbacks to the EventBus.
type tunnelEmitter struct {
	bus *EventBus
}

func (e *tunnelEmitter) EmitRobotConnected(robotID, mac string) {
	e.bus.Emit(Event{Type: EventRobotConnected, Payload: RobotConnectionEvent{RobotID: robotID, MAC: mac}})
}

func (e *tunnelEmitter) EmitRobotDisconnected(robotID, reason string) {
	e.bus.Emit(Event{Type: EventRobotDisconnected, Payload: RobotConnectionEvent{RobotID: robotID, Reason: reason}})
}

func (e *tunnelEmitter) EmitRobotReconnected(robotID string, remaining int) {
	e.bus.Emit(Event{Type: EventRobotReconnected, Payload: RobotConnectionEvent{RobotID: robotID, Remaining: remaining}})
}

// onCommandComplete turns executor records into move events.
func (e *Engine) onCommandComplete(rec command.Record) {
	ev := MoveFinishedEvent{
		CommandID: rec.ID,
		RequestID: e.takeRequestID(rec.ID),
		Name:      rec.Name,
		Robots:    rec.Robots,
		Started:   rec.Started,
		Finished:  rec.Finished,
	}
	if rec.Err != nil {
		ev.Error = rec.Err.Error()
		e.Events.Emit(Event{Type: EventMoveFailed, Payload: ev})
		return
	}
	e.Events.Emit(Event{Type: EventMoveCompleted, Payload: ev})
}

// onRobotUpdate forwards committed registry updates to the EventBus.
func (e *Engine) onRobotUpdate(u fleet.Update) {
	ev := RobotUpdateEvent{Update: u}
	if r, err := e.registry.Get(u.RobotID); err == nil {
		ev.Piece = r.Piece()
	}
	e.Events.Emit(Event{Type: EventRobotUpdate, Payload: ev})
}
