package engine

import (
	"fmt"
	"strings"

	"github.com/Comet-Robotics/chessbots-server-sub000/messaging"
	"github.com/Comet-Robotics/chessbots-server-sub000/store"
)

const (
	outcomeSucceeded = store.ActionSucceeded
	outcomeFailed    = store.ActionFailed
	outcomeRejected  = "rejected"
)

func (e *Engine) wireEventHandlers() {
	// Link lost: freeze the whole fleet.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RobotConnectionEvent)
		e.logFn("engine: robot %s disconnected: %s", ev.RobotID, ev.Reason)
		e.setConnected(ev.RobotID, false)
		e.audit(store.AuditRobot, ev.RobotID, "disconnected", ev.Reason, "")
		e.Pause(fmt.Sprintf("robot %s disconnected", ev.RobotID), "system")
	}, EventRobotDisconnected)

	// Reconnect lifts the pause once nobody is missing.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RobotConnectionEvent)
		e.logFn("engine: robot %s reconnected, %d still disconnected", ev.RobotID, ev.Remaining)
		e.setConnected(ev.RobotID, true)
		e.audit(store.AuditRobot, ev.RobotID, "reconnected", fmt.Sprintf("remaining=%d", ev.Remaining), "")
		if ev.Remaining == 0 {
			e.Unpause("system")
		}
	}, EventRobotReconnected)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RobotConnectionEvent)
		e.setConnected(ev.RobotID, true)
		e.audit(store.AuditRobot, ev.RobotID, "connected", ev.MAC, "")
	}, EventRobotConnected)

	// Committed poses: write through and notify the game layer.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RobotUpdateEvent)
		if e.robotState != nil {
			if err := e.robotState.UpdatePose(ev.RobotID, ev.Position, ev.Heading, ev.Cell, ev.Piece); err != nil {
				e.logFn("engine: persist pose for %s: %v", ev.RobotID, err)
			}
		}
		e.enqueue(messaging.TypeRobotUpdate, messaging.RobotUpdate{
			RobotID:   ev.RobotID,
			Piece:     ev.Piece,
			X:         ev.Position.X,
			Y:         ev.Position.Y,
			Heading:   ev.Heading,
			Cell:      cellOut(ev.Cell),
			Connected: true,
		})
	}, EventRobotUpdate)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(MoveAcceptedEvent)
		e.logFn("engine: command %d accepted: %s (%s, %d collisions)", ev.CommandID, ev.Name, ev.MoveType, len(ev.Collisions))
	}, EventMoveAccepted)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(MoveFinishedEvent)
		status := outcomeSucceeded
		if evt.Type == EventMoveFailed {
			status = outcomeFailed
			e.audit(store.AuditCommand, fmt.Sprint(ev.CommandID), "failed", ev.Error, "")
		}
		e.recordOutcome(ev, status)
	}, EventMoveCompleted, EventMoveFailed)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PauseEvent)
		if evt.Type == EventPaused {
			e.logFn("engine: fleet paused by %s: %s", ev.Actor, ev.Reason)
			e.audit(store.AuditFleet, store.FleetSubjectID, "paused", ev.Reason, ev.Actor)
		} else {
			e.logFn("engine: fleet unpaused by %s, %d held command(s) started", ev.Actor, ev.Started)
			e.audit(store.AuditFleet, store.FleetSubjectID, "unpaused", fmt.Sprintf("started=%d", ev.Started), ev.Actor)
		}
		e.enqueue(messaging.TypeFleetStatus, e.Status())
	}, EventPaused, EventUnpaused)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SnapshotEvent)
		e.audit(store.AuditSnapshot, fmt.Sprint(ev.ID), "saved", ev.Label, "")
	}, EventSnapshotSaved)

	// Rollback moves robots without packets, so persist every pose.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RollbackEvent)
		e.logFn("engine: rolled back to %q, cleared %d command(s)", ev.Label, ev.Cleared)
		e.audit(store.AuditFleet, store.FleetSubjectID, "rollback", ev.Label, ev.Actor)
		if e.robotState != nil {
			for _, r := range e.registry.All() {
				row := e.robotRow(r)
				if err := e.robotState.UpdatePose(row.ID, row.Position, row.Heading, row.Cell, row.Piece); err != nil {
					e.logFn("engine: persist pose for %s: %v", row.ID, err)
				}
			}
		}
		e.enqueue(messaging.TypeFleetStatus, e.Status())
	}, EventRollback)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ClearedEvent)
		e.audit(store.AuditFleet, store.FleetSubjectID, "execution_cleared", fmt.Sprintf("cleared=%d", ev.Cleared), ev.Actor)
	}, EventExecutionCleared)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) recordOutcome(ev MoveFinishedEvent, status string) {
	if e.db != nil {
		started, finished := ev.Started, ev.Finished
		a := &store.Action{
			CommandID:  int64(ev.CommandID),
			Name:       ev.Name,
			Robots:     ev.Robots,
			Status:     status,
			Error:      ev.Error,
			StartedAt:  &started,
			FinishedAt: &finished,
		}
		if err := e.db.InsertAction(a); err != nil {
			e.logFn("engine: record command %d: %v", ev.CommandID, err)
		}
	}
	e.enqueue(messaging.TypeActionOutcome, messaging.ActionOutcome{
		CommandID: int64(ev.CommandID),
		RequestID: ev.RequestID,
		Name:      ev.Name,
		Status:    status,
		Error:     ev.Error,
		Robots:    ev.Robots,
	})
}

func (e *Engine) setConnected(id string, connected bool) {
	if e.robotState == nil {
		return
	}
	if err := e.robotState.SetConnected(id, connected); err != nil {
		e.logFn("engine: set %s connected=%v: %v", id, connected, err)
	}
}

func (e *Engine) audit(subject, subjectID, action, detail, actor string) {
	if e.db == nil {
		return
	}
	entry := &store.AuditEntry{Subject: subject, SubjectID: subjectID, Action: action, Detail: detail, Actor: actor}
	if err := e.db.RecordAudit(entry); err != nil {
		e.logFn("engine: audit %s %s %s: %v", subject, subjectID, action, err)
	}
}

// enqueue stores an outbound game-layer message for the outbox drainer.
// Nothing is queued while messaging is disabled.
func (e *Engine) enqueue(msgType string, payload any) {
	if e.db == nil || strings.TrimSpace(e.cfg.Messaging.Backend) == "" {
		return
	}
	station := e.cfg.Messaging.StationID
	env := messaging.NewEnvelope(msgType, station, payload)
	data, err := env.Encode()
	if err != nil {
		e.logFn("engine: encode %s: %v", msgType, err)
		return
	}
	msg := &store.OutboxMessage{
		Topic:   e.cfg.Messaging.OutboundTopic,
		MsgType: msgType,
		MsgID:   env.MsgID,
		Source:  station,
		Payload: data,
	}
	if err := e.db.EnqueueOutbox(msg); err != nil {
		e.logFn("engine: enqueue %s: %v", msgType, err)
	}
}
