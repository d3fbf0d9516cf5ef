package engine

import (
	"context"

	"github.com/Comet-Robotics/chessbots-server-sub000/messaging"
	"github.com/Comet-Robotics/chessbots-server-sub000/motion"
)

// gameHandler routes game-layer messages into the engine.
type gameHandler struct {
	engine *Engine
}

func (h *gameHandler) HandleMoveRequest(env *messaging.Envelope, req messaging.MoveRequest) {
	e := h.engine
	sq := motion.SquareMove{
		From:      req.From,
		To:        req.To,
		Capture:   req.Capture,
		EnPassant: req.EnPassant,
		Castle:    motion.CastleSide(req.Castle),
		Promotion: req.Promotion,
	}
	mv, err := sq.Move()
	if err == nil {
		_, _, err = e.HandleMove(context.Background(), mv, req.RequestID)
	}
	if err != nil {
		e.logFn("engine: move request %s from %s rejected: %v", req.RequestID, env.Source, err)
		e.enqueue(messaging.TypeActionOutcome, messaging.ActionOutcome{
			RequestID: req.RequestID,
			Name:      req.From + "-" + req.To,
			Status:    outcomeRejected,
			Error:     err.Error(),
			Robots:    []string{},
		})
	}
}

func (h *gameHandler) HandleGamePause(env *messaging.Envelope, req messaging.GamePause) {
	reason := req.Reason
	if reason == "" {
		reason = "game paused"
	}
	h.engine.Pause(reason, "game:"+env.Source)
}

func (h *gameHandler) HandleGameUnpause(env *messaging.Envelope) {
	h.engine.Unpause("game:" + env.Source)
}
