package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Comet-Robotics/chessbots-server-sub000/command"
	"github.com/Comet-Robotics/chessbots-server-sub000/engine"
	"github.com/Comet-Robotics/chessbots-server-sub000/fleet"
	"github.com/Comet-Robotics/chessbots-server-sub000/grid"
	"github.com/Comet-Robotics/chessbots-server-sub000/motion"
)

type robotView struct {
	ID        string           `json:"id"`
	MAC       string           `json:"mac"`
	Piece     string           `json:"piece"`
	Color     string           `json:"color"`
	Home      grid.GridIndices `json:"home"`
	Default   grid.GridIndices `json:"default"`
	Position  grid.Position    `json:"position"`
	Heading   float64          `json:"heading"`
	Cell      grid.GridIndices `json:"cell"`
	Square    string           `json:"square,omitempty"`
	Connected bool             `json:"connected"`
	Busy      bool             `json:"busy"`
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"robots":    len(h.engine.Registry().All()),
		"clients":   h.eventHub.ClientCount(),
		"messaging": h.engine.MsgClient() != nil && h.engine.MsgClient().IsConnected(),
		"time":      time.Now().UTC(),
	}
	if db := h.engine.DB(); db != nil {
		if err := db.Ping(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		} else if n, err := db.CountPendingOutbox(0); err == nil {
			status["outbox_pending"] = n
		}
	}
	h.jsonOK(w, status)
}

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Status())
}

func (h *Handlers) apiListRobots(w http.ResponseWriter, r *http.Request) {
	reg := h.engine.Registry()
	exec := h.engine.Executor()
	robots := reg.All()
	out := make([]robotView, 0, len(robots))
	for _, rb := range robots {
		pos, heading := rb.Pose()
		cell, _ := reg.CellOf(rb.ID)
		v := robotView{
			ID:        rb.ID,
			MAC:       rb.MAC,
			Piece:     rb.Piece(),
			Color:     rb.Color,
			Home:      rb.Home,
			Default:   rb.Default,
			Position:  pos,
			Heading:   heading,
			Cell:      cell,
			Connected: rb.Connected(),
			Busy:      exec.Busy(rb.ID),
		}
		v.Square = cell.Square()
		out = append(out, v)
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiRobotState(w http.ResponseWriter, r *http.Request) {
	rs := h.engine.RobotState()
	if rs == nil {
		h.jsonError(w, "robot state not configured", http.StatusServiceUnavailable)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		s, err := rs.Get(id)
		if err != nil {
			h.jsonError(w, "not found", http.StatusNotFound)
			return
		}
		h.jsonOK(w, s)
		return
	}
	states, err := rs.GetAll()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, states)
}

func (h *Handlers) apiHistory(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonOK(w, h.engine.Executor().History())
		return
	}
	actions, err := db.ListActions(queryLimit(r, 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, actions)
}

func (h *Handlers) apiAudit(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonOK(w, []any{})
		return
	}
	q := r.URL.Query()
	if subject, id := q.Get("subject"), q.Get("subject_id"); subject != "" && id != "" {
		entries, err := db.ListSubjectAudit(subject, id, queryLimit(r, 0))
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.jsonOK(w, entries)
		return
	}
	entries, err := db.ListAuditLog(queryLimit(r, 100))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiListSnapshots(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonOK(w, []any{})
		return
	}
	snaps, err := db.ListSnapshots(queryLimit(r, 20))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, snaps)
}

type moveRequest struct {
	motion.SquareMove
	RequestID string `json:"requestId,omitempty"`
}

type moveResponse struct {
	CommandID  uint64   `json:"commandId"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Collisions []string `json:"collisions"`
	Captured   string   `json:"captured,omitempty"`
}

func (h *Handlers) apiSubmitMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	mv, err := req.Move()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	handle, plan, err := h.engine.HandleMove(r.Context(), mv, req.RequestID)
	if err != nil {
		h.jsonError(w, err.Error(), moveErrorStatus(err))
		return
	}
	collisions := plan.Collisions
	if collisions == nil {
		collisions = []string{}
	}
	h.jsonStatus(w, http.StatusAccepted, moveResponse{
		CommandID:  handle.ID,
		Name:       handle.Name,
		Type:       plan.Type.String(),
		Collisions: collisions,
		Captured:   plan.Captured,
	})
}

func moveErrorStatus(err error) int {
	switch {
	case errors.Is(err, command.ErrRequirementConflict):
		return http.StatusConflict
	case errors.Is(err, motion.ErrUnknownSquare):
		return http.StatusBadRequest
	case errors.Is(err, motion.ErrNoPiece),
		errors.Is(err, motion.ErrDestinationOccupied),
		errors.Is(err, motion.ErrNothingToCapture),
		errors.Is(err, motion.ErrBadCastle),
		errors.Is(err, motion.ErrNoRoute),
		errors.Is(err, fleet.ErrCellOccupied):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) apiPause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator pause"
	}
	changed := h.engine.Pause(req.Reason, h.getUsername(r))
	h.jsonOK(w, map[string]any{"changed": changed, "status": h.engine.Status()})
}

func (h *Handlers) apiUnpause(w http.ResponseWriter, r *http.Request) {
	changed := h.engine.Unpause(h.getUsername(r))
	h.jsonOK(w, map[string]any{"changed": changed, "status": h.engine.Status()})
}

func (h *Handlers) apiSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	if req.Label == "" {
		req.Label = "manual " + time.Now().Format("15:04:05")
	}
	snap, err := h.engine.SaveSnapshot(req.Label)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, snap)
}

func (h *Handlers) apiRollback(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Rollback(h.getUsername(r))
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNoSnapshot) {
			code = http.StatusNotFound
		} else if errors.Is(err, fleet.ErrCellOccupied) {
			code = http.StatusConflict
		}
		h.jsonError(w, err.Error(), code)
		return
	}
	h.jsonOK(w, snap)
}

func (h *Handlers) apiSetup(w http.ResponseWriter, r *http.Request) {
	optimized := r.URL.Query().Get("optimized") == "1"
	handle, err := h.engine.Setup(r.Context(), optimized)
	h.commandAccepted(w, handle, err)
}

func (h *Handlers) apiReset(w http.ResponseWriter, r *http.Request) {
	handle, err := h.engine.Reset(r.Context())
	h.commandAccepted(w, handle, err)
}

func (h *Handlers) commandAccepted(w http.ResponseWriter, handle *command.Handle, err error) {
	if err != nil {
		h.jsonError(w, err.Error(), moveErrorStatus(err))
		return
	}
	h.jsonStatus(w, http.StatusAccepted, map[string]any{"commandId": handle.ID, "name": handle.Name})
}

func (h *Handlers) apiEStop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.EStop(r.Context(), h.getUsername(r)); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.jsonOK(w, h.engine.Status())
}

func (h *Handlers) apiFinishExecution(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]int{"started": h.engine.FinishExecution()})
}

func (h *Handlers) apiClearExecution(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]int{"cleared": h.engine.ClearExecution(h.getUsername(r))})
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
