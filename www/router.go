// Package www serves the operator HTTP API and the live update stream.
package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/Comet-Robotics/chessbots-server-sub000/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
	}

	if db := eng.DB(); db != nil {
		h.ensureDefaultAdmin(db)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Live stream
	r.Get("/events", hub.SSEHandler)
	r.Get("/ws", hub.WSHandler)

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// API routes (no auth required for read)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/health", h.apiHealthCheck)
		r.Get("/status", h.apiStatus)
		r.Get("/robots", h.apiListRobots)
		r.Get("/robots/state", h.apiRobotState)
		r.Get("/history", h.apiHistory)
		r.Get("/audit", h.apiAudit)
		r.Get("/snapshots", h.apiListSnapshots)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/moves", h.apiSubmitMove)
			r.Post("/pause", h.apiPause)
			r.Post("/unpause", h.apiUnpause)
			r.Post("/snapshot", h.apiSaveSnapshot)
			r.Post("/rollback", h.apiRollback)
			r.Post("/setup", h.apiSetup)
			r.Post("/reset", h.apiReset)
			r.Post("/estop", h.apiEStop)
			r.Post("/execution/finish", h.apiFinishExecution)
			r.Post("/execution/clear", h.apiClearExecution)
		})
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
