// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the operator REST surface. Handlers only call into the
// device registry, the commander and the recording service; they never own
// protocol state.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/audiocenter/internal/api/middleware"
	"github.com/ManuGH/audiocenter/internal/device"
	"github.com/ManuGH/audiocenter/internal/dispatch"
	"github.com/ManuGH/audiocenter/internal/health"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/opsink"
	"github.com/ManuGH/audiocenter/internal/recording"
	"github.com/ManuGH/audiocenter/internal/session"
	"github.com/ManuGH/audiocenter/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Reloader re-reads configuration on demand.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Deps are the collaborators the handlers call into. Schedules, Health, Bus
// and Reloader are optional.
type Deps struct {
	Registry  *device.Registry
	Commander *dispatch.Commander
	Uploads   *upload.Store
	Sessions  *session.Manager
	Recording *recording.Service
	Schedules *recording.Scheduler
	Health    *health.Manager
	Bus       opsink.Bus
	Reloader  Reloader
}

// Config tunes the HTTP stack.
type Config struct {
	Version string
	// RateLimit is nil when REST rate limiting is disabled.
	RateLimit *middleware.RateLimitConfig
	// TracingService enables otelhttp spans when non-empty.
	TracingService string
}

// Server is the REST API.
type Server struct {
	cfg      Config
	deps     Deps
	logger   zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	now      func() time.Time

	closeOnce sync.Once
	closing   chan struct{}
}

// New wires routes and middleware.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("api: registry is required")
	case deps.Commander == nil:
		return nil, errors.New("api: commander is required")
	case deps.Uploads == nil:
		return nil, errors.New("api: upload store is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session manager is required")
	case deps.Recording == nil:
		return nil, errors.New("api: recording service is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: xglog.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:     time.Now,
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close ends every event stream. HTTP shutdown does not reach hijacked
// websocket connections, so the daemon calls this first.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/status", s.handleDeviceStatus)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/capabilities", s.handleSetCapability)
				r.Post("/capture", s.handleCapture)
				r.Post("/playback", s.handlePlayback)
				r.Post("/delete", s.handleDelete)
				r.Post("/list", s.handleList)
				r.Post("/push", s.handlePush)
			})
		})

		r.Get("/uploads", s.handleUploads)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleCurrentSession)
			r.Post("/", s.handleOpenSession)
			r.Delete("/", s.handleCloseSession)
			r.Get("/history", s.handleSessionHistory)
		})

		r.Route("/time", func(r chi.Router) {
			r.Post("/sync", s.handleTimeSync)
			r.Get("/current", s.handleTimeCurrent)
		})

		r.Route("/recording", func(r chi.Router) {
			r.Post("/start", s.handleRecordingStart)
			r.Post("/stop", s.handleRecordingStop)
			r.Get("/status", s.handleRecordingStatus)
			if s.deps.Schedules != nil {
				r.Route("/play-record", func(r chi.Router) {
					r.Get("/", s.handlePlayRecordStatus)
					r.Post("/", s.handlePlayRecordStart)
					r.Delete("/", s.handlePlayRecordCancel)
				})
			}
		})

		r.Get("/events", s.handleEvents)

		if s.deps.Reloader != nil {
			r.Post("/config/reload", s.handleConfigReload)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reloader.Reload(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidConfig, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
