// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api exposes the identity engine over JSON/HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/holomush/warden/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// BasePath prefixes every route, e.g. "/api". Empty mounts at the root.
	BasePath string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records per-route request counts and latency. Optional.
	Metrics *observability.Metrics
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Service, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(instrument(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed."})
	})

	routes := func(r chi.Router) {
		r.Route("/account", func(r chi.Router) {
			r.With(h.authenticate(false)).Post("/register", h.register)
			r.Post("/login", h.login)

			r.Group(func(r chi.Router) {
				r.Use(h.authenticate(true))
				r.Post("/logout", h.logout)
				r.Get("/detail", h.detail)
				r.Get("/", h.listUsers)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.With(h.authenticate(false)).Post("/", h.createRole)

			r.Group(func(r chi.Router) {
				r.Use(h.authenticate(true))
				r.Get("/", h.listRoles)
				r.Delete("/{id}", h.deleteRole)
				r.Post("/assign", h.assignRole)
				r.Post("/revoke", h.revokeRole)
			})
		})
	}

	if cfg.BasePath == "" {
		routes(r)
	} else {
		r.Route(cfg.BasePath, routes)
	}
	return r
}
