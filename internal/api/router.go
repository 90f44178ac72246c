// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/audittrail/internal/middleware"
)

// Router assembles the HTTP routes and middleware.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	auditor       *middleware.RequestAuditor
	performance   *middleware.PerformanceMonitor
}

// NewRouter creates a Router. auditor and performance may be nil.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, auditor *middleware.RequestAuditor, performance *middleware.PerformanceMonitor) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMW,
		auditor:       auditor,
		performance:   performance,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, outermost first.
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		if router.performance != nil {
			r.Use(router.performance.Middleware)
		}
		if router.auditor != nil {
			r.Use(router.auditor.Middleware)
		}

		r.Get("/stream", router.handler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compression)

			r.Post("/events", router.handler.IngestEvent)
			r.Get("/events", router.handler.ListEvents)
			r.Get("/events/{id}", router.handler.GetEvent)
			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitMaintenance())
				r.Get("/export", router.handler.ExportEvents)
				r.Post("/verify", router.handler.VerifyChain)
				r.Post("/cleanup", router.handler.Cleanup)
			})
			r.Get("/policies", router.handler.ListPolicies)
			r.Put("/policies", router.handler.SetPolicy)
			r.Get("/status", router.handler.Status)
		})
	})

	return r
}
