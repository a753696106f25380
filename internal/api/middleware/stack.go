// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress stack of the operator API.
package middleware

import (
	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing

	// RateLimit is nil when REST rate limiting is disabled.
	RateLimit *RateLimitConfig
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Metrics (track all requests, including rate-limited ones)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 4. Rate limit (per client IP)
	if cfg.RateLimit != nil {
		r.Use(RateLimit(*cfg.RateLimit))
	}
	// 5. Tracing
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
}
