// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"estate_portal_backend/internal/events"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	config.TriggerConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP, JWT and trigger settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (e.g., DB ping).
	Health HealthChecker
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Metrics records request counts and latency. Optional.
	Metrics *metrics.Metrics
	// Gatherer backs the /metrics endpoint. Optional.
	Gatherer prometheus.Gatherer
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
