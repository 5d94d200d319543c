// Package server exposes the pipeline over HTTP: run triggering, pollable
// run analytics, review queries with CSV/JSON export, and the
// observability endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/brandpulse/internal/aggregate"
	"github.com/pscheid92/brandpulse/internal/config"
	"github.com/pscheid92/brandpulse/internal/domain"
	apperrors "github.com/pscheid92/brandpulse/internal/errors"
)

// runLauncher is the orchestrator surface the API needs.
type runLauncher interface {
	StartRun(ctx context.Context, entityQuery string, sources []string, since time.Time) (domain.AnalysisRun, error)
	Cancel(id uuid.UUID) bool
}

// ReadinessCheck names one dependency probe for /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	launcher   runLauncher
	aggregator *aggregate.Aggregator
	items      domain.ItemStore
	runs       domain.RunStore
	subreddits []string
	readiness  []ReadinessCheck
}

// NewServer wires the HTTP server.
func NewServer(
	cfg *config.Config,
	launcher runLauncher,
	aggregator *aggregate.Aggregator,
	items domain.ItemStore,
	runs domain.RunStore,
	subreddits []string,
	readiness ...ReadinessCheck,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:       e,
		config:     cfg,
		launcher:   launcher,
		aggregator: aggregator,
		items:      items,
		runs:       runs,
		subreddits: subreddits,
		readiness:  readiness,
	}
	srv.registerRoutes()
	return srv
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
