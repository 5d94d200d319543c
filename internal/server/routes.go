package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Pipeline API
	s.echo.POST("/api/search", s.handleSearch)
	s.echo.GET("/api/analytics", s.handleAnalytics)
	s.echo.GET("/api/reviews", s.handleReviews)
	s.echo.GET("/api/subreddits", s.handleSubreddits)
	s.echo.DELETE("/api/runs/:id", s.handleCancelRun)
}
