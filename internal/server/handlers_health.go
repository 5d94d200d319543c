package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/brandpulse/internal/version"
)

// handleLiveness reports process liveness only.
func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// handleReadiness probes the registered dependencies (database, redis).
func (s *Server) handleReadiness(c echo.Context) error {
	checkCtx := c.Request().Context()
	status := http.StatusOK
	checks := make(map[string]string, len(s.readiness))

	for _, probe := range s.readiness {
		start := time.Now()
		if err := probe.Check(checkCtx); err != nil {
			checks[probe.Name] = "unavailable: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[probe.Name] = "ok (" + time.Since(start).Round(time.Millisecond).String() + ")"
	}

	body := map[string]any{"checks": checks}
	if status == http.StatusOK {
		body["status"] = "ready"
	} else {
		body["status"] = "degraded"
	}
	return c.JSON(status, body)
}
