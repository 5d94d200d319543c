package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/brandpulse/internal/domain"
	apperrors "github.com/pscheid92/brandpulse/internal/errors"
	"github.com/pscheid92/brandpulse/internal/export"
)

type searchRequest struct {
	EntityQuery string   `json:"entity_query"`
	Sources     []string `json:"sources"`
	Since       string   `json:"since"`
}

// handleSearch starts a new analysis run for an entity query.
func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.EntityQuery == "" {
		return apperrors.ValidationError("entity_query is required")
	}

	var since time.Time
	if req.Since != "" {
		parsed, err := parseTimestamp(req.Since)
		if err != nil {
			return apperrors.ValidationError("invalid since timestamp").WithField("since", req.Since)
		}
		since = parsed
	}

	run, err := s.launcher.StartRun(c.Request().Context(), req.EntityQuery, req.Sources, since)
	if err != nil {
		// Unknown sources are caller input; anything else (run store down,
		// say) is a server-side failure.
		if errors.Is(err, domain.ErrUnknownSource) {
			return apperrors.ValidationError(err.Error())
		}
		return apperrors.InternalError("failed to start run", err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"run_id": run.ID.String(),
		"status": run.Status,
	})
}

// handleAnalytics returns the pollable state and aggregates of a run. A
// cancelled run never exposes its partial aggregates unless the caller
// explicitly asks with ?partial=true.
func (s *Server) handleAnalytics(c echo.Context) error {
	runID, err := uuid.Parse(c.QueryParam("run_id"))
	if err != nil {
		return apperrors.ValidationError("invalid run_id").WithField("run_id", c.QueryParam("run_id"))
	}

	ctx := c.Request().Context()
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return apperrors.NotFoundError("run not found").WithField("run_id", runID.String())
		}
		return apperrors.InternalError("failed to load run", err)
	}

	response := map[string]any{
		"run_id":            run.ID.String(),
		"entity_query":      run.EntityQuery,
		"status":            run.Status,
		"sources_requested": run.SourcesRequested,
		"sources_completed": run.SourcesCompleted,
		"sources_failed":    run.SourcesFailed,
	}

	withAggregates := run.Status != domain.RunCancelled && run.Status != domain.RunFailed
	if run.Status == domain.RunCancelled && c.QueryParam("partial") == "true" {
		withAggregates = true
		response["partial"] = true
	}
	if !withAggregates {
		return c.JSON(http.StatusOK, response)
	}

	if c.QueryParam("format") == "csv" {
		buckets, err := s.aggregator.Buckets(ctx, run.EntityQuery, time.Time{}, time.Time{})
		if err != nil {
			return apperrors.InternalError("failed to load buckets", err)
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set("Content-Disposition", `attachment; filename="analytics.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		return export.BucketsCSV(c.Response(), buckets)
	}

	perSource, err := s.aggregator.PerSource(ctx, run.EntityQuery, time.Time{}, time.Time{})
	if err != nil {
		return apperrors.InternalError("failed to compute per-source aggregates", err)
	}
	overall, err := s.aggregator.Overall(ctx, run.EntityQuery, time.Time{}, time.Time{}, run.SkippedCount)
	if err != nil {
		return apperrors.InternalError("failed to compute overall aggregate", err)
	}

	response["per_source"] = perSource
	response["overall"] = overall
	return c.JSON(http.StatusOK, response)
}

// handleReviews returns a filtered page of scored items, as JSON or CSV.
func (s *Server) handleReviews(c echo.Context) error {
	entity := c.QueryParam("entity")
	if entity == "" {
		return apperrors.ValidationError("entity is required")
	}

	filter := domain.ItemFilter{
		EntityQuery: entity,
		SourceID:    c.QueryParam("source"),
		Limit:       50,
	}

	if band := c.QueryParam("sentiment"); band != "" {
		switch domain.SentimentBand(band) {
		case domain.BandPositive, domain.BandNegative, domain.BandNeutral:
			filter.Band = domain.SentimentBand(band)
		default:
			return apperrors.ValidationError("sentiment must be positive, negative or neutral").
				WithField("sentiment", band)
		}
	}
	if from := c.QueryParam("date_from"); from != "" {
		t, err := parseTimestamp(from)
		if err != nil {
			return apperrors.ValidationError("invalid date_from").WithField("date_from", from)
		}
		filter.DateFrom = t
	}
	if to := c.QueryParam("date_to"); to != "" {
		t, err := parseTimestamp(to)
		if err != nil {
			return apperrors.ValidationError("invalid date_to").WithField("date_to", to)
		}
		filter.DateTo = t
	}
	if limit := c.QueryParam("limit"); limit != "" {
		if _, err := fmt.Sscanf(limit, "%d", &filter.Limit); err != nil || filter.Limit < 1 || filter.Limit > 500 {
			return apperrors.ValidationError("limit must be between 1 and 500").WithField("limit", limit)
		}
	}
	if offset := c.QueryParam("offset"); offset != "" {
		if _, err := fmt.Sscanf(offset, "%d", &filter.Offset); err != nil || filter.Offset < 0 {
			return apperrors.ValidationError("offset must be non-negative").WithField("offset", offset)
		}
	}

	items, err := s.items.ListItems(c.Request().Context(), filter, s.aggregator.Thresholds())
	if err != nil {
		return apperrors.InternalError("failed to query reviews", err)
	}

	if c.QueryParam("format") == "csv" {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set("Content-Disposition", `attachment; filename="reviews.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		return export.ItemsCSV(c.Response(), items)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	return export.ItemsJSON(c.Response(), items)
}

// handleSubreddits lists the subreddits the Reddit connector tracks. The
// list is configuration, not derived from the pipeline.
func (s *Server) handleSubreddits(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"subreddits": s.subreddits})
}

// handleCancelRun cancels an in-flight run.
func (s *Server) handleCancelRun(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid run id").WithField("id", c.Param("id"))
	}

	if s.launcher.Cancel(runID) {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
	}

	// Not in flight: distinguish unknown from already finished.
	run, err := s.runs.GetRun(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return apperrors.NotFoundError("run not found").WithField("run_id", runID.String())
		}
		return apperrors.InternalError("failed to load run", err)
	}
	return apperrors.ConflictError("run already finished").WithField("status", string(run.Status))
}

// parseTimestamp accepts RFC3339 or plain dates.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
