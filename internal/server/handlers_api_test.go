package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/brandpulse/internal/aggregate"
	"github.com/pscheid92/brandpulse/internal/config"
	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/store/memory"
)

type stubLauncher struct {
	startFn  func(entityQuery string, sources []string, since time.Time) (domain.AnalysisRun, error)
	cancelOK bool
}

func (s *stubLauncher) StartRun(_ context.Context, entityQuery string, sources []string, since time.Time) (domain.AnalysisRun, error) {
	return s.startFn(entityQuery, sources, since)
}

func (s *stubLauncher) Cancel(uuid.UUID) bool { return s.cancelOK }

func newTestServer(launcher *stubLauncher) (*Server, *memory.Store, *aggregate.Aggregator) {
	store := memory.NewStore()
	agg := aggregate.New(store, store, domain.Thresholds{Positive: 0.2, Negative: -0.2}, 24*time.Hour)
	srv := NewServer(&config.Config{Port: "0"}, launcher, agg, store, store, []string{"wallstreetbets", "technology"})
	return srv, store, agg
}

func doRequest(srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func seedScoredItem(t *testing.T, agg *aggregate.Aggregator, entity, source, externalID string, score float64, createdAt time.Time) {
	t.Helper()
	err := agg.Fold(context.Background(), domain.ScoredItem{
		RawItem: domain.RawItem{
			SourceID:   source,
			ExternalID: externalID,
			Text:       "text for " + externalID,
			CreatedAt:  createdAt,
		},
		EntityQuery:    entity,
		Fingerprint:    domain.Fingerprint(source + ":" + externalID),
		SentimentScore: score,
		Confidence:     0.9,
		ModelVersion:   "lexicon-en-v1",
	})
	require.NoError(t, err)
}

func TestSearch_StartsRun(t *testing.T) {
	runID := uuid.New()
	var gotEntity string
	var gotSources []string

	launcher := &stubLauncher{startFn: func(entityQuery string, sources []string, _ time.Time) (domain.AnalysisRun, error) {
		gotEntity = entityQuery
		gotSources = sources
		return domain.AnalysisRun{ID: runID, EntityQuery: entityQuery, Status: domain.RunPending}, nil
	}}
	srv, _, _ := newTestServer(launcher)

	rec := doRequest(srv, http.MethodPost, "/api/search",
		strings.NewReader(`{"entity_query":"Acme Corp","sources":["reddit"]}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, runID.String(), body["run_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "Acme Corp", gotEntity)
	assert.Equal(t, []string{"reddit"}, gotSources)
}

func TestSearch_Validation(t *testing.T) {
	launcher := &stubLauncher{startFn: func(string, []string, time.Time) (domain.AnalysisRun, error) {
		t.Fatal("launcher must not be called for invalid requests")
		return domain.AnalysisRun{}, nil
	}}
	srv, _, _ := newTestServer(launcher)

	tests := []struct {
		name string
		body string
	}{
		{"missing entity_query", `{"sources":["reddit"]}`},
		{"bad since", `{"entity_query":"acme","since":"yesterday"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/search", strings.NewReader(tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearch_StartRunErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown source is caller input", fmt.Errorf("%w %q", domain.ErrUnknownSource, "usenet"), http.StatusBadRequest},
		{"store failure is server-side", errors.New("failed to create run: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			launcher := &stubLauncher{startFn: func(string, []string, time.Time) (domain.AnalysisRun, error) {
				return domain.AnalysisRun{}, tc.err
			}}
			srv, _, _ := newTestServer(launcher)

			rec := doRequest(srv, http.MethodPost, "/api/search", strings.NewReader(`{"entity_query":"acme"}`))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestAnalytics_CompletedRun(t *testing.T) {
	srv, store, agg := newTestServer(&stubLauncher{})
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	run := domain.AnalysisRun{
		ID:               uuid.New(),
		EntityQuery:      "acme",
		RequestedAt:      day,
		Status:           domain.RunCompleted,
		SourcesRequested: []string{"reddit", "news"},
		SourcesCompleted: []string{"reddit", "news"},
		SkippedCount:     1,
	}
	require.NoError(t, store.CreateRun(ctx, run))

	seedScoredItem(t, agg, "acme", "reddit", "r1", 0.6, day)
	seedScoredItem(t, agg, "acme", "reddit", "r2", -0.4, day)
	seedScoredItem(t, agg, "acme", "news", "n1", 0.3, day)

	rec := doRequest(srv, http.MethodGet, "/api/analytics?run_id="+run.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.Len(t, body["per_source"], 2)

	overall, ok := body["overall"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, overall["count"])
	assert.EqualValues(t, 1, overall["skipped_count"])
	assert.InDelta(t, 0.5/3, overall["weighted_score"].(float64), 1e-9)
}

func TestAnalytics_CancelledRunHidesAggregates(t *testing.T) {
	srv, store, agg := newTestServer(&stubLauncher{})
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	run := domain.AnalysisRun{
		ID:          uuid.New(),
		EntityQuery: "acme",
		Status:      domain.RunCancelled,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	seedScoredItem(t, agg, "acme", "reddit", "r1", 0.6, day)

	rec := doRequest(srv, http.MethodGet, "/api/analytics?run_id="+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "cancelled", body["status"])
	assert.NotContains(t, body, "per_source")
	assert.NotContains(t, body, "overall")

	rec = doRequest(srv, http.MethodGet, "/api/analytics?run_id="+run.ID.String()+"&partial=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["partial"])
	assert.Contains(t, body, "per_source")
	assert.Contains(t, body, "overall")
}

func TestAnalytics_CSVExport(t *testing.T) {
	srv, store, agg := newTestServer(&stubLauncher{})
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	run := domain.AnalysisRun{ID: uuid.New(), EntityQuery: "acme", Status: domain.RunCompleted}
	require.NoError(t, store.CreateRun(ctx, run))

	seedScoredItem(t, agg, "acme", "reddit", "r1", 0.6, day)
	seedScoredItem(t, agg, "acme", "news", "n1", -0.4, day)

	rec := doRequest(srv, http.MethodGet, "/api/analytics?run_id="+run.ID.String()+"&format=csv", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "analytics.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3, "header plus one row per bucket")
	assert.Contains(t, lines[0], "bucket_start")
}

func TestAnalytics_FailedRunHasNoAggregates(t *testing.T) {
	srv, store, _ := newTestServer(&stubLauncher{})

	run := domain.AnalysisRun{
		ID:            uuid.New(),
		EntityQuery:   "acme",
		Status:        domain.RunFailed,
		SourcesFailed: []string{"reddit"},
	}
	require.NoError(t, store.CreateRun(context.Background(), run))

	rec := doRequest(srv, http.MethodGet, "/api/analytics?run_id="+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed", body["status"])
	assert.NotContains(t, body, "overall")
}

func TestAnalytics_Errors(t *testing.T) {
	srv, _, _ := newTestServer(&stubLauncher{})

	rec := doRequest(srv, http.MethodGet, "/api/analytics?run_id=not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/analytics?run_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviews_JSONFiltering(t *testing.T) {
	srv, _, agg := newTestServer(&stubLauncher{})
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seedScoredItem(t, agg, "acme", "reddit", "r1", 0.6, day)
	seedScoredItem(t, agg, "acme", "reddit", "r2", -0.5, day.Add(time.Hour))
	seedScoredItem(t, agg, "acme", "news", "n1", 0.7, day.Add(2*time.Hour))
	seedScoredItem(t, agg, "globex", "reddit", "g1", 0.9, day)

	rec := doRequest(srv, http.MethodGet, "/api/reviews?entity=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["count"])

	rec = doRequest(srv, http.MethodGet, "/api/reviews?entity=acme&source=reddit&sentiment=positive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "r1", items[0].(map[string]any)["external_id"])
}

func TestReviews_CSVExport(t *testing.T) {
	srv, _, agg := newTestServer(&stubLauncher{})
	day := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedScoredItem(t, agg, "acme", "reddit", "r1", 0.6, day)

	rec := doRequest(srv, http.MethodGet, "/api/reviews?entity=acme&format=csv", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "reviews.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2, "header plus one row")
	assert.Contains(t, lines[0], "entity_query")
	assert.Contains(t, lines[1], "r1")
}

func TestReviews_Validation(t *testing.T) {
	srv, _, _ := newTestServer(&stubLauncher{})

	tests := []struct {
		name   string
		target string
	}{
		{"missing entity", "/api/reviews"},
		{"bad sentiment", "/api/reviews?entity=acme&sentiment=meh"},
		{"limit too large", "/api/reviews?entity=acme&limit=9999"},
		{"limit zero", "/api/reviews?entity=acme&limit=0"},
		{"negative offset", "/api/reviews?entity=acme&offset=-1"},
		{"bad date_from", "/api/reviews?entity=acme&date_from=junk"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, tc.target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubreddits(t *testing.T) {
	srv, _, _ := newTestServer(&stubLauncher{})

	rec := doRequest(srv, http.MethodGet, "/api/subreddits", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"wallstreetbets", "technology"}, body["subreddits"])
}

func TestCancelRun_InFlight(t *testing.T) {
	srv, _, _ := newTestServer(&stubLauncher{cancelOK: true})

	rec := doRequest(srv, http.MethodDelete, "/api/runs/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "cancelling", decodeBody(t, rec)["status"])
}

func TestCancelRun_AlreadyFinished(t *testing.T) {
	srv, store, _ := newTestServer(&stubLauncher{cancelOK: false})

	run := domain.AnalysisRun{ID: uuid.New(), EntityQuery: "acme", Status: domain.RunCompleted}
	require.NoError(t, store.CreateRun(context.Background(), run))

	rec := doRequest(srv, http.MethodDelete, "/api/runs/"+run.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelRun_Errors(t *testing.T) {
	srv, _, _ := newTestServer(&stubLauncher{cancelOK: false})

	rec := doRequest(srv, http.MethodDelete, "/api/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodDelete, "/api/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
