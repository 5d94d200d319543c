package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/brandpulse/internal/connector"
	"github.com/pscheid92/brandpulse/internal/domain"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testClock() clockwork.Clock {
	return clockwork.NewFakeClockAt(testNow)
}

func testClient() *connector.Client {
	return connector.NewClient(connector.Options{
		SourceID:          SourceID,
		RequestsPerSecond: 1000,
		RetryAttempts:     1,
		InitialBackoff:    time.Millisecond,
		RateLimitBackoff:  time.Millisecond,
	})
}

func TestFetch_EmitsArticles(t *testing.T) {
	published := testNow.Add(-time.Hour).Format(time.RFC3339)

	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("apiKey")
		fmt.Fprintf(w, `{"status":"ok","articles":[
			{"title":"Acme expands into Europe","description":"The company opened three offices.",
				"publishedAt":%q,"url":"https://example.com/a","source":{"name":"Example Times"}},
			{"title":"Markets wrap","description":"",
				"publishedAt":%q,"url":"https://example.com/b","source":{"name":"Wire"}},
			{"title":"Broken timestamp","publishedAt":"not-a-date","url":"https://example.com/c","source":{"name":"Wire"}}
		]}`, published, published)
	}))
	defer srv.Close()

	conn := New(testClient(), srv.URL, "secret-key", testClock())
	require.Equal(t, SourceID, conn.SourceID())

	var items []domain.RawItem
	err := conn.Fetch(context.Background(), "acme", time.Time{}, 100, func(item domain.RawItem) error {
		items = append(items, item)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", gotQuery)
	assert.Equal(t, "secret-key", gotKey)

	require.Len(t, items, 2, "articles with unparseable timestamps are dropped")
	assert.Equal(t, "Acme expands into Europe\n\nThe company opened three offices.", items[0].Text)
	assert.Equal(t, "Example Times", items[0].Author)
	assert.Equal(t, "https://example.com/a", items[0].ExternalID)
	assert.Equal(t, "Markets wrap", items[1].Text, "empty descriptions fall back to the title")
}

func TestFetch_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"apiKeyInvalid"}`)
	}))
	defer srv.Close()

	conn := New(testClient(), srv.URL, "bad-key", testClock())

	err := conn.Fetch(context.Background(), "acme", time.Time{}, 100, func(domain.RawItem) error {
		t.Fatal("nothing should be emitted")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}

func TestFetch_SinceNarrowsWindow(t *testing.T) {
	since := testNow.Add(-24 * time.Hour)
	old := since.Add(-3 * time.Hour).Format(time.RFC3339)
	recent := since.Add(30 * time.Minute).Format(time.RFC3339)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","articles":[
			{"title":"Old acme news","publishedAt":%q,"url":"https://example.com/old","source":{"name":"Wire"}},
			{"title":"Fresh acme news","publishedAt":%q,"url":"https://example.com/new","source":{"name":"Wire"}}
		]}`, old, recent)
	}))
	defer srv.Close()

	conn := New(testClient(), srv.URL, "key", testClock())

	var items []domain.RawItem
	err := conn.Fetch(context.Background(), "acme", since, 100, func(item domain.RawItem) error {
		items = append(items, item)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/new", items[0].ExternalID)
}
