// Package news implements a news-article source connector against a
// NewsAPI-compatible "everything" endpoint.
package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/brandpulse/internal/connector"
	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/metrics"
)

// SourceID is the stable identifier of this connector.
const SourceID = "news"

// defaultWindow is how far back a fresh analysis looks when no since
// timestamp is given.
const defaultWindow = 7 * 24 * time.Hour

// sinceOverlap pads the from date backward so repeated runs never skip
// articles published around the previous run's boundary.
const sinceOverlap = time.Hour

// Connector fetches news articles mentioning an entity.
type Connector struct {
	client  *connector.Client
	baseURL string
	apiKey  string
	clock   clockwork.Clock
}

// New creates a news connector for the given NewsAPI-compatible base URL.
func New(client *connector.Client, baseURL, apiKey string, clock clockwork.Clock) *Connector {
	return &Connector{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		clock:   clock,
	}
}

// SourceID implements domain.SourceConnector.
func (c *Connector) SourceID() string {
	return SourceID
}

// Fetch implements domain.SourceConnector.
func (c *Connector) Fetch(ctx context.Context, entityQuery string, since time.Time, limit int, emit func(domain.RawItem) error) error {
	to := c.clock.Now().UTC()
	from := to.Add(-defaultWindow)
	if !since.IsZero() {
		from = since.Add(-sinceOverlap)
	}

	params := url.Values{}
	params.Set("q", entityQuery)
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprintf("%d", min(limit, 100)))
	params.Set("apiKey", c.apiKey)

	endpoint := fmt.Sprintf("%s/v2/everything?%s", c.baseURL, params.Encode())

	var resp response
	if err := c.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("%s: %w: upstream status %q: %s",
			SourceID, domain.ErrSourceUnavailable, resp.Status, resp.Message)
	}

	emitted := 0
	for _, article := range resp.Articles {
		if emitted >= limit {
			break
		}
		publishedAt, err := time.Parse(time.RFC3339, article.PublishedAt)
		if err != nil {
			continue
		}
		if publishedAt.Before(from) {
			continue
		}

		text := article.Title
		if strings.TrimSpace(article.Description) != "" {
			text = article.Title + "\n\n" + article.Description
		}

		item := domain.RawItem{
			SourceID:   SourceID,
			ExternalID: article.URL,
			Author:     article.Source.Name,
			Text:       text,
			CreatedAt:  publishedAt.UTC(),
			URL:        article.URL,
		}
		if err := emit(item); err != nil {
			return err
		}
		metrics.ItemsFetched.WithLabelValues(SourceID).Inc()
		emitted++
	}

	return nil
}

type response struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
		URL         string `json:"url"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}
