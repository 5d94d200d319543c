// Package reddit implements the Reddit source connector on top of the
// public search JSON API. One entity query fans out into several search
// phrasings (review, experience, opinion, working-at) and harvests both
// posts and the top comments under them.
package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pscheid92/brandpulse/internal/connector"
	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/metrics"
)

// SourceID is the stable identifier of this connector.
const SourceID = "reddit"

// sinceOverlap is how far behind the requested since we reach. Reddit's
// search ordering cannot resume from an exact cursor, so repeated runs
// overlap backward instead of risking a silent gap; dedup absorbs the
// overlap.
const sinceOverlap = 15 * time.Minute

// queryTemplates mirror the phrasings people use when discussing a company
// or product, one search request each.
var queryTemplates = []string{
	"%s review",
	"%s experience",
	"%s opinion",
	"working at %s",
}

// minCommentLength filters out low-signal comments ("this", "+1", links).
const minCommentLength = 50

// maxCommentsPerPost bounds comment harvesting per submission.
const maxCommentsPerPost = 2

// Connector fetches Reddit posts and comments mentioning an entity.
type Connector struct {
	client          *connector.Client
	baseURL         string
	subreddits      []string
	includeComments bool
}

// New creates a Reddit connector. subreddits restricts the search scope
// ("all" searches site-wide); includeComments additionally pulls top
// comments for every matching post.
func New(client *connector.Client, baseURL string, subreddits []string, includeComments bool) *Connector {
	if len(subreddits) == 0 {
		subreddits = []string{"all"}
	}
	return &Connector{
		client:          client,
		baseURL:         strings.TrimRight(baseURL, "/"),
		subreddits:      subreddits,
		includeComments: includeComments,
	}
}

// SourceID implements domain.SourceConnector.
func (c *Connector) SourceID() string {
	return SourceID
}

// Subreddits returns the tracked subreddit scope.
func (c *Connector) Subreddits() []string {
	return append([]string(nil), c.subreddits...)
}

// Fetch implements domain.SourceConnector. Items are emitted in the order
// the API returns them; a post seen under several query phrasings is only
// emitted once per fetch (the cross-run dedup happens downstream).
func (c *Connector) Fetch(ctx context.Context, entityQuery string, since time.Time, limit int, emit func(domain.RawItem) error) error {
	cutoff := since
	if !cutoff.IsZero() {
		cutoff = cutoff.Add(-sinceOverlap)
	}

	seen := make(map[string]struct{})
	emitted := 0

	forward := func(item domain.RawItem) error {
		if _, dup := seen[item.ExternalID]; dup {
			return nil
		}
		seen[item.ExternalID] = struct{}{}
		if !cutoff.IsZero() && item.CreatedAt.Before(cutoff) {
			return nil
		}
		if err := emit(item); err != nil {
			return err
		}
		metrics.ItemsFetched.WithLabelValues(SourceID).Inc()
		emitted++
		return nil
	}

	for _, template := range queryTemplates {
		if emitted >= limit {
			break
		}
		query := fmt.Sprintf(template, entityQuery)

		posts, err := c.search(ctx, query, limit-emitted)
		if err != nil {
			return err
		}

		for _, post := range posts {
			if emitted >= limit {
				break
			}
			raw := post.rawItem()
			if _, dup := seen[raw.ExternalID]; dup {
				// Already harvested under an earlier query phrasing.
				continue
			}
			if err := forward(raw); err != nil {
				return err
			}

			if !c.includeComments {
				continue
			}
			comments, err := c.topComments(ctx, post.Permalink)
			if err != nil {
				// A single comment page failing should not sink the whole
				// source; posts already emitted stand on their own.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			for _, comment := range comments {
				if emitted >= limit {
					break
				}
				if err := forward(comment.rawItem()); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (c *Connector) search(ctx context.Context, query string, limit int) ([]post, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "new")
	params.Set("t", "year")
	params.Set("limit", fmt.Sprintf("%d", min(limit, 100)))
	if len(c.subreddits) == 1 && c.subreddits[0] == "all" {
		params.Set("restrict_sr", "false")
	} else {
		params.Set("restrict_sr", "true")
	}

	endpoint := fmt.Sprintf("%s/r/%s/search.json?%s",
		c.baseURL, strings.Join(c.subreddits, "+"), params.Encode())

	var listing listing
	if err := c.client.GetJSON(ctx, endpoint, &listing); err != nil {
		return nil, err
	}

	posts := make([]post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind == "t3" {
			posts = append(posts, child.Data)
		}
	}
	return posts, nil
}

// topComments fetches the first comment page of a submission and keeps the
// first few substantial comments.
func (c *Connector) topComments(ctx context.Context, permalink string) ([]comment, error) {
	endpoint := fmt.Sprintf("%s%s.json?limit=%d&depth=1",
		c.baseURL, strings.TrimRight(permalink, "/"), maxCommentsPerPost*4)

	// The comments endpoint returns a two-element array: the submission
	// listing followed by the comment listing.
	var pages []listing
	if err := c.client.GetJSON(ctx, endpoint, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}

	comments := make([]comment, 0, maxCommentsPerPost)
	for _, child := range pages[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		cm := comment{
			ID:         child.Data.ID,
			Author:     child.Data.Author,
			Body:       child.Data.Body,
			CreatedUTC: child.Data.CreatedUTC,
			Permalink:  child.Data.Permalink,
		}
		if len(cm.Body) < minCommentLength {
			continue
		}
		comments = append(comments, cm)
		if len(comments) >= maxCommentsPerPost {
			break
		}
	}
	return comments, nil
}
