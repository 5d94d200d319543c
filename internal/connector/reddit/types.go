package reddit

import (
	"fmt"
	"strings"
	"time"

	"github.com/pscheid92/brandpulse/internal/domain"
)

// listing is the envelope Reddit wraps every result page in.
type listing struct {
	Data struct {
		Children []struct {
			Kind string    `json:"kind"` // "t3" posts, "t1" comments
			Data childData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// childData covers the fields shared by post (t3) and comment (t1) payloads.
type childData struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
}

type post = childData

type comment struct {
	ID         string
	Author     string
	Body       string
	CreatedUTC float64
	Permalink  string
}

func (p post) rawItem() domain.RawItem {
	text := p.Title
	if strings.TrimSpace(p.Selftext) != "" {
		text = p.Title + "\n\n" + p.Selftext
	}
	return domain.RawItem{
		SourceID:   SourceID,
		ExternalID: "t3_" + p.ID,
		Author:     p.Author,
		Text:       text,
		CreatedAt:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
		URL:        permalinkURL(p.Permalink),
	}
}

func (c comment) rawItem() domain.RawItem {
	return domain.RawItem{
		SourceID:   SourceID,
		ExternalID: "t1_" + c.ID,
		Author:     c.Author,
		Text:       c.Body,
		CreatedAt:  time.Unix(int64(c.CreatedUTC), 0).UTC(),
		URL:        permalinkURL(c.Permalink),
	}
}

func permalinkURL(permalink string) string {
	return fmt.Sprintf("https://reddit.com%s", permalink)
}
