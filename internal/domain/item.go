package domain

import "time"

// RawItem is a single piece of text fetched from an upstream source.
// It is immutable once emitted by a connector.
type RawItem struct {
	SourceID   string    `json:"source_id"`
	ExternalID string    `json:"external_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	URL        string    `json:"url"`
}

// Fingerprint identifies a piece of content by its normalized text and
// source. Two RawItems with the same fingerprint are the same underlying
// content (cross-posts, trivial edits).
type Fingerprint string

// MentionSpan is the [Start, End) byte range of the confirmed entity
// mention inside the item text.
type MentionSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ScoredItem is a RawItem that passed dedup and mention extraction and was
// scored by a sentiment model. It is immutable after creation: re-scoring
// with a newer model produces a new ScoredItem under a new model version.
type ScoredItem struct {
	RawItem

	EntityQuery    string       `json:"entity_query"`
	Fingerprint    Fingerprint  `json:"fingerprint"`
	SentimentScore float64      `json:"sentiment_score"`
	Confidence     float64      `json:"confidence"`
	ModelVersion   string       `json:"model_version"`
	Mention        *MentionSpan `json:"mention_span,omitempty"`
}

// SentimentBand is the coarse classification derived from a continuous
// score via configured thresholds.
type SentimentBand string

const (
	BandPositive SentimentBand = "positive"
	BandNeutral  SentimentBand = "neutral"
	BandNegative SentimentBand = "negative"
)

// Thresholds hold the band cut-offs. Scores >= Positive are positive,
// scores <= Negative are negative, everything in between is neutral.
type Thresholds struct {
	Positive float64
	Negative float64
}

// Band classifies a score.
func (t Thresholds) Band(score float64) SentimentBand {
	switch {
	case score >= t.Positive:
		return BandPositive
	case score <= t.Negative:
		return BandNegative
	default:
		return BandNeutral
	}
}
