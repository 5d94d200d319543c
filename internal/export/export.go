// Package export serializes scored items and aggregates for download:
// row-oriented CSV and nested JSON, lossless over the pipeline's fields.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pscheid92/brandpulse/internal/domain"
)

var itemHeader = []string{
	"entity_query", "source_id", "external_id", "author", "text",
	"created_at", "url", "sentiment_score", "confidence", "model_version",
	"fingerprint", "mention_start", "mention_end",
}

// ItemsCSV writes scored items as CSV rows.
func ItemsCSV(w io.Writer, items []domain.ScoredItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(itemHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, item := range items {
		mentionStart, mentionEnd := "", ""
		if item.Mention != nil {
			mentionStart = strconv.Itoa(item.Mention.Start)
			mentionEnd = strconv.Itoa(item.Mention.End)
		}
		record := []string{
			item.EntityQuery,
			item.SourceID,
			item.ExternalID,
			item.Author,
			item.Text,
			item.CreatedAt.UTC().Format(time.RFC3339),
			item.URL,
			strconv.FormatFloat(item.SentimentScore, 'f', -1, 64),
			strconv.FormatFloat(item.Confidence, 'f', -1, 64),
			item.ModelVersion,
			string(item.Fingerprint),
			mentionStart,
			mentionEnd,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ItemsJSON writes scored items as a JSON document.
func ItemsJSON(w io.Writer, items []domain.ScoredItem) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"items": items, "count": len(items)})
}

var bucketHeader = []string{
	"entity_query", "source_id", "bucket_start", "count", "sum_score",
	"mean_score", "positive_count", "negative_count", "neutral_count",
}

// BucketsCSV writes time buckets as CSV rows.
func BucketsCSV(w io.Writer, buckets []domain.TimeBucket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(bucketHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, b := range buckets {
		record := []string{
			b.EntityQuery,
			b.SourceID,
			b.BucketStart.UTC().Format(time.RFC3339),
			strconv.FormatInt(b.Count, 10),
			strconv.FormatFloat(b.SumScore, 'f', -1, 64),
			strconv.FormatFloat(b.MeanScore(), 'f', -1, 64),
			strconv.FormatInt(b.PositiveCount, 10),
			strconv.FormatInt(b.NegativeCount, 10),
			strconv.FormatInt(b.NeutralCount, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
