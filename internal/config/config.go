package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config carries every tunable of the service. Values come from the
// environment (optionally via a .env file in development).
type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Sentiment banding thresholds: score >= positive -> positive,
	// score <= negative -> negative, else neutral.
	PositiveThreshold float64 `env:"SENTIMENT_POSITIVE_THRESHOLD" default:"0.2"`
	NegativeThreshold float64 `env:"SENTIMENT_NEGATIVE_THRESHOLD" default:"-0.2"`

	BucketWidth time.Duration `env:"BUCKET_WIDTH" default:"24h"`
	DedupTTL    time.Duration `env:"DEDUP_TTL" default:"168h"` // dedup window, 7 days

	FetchLimit     int `env:"FETCH_LIMIT" default:"100"`
	ScoringWorkers int `env:"SCORING_WORKERS" default:"4"`

	// Per-connector throttling and retry.
	SourceRequestsPerSecond float64       `env:"SOURCE_REQUESTS_PER_SECOND" default:"1"`
	SourceRetryAttempts     int           `env:"SOURCE_RETRY_ATTEMPTS" default:"4"`
	SourceInitialBackoff    time.Duration `env:"SOURCE_INITIAL_BACKOFF" default:"500ms"`
	SourceRateLimitBackoff  time.Duration `env:"SOURCE_RATE_LIMIT_BACKOFF" default:"10s"`

	RedditBaseURL   string `env:"REDDIT_BASE_URL" default:"https://www.reddit.com"`
	RedditUserAgent string `env:"REDDIT_USER_AGENT" default:"brandpulse/1.0"`
	NewsAPIBaseURL  string `env:"NEWS_API_BASE_URL" default:"https://newsapi.org"`
	NewsAPIKey      string `env:"NEWS_API_KEY"`

	// Comma-separated list of subreddits the Reddit connector tracks.
	TrackedSubreddits string `env:"TRACKED_SUBREDDITS" default:"all"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.PositiveThreshold <= cfg.NegativeThreshold {
		return fmt.Errorf("SENTIMENT_POSITIVE_THRESHOLD (%v) must be greater than SENTIMENT_NEGATIVE_THRESHOLD (%v)",
			cfg.PositiveThreshold, cfg.NegativeThreshold)
	}
	if cfg.BucketWidth <= 0 {
		return fmt.Errorf("BUCKET_WIDTH must be positive, got %v", cfg.BucketWidth)
	}
	if cfg.FetchLimit < 1 {
		return fmt.Errorf("FETCH_LIMIT must be at least 1, got %d", cfg.FetchLimit)
	}
	if cfg.ScoringWorkers < 1 {
		return fmt.Errorf("SCORING_WORKERS must be at least 1, got %d", cfg.ScoringWorkers)
	}
	if cfg.SourceRetryAttempts < 1 {
		return fmt.Errorf("SOURCE_RETRY_ATTEMPTS must be at least 1, got %d", cfg.SourceRetryAttempts)
	}

	return nil
}

// Subreddits returns the tracked subreddit list, trimmed and without empty
// entries.
func (c *Config) Subreddits() []string {
	parts := strings.Split(c.TrackedSubreddits, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
