package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/brandpulse/internal/aggregate"
	"github.com/pscheid92/brandpulse/internal/config"
	"github.com/pscheid92/brandpulse/internal/connector"
	"github.com/pscheid92/brandpulse/internal/connector/news"
	"github.com/pscheid92/brandpulse/internal/connector/reddit"
	"github.com/pscheid92/brandpulse/internal/dedup"
	"github.com/pscheid92/brandpulse/internal/domain"
	"github.com/pscheid92/brandpulse/internal/logging"
	"github.com/pscheid92/brandpulse/internal/mention"
	"github.com/pscheid92/brandpulse/internal/orchestrator"
	"github.com/pscheid92/brandpulse/internal/sentiment"
	"github.com/pscheid92/brandpulse/internal/server"
	"github.com/pscheid92/brandpulse/internal/store/postgres"
	"github.com/pscheid92/brandpulse/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		os.Exit(1)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupConnectors(cfg *config.Config, clock clockwork.Clock) (*connector.Registry, *reddit.Connector) {
	clientOpts := func(sourceID string) connector.Options {
		return connector.Options{
			SourceID:          sourceID,
			RequestsPerSecond: cfg.SourceRequestsPerSecond,
			RetryAttempts:     cfg.SourceRetryAttempts,
			InitialBackoff:    cfg.SourceInitialBackoff,
			RateLimitBackoff:  cfg.SourceRateLimitBackoff,
			UserAgent:         cfg.RedditUserAgent,
		}
	}

	redditConn := reddit.New(
		connector.NewClient(clientOpts(reddit.SourceID)),
		cfg.RedditBaseURL, cfg.Subreddits(), true,
	)

	connectors := []domain.SourceConnector{redditConn}
	if cfg.NewsAPIKey != "" {
		connectors = append(connectors, news.New(
			connector.NewClient(clientOpts(news.SourceID)),
			cfg.NewsAPIBaseURL, cfg.NewsAPIKey, clock,
		))
	} else {
		slog.Info("NEWS_API_KEY not set, news connector disabled")
	}

	return connector.NewRegistry(connectors...), redditConn
}

func runGracefulShutdown(srv *server.Server, orch *orchestrator.Orchestrator) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		orch.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port, "version", version.String())

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	itemRepo := postgres.NewItemRepo(pool)
	bucketRepo := postgres.NewBucketRepo(pool)
	runRepo := postgres.NewRunRepo(pool)
	fingerprints := dedup.NewRedisSet(redisClient, cfg.DedupTTL)

	thresholds := domain.Thresholds{
		Positive: cfg.PositiveThreshold,
		Negative: cfg.NegativeThreshold,
	}
	aggregator := aggregate.New(itemRepo, bucketRepo, thresholds, cfg.BucketWidth)

	registry, redditConn := setupConnectors(cfg, clock)

	orch := orchestrator.New(
		registry,
		fingerprints,
		mention.NewExtractor(nil),
		sentiment.NewLexiconScorer(),
		aggregator,
		runRepo,
		clock,
		cfg.FetchLimit,
		cfg.ScoringWorkers,
	)

	srv := server.NewServer(cfg, orch, aggregator, itemRepo, runRepo, redditConn.Subreddits(),
		server.ReadinessCheck{Name: "postgres", Check: pool.Ping},
		server.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)

	done := runGracefulShutdown(srv, orch)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
