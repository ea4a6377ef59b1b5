package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/collab"
	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/escalation"
	"github.com/waqiti/amlguard/internal/idempotency"
	"github.com/waqiti/amlguard/internal/ingest"
	"github.com/waqiti/amlguard/internal/pattern"
	"github.com/waqiti/amlguard/internal/scoring"
	"github.com/waqiti/amlguard/internal/screening"
	"github.com/waqiti/amlguard/internal/velocity"
)

const (
	filingRetention  = 90 * 24 * time.Hour
	watchlistRefresh = time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	zapLogger, err := buildLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	var configPaths []string
	if path := os.Getenv("AMLGUARD_CONFIG"); path != "" {
		configPaths = append(configPaths, path)
	}
	cfg, err := config.Load(logger, configPaths...)
	if err != nil {
		logger.Fatalw("Failed to load configuration", "error", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalw("Redis unreachable", "addr", cfg.Redis.Addr, "error", err)
	}

	idemStore := idempotency.NewRedisStore(redisClient, cfg.Ingest.IdempotencyTTL, logger)
	counterStore := velocity.NewRedisCounterStore(redisClient)

	velocityEval := velocity.NewEvaluator(counterStore, cfg.Velocity, logger)
	patternAnalyzer := pattern.NewAnalyzer(cfg.Pattern, logger)

	// Primary reference data lives in redis, maintained by the watchlist
	// loader; the builtin list is the failover when redis has no list or is
	// unreachable.
	primary := screening.NewRedisSource(redisClient, screening.WatchlistKey, watchlistRefresh)
	fallback := screening.NewStaticSource("builtin-watchlist", screening.BuiltinWatchlist())
	matcher := screening.NewMatcher([]screening.ReferenceSource{primary, fallback}, cfg.Screening, logger)

	scorer := scoring.NewScorer(scoring.NewProfileStore(), cfg.Scoring, cfg.Screening.HighConfidence, logger)
	caseManager := escalation.NewCaseManager(cfg.Escalation, logger)

	publisher := collab.NewKafkaAlertPublisher(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, cfg.Kafka.WriteTimeout, logger)
	defer publisher.Close()
	deadLetters := collab.NewKafkaDeadLetterSink(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic, cfg.Kafka.WriteTimeout, logger)
	defer deadLetters.Close()
	filings := collab.NewRedisFilingQueue(redisClient, filingRetention, logger)

	gateway := ingest.NewGateway(ingest.GatewayDeps{
		Idempotency: idemStore,
		Velocity:    velocityEval,
		Pattern:     patternAnalyzer,
		Screener:    matcher,
		Scorer:      scorer,
		Cases:       caseManager,
		Publisher:   publisher,
		DeadLetters: deadLetters,
		Filings:     filings,
	}, cfg.Ingest, cfg.Screening.AcceptThreshold, logger)

	consumer := ingest.NewConsumer(cfg.Kafka, cfg.Ingest, gateway, deadLetters, logger)
	defer consumer.Close()

	go serveMetrics(logger)

	logger.Infow("amlguard starting",
		"environment", cfg.Environment,
		"event_topic", cfg.Kafka.EventTopic,
		"consumer_group", cfg.Kafka.ConsumerGroup,
	)

	if err := consumer.Run(ctx); err != nil {
		logger.Fatalw("Consumer terminated", "error", err)
	}
	logger.Infow("amlguard stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = parsed
	}
	return cfg.Build()
}

func serveMetrics(logger *zap.SugaredLogger) {
	addr := os.Getenv("AMLGUARD_METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.Infow("Metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorw("Metrics server stopped", "error", err)
	}
}
