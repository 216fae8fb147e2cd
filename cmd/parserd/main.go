package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser/batch"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser/cache"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser/handler"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/parser/stream"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/internal/querylog"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/parserd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	strays, err := query.ParseStrayBracketPolicy(cfg.Parser.StrayBrackets)
	if err != nil {
		slog.Error("invalid parser config", "error", err)
		os.Exit(1)
	}
	queryParser := query.New(query.Options{MaxDepth: cfg.Parser.MaxDepth, StrayBrackets: strays})
	slog.Info("starting parse service",
		"port", cfg.Server.Port,
		"options", queryParser.Options().Fingerprint(),
		"max_query_length", cfg.Parser.MaxQueryLength,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	opts := []parser.Option{parser.WithMetrics(m)}

	var cacheAdmin handler.CacheAdmin
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, condition caching disabled", "error", err)
			checker.Register("redis", unavailable(err))
		} else {
			defer redisClient.Close()
			conditionCache := cache.New(redisClient, queryParser, cfg.Redis, m)
			opts = append(opts, parser.WithCache(conditionCache))
			cacheAdmin = conditionCache
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("condition cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	var queryLog handler.QueryLog
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, query log disabled", "error", err)
			checker.Register("postgres", unavailable(err))
		} else {
			defer db.Close()
			store := querylog.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("query log schema setup failed, query log disabled", "error", err)
				checker.Register("postgres", unavailable(err))
			} else {
				// The recorder outlives ctx so requests finishing during
				// shutdown are still logged; Close drains it.
				recorder := querylog.NewRecorder(store, cfg.Postgres, m)
				recorder.Start(context.Background())
				defer recorder.Close()
				opts = append(opts, parser.WithRecorder(recorder))
				queryLog = store
				checker.Register("postgres", health.PingCheck(db.Ping, health.StatusDegraded))
				slog.Info("query log enabled",
					"host", cfg.Postgres.Host,
					"database", cfg.Postgres.Database,
				)
			}
		}
	}

	svc := parser.NewService(queryParser, cfg.Parser.MaxQueryLength, opts...)
	checker.Register("parser", svc.SelfTest())
	runner := batch.NewRunner(svc, cfg.Parser.MaxBatchSize, cfg.Parser.BatchConcurrency)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ParseResults)
		defer producer.Close()
		worker := stream.NewWorker(svc, producer, resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		}, m)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ParseRequests, worker.Handler())
		consumerDone := make(chan struct{})
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				slog.Error("parse request consumer error", "error", err)
			}
		}()
		defer func() {
			<-consumerDone
			if err := consumer.Close(); err != nil {
				slog.Error("closing parse request consumer", "error", err)
			}
		}()
		checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("consumer lag %d", consumer.Lag())}
		})
		slog.Info("parse stream worker started",
			"requests", cfg.Kafka.Topics.ParseRequests,
			"results", cfg.Kafka.Topics.ParseResults,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	if cfg.Metrics.Enabled {
		_, shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	h := handler.New(svc, runner, cacheAdmin, queryLog)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/parse", h.Parse)
	mux.HandleFunc("POST /api/v1/parse/batch", h.Batch)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/queries/recent", h.RecentQueries)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.CORS(cfg.Server.AllowOrigins)(chain)
	chain = middleware.Metrics(m)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("failed to listen", "addr", server.Addr, "error", err)
		os.Exit(1)
	}
	slog.Info("parse service listening", "addr", ln.Addr().String())
	if err := serve(ctx, server, ln, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
	}

	slog.Info("parse service stopped")
}

// serve runs server on ln until ctx ends, then shuts it down. It returns
// only after Shutdown has finished draining in-flight requests or timeout
// has passed.
func serve(ctx context.Context, server *http.Server, ln net.Listener, timeout time.Duration) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// unavailable reports a backend that failed at startup. The service keeps
// serving without it.
func unavailable(err error) health.Check {
	return health.Static(health.StatusDegraded, "unavailable at startup: "+err.Error())
}
