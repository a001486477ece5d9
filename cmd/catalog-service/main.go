package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/nexus-shop/internal/adapter/handler"
	"github.com/rl1809/nexus-shop/internal/adapter/messaging"
	"github.com/rl1809/nexus-shop/internal/adapter/storage"
	"github.com/rl1809/nexus-shop/internal/config"
	"github.com/rl1809/nexus-shop/internal/core/service"
	"github.com/rl1809/nexus-shop/internal/observability"
)

const serviceName = "catalog-service"

func main() {
	cfg, err := config.Load(serviceName, os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateCatalog(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%s stopped: %v", serviceName, err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, otelErr := observability.Setup(ctx, cfg)
	logger := observability.NewLogger(cfg, otelErr == nil && cfg.Otel.Endpoint != "")
	defer logger.Sync()
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Warn("failed to flush telemetry", zap.Error(err))
		}
	}()
	if otelErr != nil {
		logger.Error("failed to set up OpenTelemetry, continuing without export", zap.Error(otelErr))
	}

	// Initialize MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to mongodb")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis")

	// Initialize RabbitMQ
	session := messaging.NewSession(cfg.RabbitMQ.URL, logger.Named("rabbitmq"))
	defer session.Close()

	publisher := messaging.NewPublisher(session.Channel)
	if err := publisher.Connect(ctx); err != nil {
		return err
	}
	logger.Info("connected to rabbitmq")

	metrics := observability.NewMetrics()
	productService := service.NewProductService(
		storage.NewMongoAdapter(mongoClient.Database(cfg.Mongo.Database)),
		storage.NewRedisAdapter(rdb, cfg.Redis.CacheTTL, logger.Named("cache"), metrics),
		publisher,
		logger.Named("catalog"),
		metrics,
	)

	mux := http.NewServeMux()
	handler.NewProductHandler(productService).Register(mux)
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Wrap(mux, serviceName, logger.Named("http"), metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
