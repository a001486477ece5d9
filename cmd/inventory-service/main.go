package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/nexus-shop/internal/adapter/handler"
	"github.com/rl1809/nexus-shop/internal/adapter/messaging"
	"github.com/rl1809/nexus-shop/internal/adapter/storage"
	"github.com/rl1809/nexus-shop/internal/config"
	"github.com/rl1809/nexus-shop/internal/core/service"
	"github.com/rl1809/nexus-shop/internal/observability"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.Load(serviceName, os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateInventory(); err != nil {
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

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("connected to mysql")

	metrics := observability.NewMetrics()
	stockService := service.NewStockService(mysqlAdapter, logger.Named("stock"), metrics)

	// Initialize RabbitMQ
	session := messaging.NewSession(cfg.RabbitMQ.URL, logger.Named("rabbitmq"))
	defer session.Close()

	ch, err := session.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()
	logger.Info("connected to rabbitmq")

	eventHandler := service.NewProductCreatedHandler(stockService, logger.Named("events"), metrics)
	consumer := messaging.NewConsumer(ch, eventHandler, cfg.RabbitMQ.PrefetchCount, logger.Named("consumer"))

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(stockService))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.InventoryServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewInventoryHandler(stockService).Register(mux)
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
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return consumer.Run(gctx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		healthServer.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("connections closed")
	return nil
}
