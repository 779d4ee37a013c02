package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/vinostock/internal/adapter/catalog"
	"github.com/rl1809/vinostock/internal/adapter/handler"
	"github.com/rl1809/vinostock/internal/adapter/handler/pb"
	"github.com/rl1809/vinostock/internal/adapter/messaging"
	"github.com/rl1809/vinostock/internal/adapter/storage"
	"github.com/rl1809/vinostock/internal/app"
	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/service"
	"github.com/rl1809/vinostock/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceInventory)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Service, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Service, config.ServiceVersion, cfg.OtelEndpoint, config.TracesPath)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	db, err := app.OpenMySQL(ctx, cfg, storage.SchemaInventory, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := app.OpenRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	producer, err := messaging.NewAlertProducer(cfg.KafkaBrokers, cfg.AlertTopic, cfg.Service, logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	stockService := service.NewStockService(
		storage.NewStockStore(db),
		catalog.NewClient(cfg.CatalogURL, cfg.GatewaySecret, cfg.RemoteTimeout, logger),
		producer,
		storage.NewRedisAdapter(rdb),
		logger,
	)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(handler.GatewayAuthInterceptor(cfg.GatewaySecret)),
	)
	pb.RegisterStockLedgerServer(grpcServer, handler.NewGRPCHandler(stockService, logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(pb.StockLedgerServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handler.NewRouter(cfg.Service, cfg.GatewaySecret, logger,
			handler.NewInventoryHandler(stockService, logger),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := app.ServeGRPC(gctx, g, grpcServer, cfg.GRPCAddr, logger); err != nil {
		return err
	}
	app.ServeHTTP(gctx, g, httpServer, logger)

	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		return nil
	})

	err = g.Wait()
	logger.Info("inventory service stopped", zap.Error(err))
	return err
}
