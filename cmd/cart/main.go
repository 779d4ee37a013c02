package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/vinostock/internal/adapter/catalog"
	"github.com/rl1809/vinostock/internal/adapter/handler"
	"github.com/rl1809/vinostock/internal/adapter/ledger"
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
	cfg, err := config.Load(config.ServiceCart)
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

	db, err := app.OpenMySQL(ctx, cfg, storage.SchemaCart, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := app.OpenRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ledgerClient, err := ledger.NewClient(cfg.LedgerAddr, cfg.GatewaySecret, cfg.RemoteTimeout, logger)
	if err != nil {
		return err
	}
	defer ledgerClient.Close()

	carts := storage.NewCartStore(db)
	cartService := service.NewCartService(
		carts,
		catalog.NewClient(cfg.CatalogURL, cfg.GatewaySecret, cfg.RemoteTimeout, logger),
		ledgerClient,
		logger,
	)
	checkout := service.NewCheckoutService(carts, ledgerClient, storage.NewRedisAdapter(rdb), cfg.CheckoutLockTTL, logger)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handler.NewRouter(cfg.Service, cfg.GatewaySecret, logger,
			handler.NewCartHandler(cartService, checkout, logger),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	app.ServeHTTP(gctx, g, httpServer, logger)

	err = g.Wait()
	logger.Info("cart service stopped", zap.Error(err))
	return err
}
