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

	"github.com/rl1809/vinostock/internal/adapter/handler"
	"github.com/rl1809/vinostock/internal/adapter/mail"
	"github.com/rl1809/vinostock/internal/adapter/messaging"
	"github.com/rl1809/vinostock/internal/adapter/storage"
	"github.com/rl1809/vinostock/internal/adapter/stream"
	"github.com/rl1809/vinostock/internal/app"
	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/service"
	"github.com/rl1809/vinostock/internal/observability"
	"github.com/rl1809/vinostock/internal/port"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceNotification)
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

	db, err := app.OpenPostgres(ctx, cfg, storage.SchemaNotification, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := stream.NewHub(cfg.StreamBuffer, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		return nil
	})

	var broadcaster port.AlertBroadcaster = hub
	if cfg.RedisRelay {
		rdb, err := app.OpenRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()

		relay := stream.NewRedisRelay(rdb, config.AlertRelayChannel, hub, logger)
		broadcaster = relay
		g.Go(func() error { return relay.Run(gctx) })
	}

	var notifier port.AlertNotifier
	if cfg.MailEnabled() {
		mailer, err := mail.NewAlertMailer(cfg.SendGridAPIKey, cfg.AlertEmailFrom, cfg.AlertEmailTo, logger)
		if err != nil {
			return err
		}
		notifier = mailer
	}

	alerts := service.NewAlertService(storage.NewAlertStore(db), broadcaster, notifier, logger)

	consumer := messaging.NewAlertConsumer(cfg.KafkaBrokers, cfg.AlertTopic, cfg.AlertGroupID, alerts, logger)
	defer consumer.Close()
	g.Go(func() error { return consumer.Run(gctx) })

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handler.NewRouter(cfg.Service, cfg.GatewaySecret, logger,
			handler.NewAlertHandler(alerts, hub, logger),
		),
	}
	app.ServeHTTP(gctx, g, httpServer, logger)

	err = g.Wait()
	logger.Info("notification service stopped", zap.Error(err))
	return err
}
