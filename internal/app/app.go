// Package app holds the process wiring shared by the service binaries:
// connection setup and the serve-until-signal lifecycle.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/vinostock/internal/adapter/storage"
	"github.com/rl1809/vinostock/internal/config"
)

const (
	ShutdownTimeout = 20 * time.Second
	connMaxLifetime = 5 * time.Minute
)

func OpenMySQL(ctx context.Context, cfg *config.Config, schema string, logger *zap.Logger) (*sql.DB, error) {
	return openDB(ctx, "mysql", cfg.MySQLDSN, cfg, schema, logger)
}

func OpenPostgres(ctx context.Context, cfg *config.Config, schema string, logger *zap.Logger) (*sql.DB, error) {
	return openDB(ctx, "postgres", cfg.PostgresDSN, cfg, schema, logger)
}

func openDB(ctx context.Context, driver, dsn string, cfg *config.Config, schema string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	logger.Info("connected to database", zap.String("driver", driver))

	if cfg.AutoMigrate {
		if err := storage.EnsureSchema(ctx, db, schema); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("schema ensured", zap.String("schema", schema))
	}
	return db, nil
}

func OpenRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return rdb, nil
}

// ServeHTTP runs srv in g until ctx is done, then drains it.
func ServeHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *zap.Logger) {
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})
}

// ServeGRPC listens on addr and runs srv in g until ctx is done.
func ServeGRPC(ctx context.Context, g *errgroup.Group, srv *grpc.Server, addr string, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(ShutdownTimeout):
			srv.Stop()
		}
		logger.Info("gRPC server stopped")
		return nil
	})
	return nil
}
