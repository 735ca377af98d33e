// Package server wires the marksync server together: configuration, logging,
// Postgres, the notification stream, and the HTTP and gRPC front ends, and
// runs them until a signal or a fatal error.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/server/config"
	gs "github.com/dmitrijs2005/marksync/internal/server/grpc"
	"github.com/dmitrijs2005/marksync/internal/server/httpapi"
	"github.com/dmitrijs2005/marksync/internal/server/notify"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/marksync/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

var (
	openDB                 = repomanager.OpenDB
	newRepositoryManager   = func() repomanager.RepositoryManager { return repomanager.NewPostgresRepositoryManager() }
	connectRedis           = notify.Connect
	logOutput    io.Writer = os.Stdout
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	notifier    services.Notifier
	closers     []func() error
	userService *services.UserService
	syncService *services.SyncService
	exports     *services.ExportService
}

// NewApp opens every backing service and applies pending migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, logOutput)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	if c.RedisAddr != "" {
		client, err := connectRedis(ctx, notify.DefaultConnectOptions(c.RedisAddr), logger)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		app.notifier = notify.NewRedisNotifier(client, c.RedisStream)
	} else {
		logger.Warn(ctx, "no redis address configured, bookmark events are only logged")
		app.notifier = notify.NewLogNotifier(logger)
	}

	app.userService = services.NewUserService(db, rm, c)
	app.syncService = services.NewSyncService(db, rm, app.notifier, logger)
	app.exports = services.NewExportService(app.syncService, c, logger)

	return app, nil
}

// Close releases everything NewApp opened, last opened first.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) httpHandler() http.Handler {
	h := httpapi.NewHandler(app.syncService, app.exports, app.db, app.logger)
	return httpapi.NewRouter(h, app.userService, app.logger)
}

// Run serves HTTP and gRPC until ctx is cancelled, SIGINT/SIGTERM arrives,
// or one of the servers fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	httpListener, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	grpcListener, err := net.Listen("tcp", app.config.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("grpc listen: %w", err)
	}

	httpServer := httpapi.NewServer(app.config.HTTPAddr, app.httpHandler())
	grpcServer := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.userService, app.syncService, app.exports)

	app.logger.Info(ctx, "Starting app...", "http", httpListener.Addr().String(), "grpc", grpcListener.Addr().String())

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(gCtx, grpcListener); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.logger.Info(ctx, "Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		app.logger.Error(ctx, "Application error", "error", err)
		return err
	}

	app.logger.Info(ctx, "Server stopped successfully")
	return nil
}
