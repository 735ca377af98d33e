package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/config"
	"github.com/dmitrijs2005/marksync/internal/client/services"
	"github.com/dmitrijs2005/marksync/internal/filex"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// ReplicaFile is the name of the replica database inside the data directory.
const ReplicaFile = "replica.db"

// Services is what one command runs against.
type Services struct {
	Auth      services.AuthService
	Bookmarks services.BookmarkService
	Close     func() error
}

// Factory opens the replica and the server connection for cfg.
type Factory func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Services, error)

// OpenServices is the production Factory.
func OpenServices(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Services, error) {
	dir, err := filex.DataDir(cfg.DataDir, config.AppName)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	db, err := client.InitDatabase(ctx, filepath.Join(dir, ReplicaFile))
	if err != nil {
		return nil, err
	}

	apiClient, err := client.NewGRPCClient(cfg.ServerAddr, cfg.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	auth := services.NewAuthService(apiClient, db)
	return &Services{
		Auth:      auth,
		Bookmarks: services.NewBookmarkService(apiClient, db, http.DefaultClient, logger),
		Close: func() error {
			err := auth.Close()
			if dbErr := db.Close(); err == nil {
				err = dbErr
			}
			return err
		},
	}, nil
}

type App struct {
	in      *bufio.Reader
	out     io.Writer
	errOut  io.Writer
	factory Factory
}

func NewApp() *App {
	return &App{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		errOut:  os.Stderr,
		factory: OpenServices,
	}
}

// Run parses args (including the program name) and runs the command.
func (a *App) Run(ctx context.Context, args []string) error {
	return a.Command().Run(ctx, args)
}

// session is the state of one command invocation.
type session struct {
	*Services
	username string
	logger   logging.Logger
}

// configFrom loads the config file named by --config and applies the
// global flags on top of it.
func configFrom(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("server") {
		cfg.ServerAddr = cmd.String("server")
	}
	if cmd.IsSet("data-dir") {
		cfg.DataDir = cmd.String("data-dir")
	}
	if cmd.IsSet("timeout") {
		cfg.RequestTimeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// action wraps a command body with opening and closing the session.
func (a *App) action(fn func(ctx context.Context, cmd *cli.Command, s *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogBackend, cfg.LogLevel, a.errOut)
		if err != nil {
			return fmt.Errorf("logger init error: %w", err)
		}

		svc, err := a.factory(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := svc.Close(); err == nil {
				err = cerr
			}
		}()

		username, err := svc.Auth.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume session: %w", err)
		}

		s := &session{Services: svc, username: username, logger: logger}
		fnErr := fn(ctx, cmd, s)
		if err := svc.Auth.SaveSession(ctx); err != nil {
			if fnErr == nil {
				return fmt.Errorf("save session: %w", err)
			}
			logger.Warn(ctx, "Could not save session", "error", err)
		}
		return fnErr
	}
}
