// Package admin is the operator tool for a marksync deployment: it applies
// migrations, creates accounts and seeds a user's collection from a Pinboard
// export without going through the network APIs.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/importer"
	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/server/config"
	"github.com/dmitrijs2005/marksync/internal/server/models"
	"github.com/dmitrijs2005/marksync/internal/server/notify"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/marksync/internal/server/services"
)

type Users interface {
	Register(ctx context.Context, username string, password []byte) (*models.User, error)
	GetUser(ctx context.Context, userName string) (*models.User, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, owner uuid.UUID, incoming []bookmark.Bookmark) (*services.ReconcileResult, error)
}

// Backend is what the commands run against.
type Backend struct {
	Users   Users
	Sync    Reconciler
	Migrate func(ctx context.Context) error
	Close   func() error
}

// Opener connects to the database named by cfg.
type Opener func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Backend, error)

// Open is the production Opener. It does not migrate; the migrate command
// does that explicitly.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Backend, error) {
	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	closers := []func() error{db.Close}

	var notifier services.Notifier = notify.NewLogNotifier(logger)
	if cfg.RedisAddr != "" {
		client, err := notify.Connect(ctx, notify.DefaultConnectOptions(cfg.RedisAddr), logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		closers = append(closers, client.Close)
		notifier = notify.NewRedisNotifier(client, cfg.RedisStream)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	return &Backend{
		Users: services.NewUserService(db, rm, cfg),
		Sync:  services.NewSyncService(db, rm, notifier, logger),
		Migrate: func(ctx context.Context) error {
			return rm.RunMigrations(ctx, db)
		},
		Close: closeAll(closers),
	}, nil
}

func closeAll(closers []func() error) func() error {
	return func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
}

type Tool struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	open   Opener
}

func NewTool() *Tool {
	return &Tool{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
		open:   Open,
	}
}

func (t *Tool) Run(ctx context.Context, args []string) error {
	return t.Command().Run(ctx, args)
}

func (t *Tool) Command() *cli.Command {
	return &cli.Command{
		Name:      "marksync-admin",
		Usage:     "maintenance tasks for a marksync server",
		Writer:    t.out,
		ErrWriter: t.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "server config file (.json, .jsonc, .yaml)",
				Sources: cli.EnvVars("MARKSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-dsn",
				Aliases: []string{"d"},
				Usage:   "PostgreSQL DSN, overrides the config file",
				Sources: cli.EnvVars("DATABASE_DSN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: t.action(t.migrate),
			},
			{
				Name:      "create-user",
				Usage:     "create an account; the password is read from the first line of stdin",
				ArgsUsage: "<username>",
				Action:    t.action(t.createUser),
			},
			{
				Name:      "pinboard-import",
				Usage:     "merge a Pinboard JSON export into a user's bookmarks",
				ArgsUsage: "<username> <file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "as-of", Usage: "ISO-8601 time the export was taken (default now)"},
				},
				Action: t.action(t.pinboardImport),
			},
		},
	}
}

func configFrom(cmd *cli.Command) (*config.Config, error) {
	var args []string
	if path := cmd.String("config"); path != "" {
		args = append(args, "--config", path)
	}
	if cmd.IsSet("database-dsn") {
		args = append(args, "--database-dsn", cmd.String("database-dsn"))
	}
	return config.Load(args)
}

func (t *Tool) action(fn func(ctx context.Context, cmd *cli.Command, b *Backend, logger logging.Logger) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := configFrom(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.LogBackend, cfg.LogLevel, t.errOut)
		if err != nil {
			return fmt.Errorf("logger init error: %w", err)
		}

		b, err := t.open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := b.Close(); err == nil {
				err = cerr
			}
		}()
		return fn(ctx, cmd, b, logger)
	}
}

func (t *Tool) migrate(ctx context.Context, _ *cli.Command, b *Backend, logger logging.Logger) error {
	if err := b.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}
	logger.Info(ctx, "Migrations applied")
	fmt.Fprintln(t.out, "Database is up to date")
	return nil
}

func (t *Tool) createUser(ctx context.Context, cmd *cli.Command, b *Backend, _ logging.Logger) error {
	if cmd.Args().Len() != 1 {
		return errors.New("want <username>")
	}
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := []byte(strings.TrimRight(line, "\r\n"))
	defer common.WipeByteArray(password)

	u, err := b.Users.Register(ctx, cmd.Args().First(), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Created %s (%s)\nAPI key: %s\n", u.UserName, u.ID, hex.EncodeToString(u.APIKey))
	return nil
}

func (t *Tool) pinboardImport(ctx context.Context, cmd *cli.Command, b *Backend, logger logging.Logger) error {
	if cmd.Args().Len() != 2 {
		return errors.New("want <username> <file>")
	}
	username, path := cmd.Args().Get(0), cmd.Args().Get(1)

	asOf := time.Now()
	if v := cmd.String("as-of"); v != "" {
		ts, err := bookmark.ParseTimestamp(v)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		asOf = ts
	}

	u, err := b.Users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no user %q", username)
		}
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	batch, err := importer.ReadPinboard(f, asOf)
	if err != nil {
		return err
	}
	for _, r := range batch.Rejected {
		logger.Warn(ctx, "Skipped Pinboard record", "index", r.Index, "url", r.URL, "error", r.Err)
	}

	res, err := b.Sync.Reconcile(ctx, u.ID, batch.Bookmarks)
	if res != nil {
		fmt.Fprintf(t.out, "Imported %d bookmarks for %s: %d new, %d updated, %d unchanged, %d skipped\n",
			len(batch.Bookmarks), username, len(res.Added), res.Updated-len(res.Added), res.Unchanged, len(batch.Rejected))
	}
	return err
}
