package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/services"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

var errUsage = errors.New("wrong number of arguments")

// Command builds the command tree.
func (a *App) Command() *cli.Command {
	return &cli.Command{
		Name:      "marksync",
		Usage:     "keep a local bookmark replica in sync with a marksync server",
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (.json, .jsonc, .yaml)",
				Sources: cli.EnvVars("MARKSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"a"},
				Usage:   "address and port of the server's gRPC API",
				Sources: cli.EnvVars("MARKSYNC_SERVER"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "directory of the local replica",
				Sources: cli.EnvVars("MARKSYNC_DATA_DIR"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "bound on every server call",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "create an account and print its API key",
				ArgsUsage: "<username>",
				Action:    a.action(a.register),
			},
			{
				Name:      "login",
				Usage:     "log in and remember the session",
				ArgsUsage: "<username>",
				Action:    a.action(a.login),
			},
			{
				Name:   "logout",
				Usage:  "forget the session",
				Action: a.action(a.logout),
			},
			{
				Name:   "status",
				Usage:  "show who is logged in and whether the server answers",
				Action: a.action(a.status),
			},
			{
				Name:      "add",
				Usage:     "add a bookmark, or update the one with the same url",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}},
					&cli.StringFlag{Name: "description", Aliases: []string{"m"}},
					&cli.StringSliceFlag{Name: "tag", Usage: "tag to add, may be repeated"},
					&cli.BoolFlag{Name: "unread", Aliases: []string{"u"}},
				},
				Action: a.action(a.add),
			},
			{
				Name:      "tag",
				Usage:     "add tags to a bookmark",
				ArgsUsage: "<url> <tag>...",
				Action:    a.action(a.tag),
			},
			{
				Name:      "untag",
				Usage:     "remove tags from a bookmark",
				ArgsUsage: "<url> <tag>...",
				Action:    a.action(a.untag),
			},
			{
				Name:      "delete",
				Usage:     "delete a bookmark",
				ArgsUsage: "<url>",
				Action:    a.action(a.remove),
			},
			{
				Name:  "list",
				Usage: "list bookmarks in the replica, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tag", Usage: "only bookmarks carrying this tag"},
					&cli.BoolFlag{Name: "deleted", Usage: "include deleted bookmarks"},
					&cli.BoolFlag{Name: "json", Usage: "print NDJSON instead of a table"},
				},
				Action: a.action(a.list),
			},
			{
				Name:      "import",
				Usage:     "import a Pinboard JSON export into the replica",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "as-of", Usage: "ISO-8601 time the export was taken (default now)"},
				},
				Action: a.action(a.importPinboard),
			},
			{
				Name:  "sync",
				Usage: "send pending bookmarks and merge the server's answer",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "send the whole replica and receive every bookmark"},
				},
				Action: a.action(a.sync),
			},
			{
				Name:  "export",
				Usage: "have the server export all bookmarks and download the file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write (default: name of the export, - for stdout)"},
					&cli.BoolFlag{Name: "decompress", Usage: "write plain NDJSON instead of gzip"},
				},
				Action: a.action(a.export),
			},
			{
				Name:      "archive",
				Usage:     "print links to archived copies of a page",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "at", Usage: "ISO-8601 time of the snapshot (default now)"},
				},
				Action: a.archive,
			},
		},
	}
}

func (a *App) credentials(cmd *cli.Command) (string, []byte, error) {
	if cmd.Args().Len() != 1 {
		return "", nil, fmt.Errorf("%w: want <username>", errUsage)
	}
	password, err := GetPassword(a.in, a.errOut)
	if err != nil {
		return "", nil, err
	}
	return cmd.Args().First(), password, nil
}

func (a *App) register(ctx context.Context, cmd *cli.Command, s *session) error {
	username, password, err := a.credentials(cmd)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	apiKey, err := s.Auth.Register(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s\nAPI key: %s\n", username, apiKey)
	return nil
}

func (a *App) login(ctx context.Context, cmd *cli.Command, s *session) error {
	username, password, err := a.credentials(cmd)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := s.Auth.Login(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", username)
	return nil
}

func (a *App) logout(ctx context.Context, _ *cli.Command, s *session) error {
	if err := s.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) status(ctx context.Context, _ *cli.Command, s *session) error {
	user := s.username
	if user == "" {
		user = "(not logged in)"
	}
	server := "reachable"
	if err := s.Auth.Ping(ctx); err != nil {
		server = "unreachable: " + err.Error()
	}
	fmt.Fprintf(a.out, "user: %s\nserver: %s\n", user, server)
	return nil
}

func (a *App) add(ctx context.Context, cmd *cli.Command, s *session) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%w: want <url>", errUsage)
	}
	b, err := s.Bookmarks.Add(ctx, services.NewBookmark{
		URL:         cmd.Args().First(),
		Title:       cmd.String("title"),
		Description: cmd.String("description"),
		Tags:        cmd.StringSlice("tag"),
		Unread:      cmd.Bool("unread"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s\n", b.URL)
	return nil
}

func (a *App) editTags(cmd *cli.Command, fn func(rawURL string, tags ...string) (bookmark.Bookmark, error)) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("%w: want <url> <tag>...", errUsage)
	}
	b, err := fn(cmd.Args().First(), cmd.Args().Tail()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", b.URL, strings.Join(b.CurrentTags(), " "))
	return nil
}

func (a *App) tag(ctx context.Context, cmd *cli.Command, s *session) error {
	return a.editTags(cmd, func(rawURL string, tags ...string) (bookmark.Bookmark, error) {
		return s.Bookmarks.Tag(ctx, rawURL, tags...)
	})
}

func (a *App) untag(ctx context.Context, cmd *cli.Command, s *session) error {
	return a.editTags(cmd, func(rawURL string, tags ...string) (bookmark.Bookmark, error) {
		return s.Bookmarks.Untag(ctx, rawURL, tags...)
	})
}

func (a *App) remove(ctx context.Context, cmd *cli.Command, s *session) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%w: want <url>", errUsage)
	}
	b, err := s.Bookmarks.Delete(ctx, cmd.Args().First())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no bookmark for %s", cmd.Args().First())
		}
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", b.URL)
	return nil
}

func (a *App) list(ctx context.Context, cmd *cli.Command, s *session) error {
	all, err := s.Bookmarks.List(ctx, cmd.String("tag"), cmd.Bool("deleted"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return bookmark.EncodeBatch(a.out, bookmark.FramingNDJSON, all)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UPDATED\tURL\tTITLE\tTAGS\tFLAGS")
	for _, b := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.Updated.Format(time.DateOnly), b.URL, b.Title, strings.Join(b.CurrentTags(), " "), flags(b))
	}
	return tw.Flush()
}

func flags(b bookmark.Bookmark) string {
	var f []string
	if b.Unread {
		f = append(f, "unread")
	}
	if b.Deleted {
		f = append(f, "deleted")
	}
	return strings.Join(f, ",")
}

func (a *App) importPinboard(ctx context.Context, cmd *cli.Command, s *session) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%w: want <file>", errUsage)
	}

	asOf := time.Now()
	if v := cmd.String("as-of"); v != "" {
		t, err := bookmark.ParseTimestamp(v)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		asOf = t
	}

	f, err := os.Open(cmd.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := s.Bookmarks.Import(ctx, f, asOf)
	if err != nil {
		return err
	}
	for _, r := range res.Rejected {
		fmt.Fprintf(a.errOut, "skipped %v\n", r)
	}
	fmt.Fprintf(a.out, "Imported %d bookmarks, skipped %d\n", res.Imported, len(res.Rejected))
	return nil
}

func (a *App) sync(ctx context.Context, cmd *cli.Command, s *session) error {
	if s.username == "" {
		return client.ErrNotLoggedIn
	}

	report, err := s.Bookmarks.Sync(ctx, cmd.Bool("full"))
	if err != nil {
		return err
	}
	for _, r := range report.Rejected {
		fmt.Fprintf(a.errOut, "rejected %s: %s\n", r.URL, r.Message)
	}
	fmt.Fprintf(a.out, "Sent %d, received %d (server added %d, updated %d), %d still pending\n",
		report.Sent, report.Received, report.Added, report.Updated, report.Pending)
	return nil
}

func (a *App) export(ctx context.Context, cmd *cli.Command, s *session) (err error) {
	if s.username == "" {
		return client.ErrNotLoggedIn
	}

	decompress := cmd.Bool("decompress")
	output := cmd.String("output")

	var w io.Writer = a.out
	var tmp *os.File
	if output != "-" {
		// The object key is only known after the call, so write to a
		// temporary file and rename it once the download completes.
		dir := "."
		if output != "" {
			dir = filepath.Dir(output)
		}
		tmp, err = os.CreateTemp(dir, ".marksync-export-*")
		if err != nil {
			return err
		}
		defer func() {
			if tmp != nil {
				_ = tmp.Close()
				_ = os.Remove(tmp.Name())
			}
		}()
		w = tmp
	}

	res, err := s.Bookmarks.Export(ctx, w, decompress)
	if err != nil {
		return err
	}
	if tmp == nil {
		return nil
	}

	if output == "" {
		output = filepath.Join(filepath.Dir(tmp.Name()), path.Base(res.Export.Key))
		if decompress {
			output = strings.TrimSuffix(output, ".gz")
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return err
	}
	tmp = nil

	fmt.Fprintf(a.out, "Exported %d bookmarks to %s (%d bytes)\n", res.Export.Count, output, res.Bytes)
	return nil
}

// archive needs neither the replica nor the server.
func (a *App) archive(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("%w: want <url>", errUsage)
	}
	u, err := urlid.Canonicalize(cmd.Args().First(), true)
	if err != nil {
		return err
	}

	at := time.Now()
	if v := cmd.String("at"); v != "" {
		if at, err = bookmark.ParseTimestamp(v); err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	links, err := urlid.ArchiveLinks(u, at)
	if err != nil {
		return err
	}
	for _, name := range []urlid.Archive{urlid.ArchiveWayback, urlid.ArchiveArchiveToday, urlid.ArchiveGoogleCache} {
		fmt.Fprintf(a.out, "%s\t%s\n", name, links[name])
	}
	return nil
}
