// Package cli implements the printvault command-line interface.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"printvault/internal/backup"
	"printvault/internal/blob"
	"printvault/internal/config"
	"printvault/internal/core"
	"printvault/internal/logging"
)

// CLI holds state shared by all printvault subcommands. The configuration and
// logger are populated by the root command's PersistentPreRunE before any
// subcommand runs.
type CLI struct {
	cfg    config.Config
	logger *slog.Logger

	stdin  io.Reader
	stdout io.Writer
}

// New creates a CLI wired to the standard streams.
func New() *CLI {
	return &CLI{
		logger: slog.Default(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "printvault",
		Short: "Self-hosted 3D printing inventory, project and spool tracker",
		Long: `Printvault tracks printers, filament spools, models, projects and the
rest of a 3D printing workshop, and moves whole datasets between instances
through zip archives of CSV tables and media files.

Configuration is loaded from built-in defaults, then an optional TOML file
named by PRINTVAULT_CONFIG, then PRINTVAULT_* environment variables. A .env
file in the working directory is read if present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Missing .env is the common case, not an error.
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.importCommand())
	root.AddCommand(c.wipeCommand())
	root.AddCommand(c.catalogCommand())

	return root
}

// openService builds the full service stack from the loaded configuration.
// The returned cleanup must be called once the command is done with the
// service; it closes database-backed stores.
func (c *CLI) openService(ctx context.Context, extra ...core.ServiceOption) (*core.Service, func(), error) {
	engine := core.NewDefaultRulesEngine()

	var (
		store      core.PersistentStore
		closeStore func() error
	)
	switch c.cfg.Storage.Driver {
	case "memory":
		store = core.NewMemoryStore(engine)
	case "sqlite":
		st, err := core.NewSQLiteStore(c.cfg.Storage.SQLitePath, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, closeStore = st, st.Close
	case "postgres":
		st, err := core.NewPostgresStore(c.cfg.Storage.PostgresDSN, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		store, closeStore = st, st.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", c.cfg.Storage.Driver)
	}
	cleanup := func() {
		if closeStore == nil {
			return
		}
		if err := closeStore(); err != nil {
			c.logger.Warn("closing store", "error", err)
		}
	}

	blobs, err := c.openBlobs(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	opts := []core.ServiceOption{
		core.WithBlobStore(blobs),
		core.WithLogger(c.logger),
		core.WithBackupOptions(backup.Options{
			LockTTL:         c.cfg.Backup.LockTTL.Duration,
			MaxErrorSamples: c.cfg.Backup.MaxErrorSamples,
			Limits: backup.Limits{
				MaxFiles:      c.cfg.Backup.MaxArchiveFiles,
				MaxFileBytes:  c.cfg.Backup.MaxFileBytes,
				MaxTotalBytes: c.cfg.Backup.MaxTotalBytes,
			},
		}),
	}
	opts = append(opts, extra...)

	return core.NewService(store, opts...), cleanup, nil
}

func (c *CLI) openBlobs(ctx context.Context) (blob.Store, error) {
	switch c.cfg.Blob.Driver {
	case "fs":
		return blob.NewFilesystem(c.cfg.Blob.FSRoot)
	case "s3":
		return blob.OpenFromEnv(ctx)
	case "memory":
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", c.cfg.Blob.Driver)
	}
}

// openArchiveFile opens path for random access and reports its size, as the
// archive reader requires both.
func openArchiveFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat archive: %w", err)
	}
	return f, info.Size(), nil
}

// confirm prints prompt and reads one line from stdin. Only "y" or "yes"
// (case-insensitive) count as confirmation.
func (c *CLI) confirm(prompt string) (bool, error) {
	fmt.Fprint(c.stdout, prompt)
	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
