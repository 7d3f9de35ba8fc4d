// Kith is a natural-language front end to a personal records store.
//
// Requests typed in plain English are translated by a language model
// into structured commands, checked against the configured permission
// policy and executed. Every mutation is preceded by an automatic backup
// and recorded in an audit log. Configuration is loaded from a YAML or
// TOML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	kith chat                 Start an interactive session
//	kith ask <request>        Handle a single request
//	kith backup create|list|restore|verify|cleanup
//	kith audit [--since 24h]  Show recent mutation attempts
//	kith stats                Count records per entity type
//	kith version              Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nugget/kith/internal/audit"
	"github.com/nugget/kith/internal/backup"
	"github.com/nugget/kith/internal/buildinfo"
	"github.com/nugget/kith/internal/config"
	"github.com/nugget/kith/internal/records"
)

// main only wires the process environment into [run] so the whole
// command can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// cli carries the process streams and global flags to every subcommand.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	output     string // text or json
}

// run is the real entry point. It returns nil on success and an error
// for main to print otherwise.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kith",
		Short: "Talk to your personal records in plain English",
		Long: `Kith translates plain-English requests into commands against your
contacts, tags, notes and relationships. Mutations are checked against the
permission policy, backed up first and written to the audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != "text" && c.output != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", c.output)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		c.chatCmd(),
		c.askCmd(),
		c.backupCmd(),
		c.auditCmd(),
		c.statsCmd(),
		c.versionCmd(),
	)
	return root
}

// env is everything a subcommand needs once configuration is loaded.
type env struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	store   *records.Store
	backups *backup.Manager
	audit   *audit.Store
}

// open loads configuration and opens the datastore, backup manager and
// audit log. Logs go to stderr so they never mix with command output.
func (c *cli) open() (*env, error) {
	cfg, cfgPath, err := loadConfig(c.configPath)
	if err != nil {
		return nil, err
	}

	// Validate already accepted the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := newLogger(c.stderr, level, cfg.LogFormat)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}

	for _, dir := range []string{cfg.DataDir, filepath.Dir(cfg.Database), filepath.Dir(cfg.AuditDatabase)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := records.NewStore(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open datastore %s: %w", cfg.Database, err)
	}
	backups, err := backup.NewManager(cfg.Backup.Dir, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	auditLog, err := audit.NewStore(cfg.AuditDatabase)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open audit log %s: %w", cfg.AuditDatabase, err)
	}

	return &env{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		store:   store,
		backups: backups,
		audit:   auditLog,
	}, nil
}

func (e *env) Close() {
	if err := e.audit.Close(); err != nil {
		e.logger.Warn("close audit log", "error", err)
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close datastore", "error", err)
	}
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; anything else
// means text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the configuration file. With no file
// found, the built-in defaults are used and the returned path is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	if cfgPath == "" {
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// isTerminal reports whether both streams are attached to a terminal.
func isTerminal(in io.Reader, out io.Writer) bool {
	fin, ok := in.(*os.File)
	if !ok {
		return false
	}
	fout, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fin.Fd()) && isatty.IsTerminal(fout.Fd())
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := buildinfo.Get()
			if c.output == "json" {
				return writeJSON(c.stdout, d)
			}
			fmt.Fprintln(c.stdout, d.String())
			fmt.Fprintf(c.stdout, "  %-12s %s %s/%s\n", "go:", d.GoVersion, d.OS, d.Arch)
			return nil
		},
	}
}
