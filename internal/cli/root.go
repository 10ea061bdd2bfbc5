// Package cli implements the pgtree command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/koustreak/pgtree/internal/config"
	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
	"github.com/koustreak/pgtree/internal/filestore/minio"
	"github.com/koustreak/pgtree/internal/filestore/s3"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/snapshot"
)

// Set at build time with -ldflags "-X github.com/koustreak/pgtree/internal/cli.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// env holds the process surroundings a command runs in.
type env struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	lookupEnv      func(string) (string, bool)
	dotEnv         string // .env path; empty skips it

	open     func(*database.Config, *logger.Logger) snapshot.Opener
	newStore func(*filestore.Config) (filestore.Store, error)
}

func defaultEnv() *env {
	return &env{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
		dotEnv:    ".env",
		open:      snapshot.Postgres,
		newStore:  openStore,
	}
}

// openStore builds the object store named by cfg.Provider.
func openStore(cfg *filestore.Config) (filestore.Store, error) {
	p, err := filestore.ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	if p == filestore.ProviderS3 {
		return s3.New(cfg)
	}
	return minio.New(cfg)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	return run(ctx, defaultEnv(), os.Args[1:])
}

func run(ctx context.Context, e *env, args []string) int {
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		if errs.IsInvalidInput(err) {
			return ExitInvalidInput
		}
		return ExitFailure
	}
	return ExitOK
}

// flags are shared by every command that talks to a database.
type flags struct {
	configPath       string
	dsn              string
	statementTimeout string
	fetchSize        int
	logLevel         string
	logFormat        string
}

func (f *flags) register(pf *pflag.FlagSet) {
	pf.StringVarP(&f.configPath, "config", "c", "", "Config file path (default ./"+config.DefaultPath+" if present)")
	pf.StringVarP(&f.dsn, "dsn", "d", "", "Connection string (default $PGTREE_DSN, $DATABASE_URL or the PG* variables)")
	pf.StringVar(&f.statementTimeout, "statement-timeout", "", "Per-statement timeout, e.g. 30s or 30000 (ms); 0 disables")
	pf.IntVar(&f.fetchSize, "fetch-size", database.DefaultFetchSize, "Rows fetched per cursor batch")
	pf.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "auto", "Log format (json, console, auto)")
}

// resolve builds the configuration: defaults, YAML file, .env, environment,
// then the flags the user actually set.
func (f *flags) resolve(cmd *cobra.Command, e *env) (*config.Config, error) {
	path, mustExist := config.DefaultPath, false
	if cmd.Flags().Changed("config") {
		path, mustExist = f.configPath, true
	}
	cfg, err := config.Load(path, mustExist)
	if err != nil {
		return nil, err
	}

	if e.dotEnv != "" {
		if err := config.LoadDotEnv(e.dotEnv); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(e.lookupEnv); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("dsn") {
		cfg.Database.DSN = f.dsn
	}
	if cmd.Flags().Changed("statement-timeout") {
		d, err := config.ParseTimeout(f.statementTimeout)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "--statement-timeout", err)
		}
		cfg.Database.StatementTimeout = d
	}
	if cmd.Flags().Changed("fetch-size") {
		cfg.Database.FetchSize = f.fetchSize
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}

func newRootCmd(e *env) *cobra.Command {
	f := &flags{}
	s := &snapshotFlags{}

	root := &cobra.Command{
		Use:   "pgtree [schema]",
		Short: "Print a PostgreSQL catalog as a tree or JSON document",
		Long: `pgtree walks the catalog of a PostgreSQL database inside one read-only
transaction and prints schemas, relations, columns and, on request, indexes,
foreign keys, triggers and functions.

Without a schema argument every non-system schema is printed.`,
		Args:          invalidArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd, e)
			if err != nil {
				return err
			}
			s.apply(cmd, cfg, args)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSnapshot(cmd.Context(), e, cfg)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid flags", err)
	})

	f.register(root.PersistentFlags())
	s.register(root.Flags())

	root.AddCommand(newServeCmd(e, f))
	root.AddCommand(newMCPCmd(e, f))
	root.AddCommand(newVersionCmd(e))
	return root
}

// invalidArgs reports argument errors as invalid input.
func invalidArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid arguments", err)
		}
		return nil
	}
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  invalidArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(e.stdout, "pgtree %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// closeQuietly closes a catalog after the command's context may already be
// cancelled.
func closeQuietly(ctx context.Context, cat snapshot.Catalog, log *logger.Logger) {
	if err := cat.Close(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorWith("close session", err, nil)
	}
}
