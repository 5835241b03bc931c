// Package main provides the vibe-cgds command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/vibe-cgds/internal/alteration"
	"github.com/inodb/vibe-cgds/internal/backend"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Config keys
const (
	keyBackend     = "store.backend"
	keyPath        = "store.path"
	keyMode        = "store.mode"
	keyVerbose     = "verbose"
	keyMetricsFile = "metrics.file"
)

var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vibe-cgds",
		Short: "Genetic alteration store for cancer genomics profiles",
		Long: `vibe-cgds stores per-gene, per-case values of genetic profiles
(copy number, expression, methylation) and answers gene x case queries.

Rows are written one at a time (--mode immediate) or buffered and bulk
loaded in a single transaction (--mode buffered).`,
		Example: `  # One-time setup of a DuckDB database
  vibe-cgds --backend duckdb --db cgds.duckdb genes load genes.txt

  # Import a copy number matrix into profile 1 with bulk loading
  vibe-cgds --backend duckdb --db cgds.duckdb --mode buffered import 1 data_CNA.txt

  # Query BRCA1 values
  vibe-cgds --backend duckdb --db cgds.duckdb query map 1 BRCA1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("backend", "memory", "Storage backend: "+strings.Join(backend.Kinds, ", "))
	flags.String("db", "", "Database path (duckdb, sqlite) or connection string (postgres)")
	flags.String("mode", "immediate", "Write mode: immediate or buffered")
	flags.String("metrics-file", "", "Write Prometheus metrics in text format to this file on exit")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	_ = viper.BindPFlag(keyBackend, flags.Lookup("backend"))
	_ = viper.BindPFlag(keyPath, flags.Lookup("db"))
	_ = viper.BindPFlag(keyMode, flags.Lookup("mode"))
	_ = viper.BindPFlag(keyMetricsFile, flags.Lookup("metrics-file"))
	_ = viper.BindPFlag(keyVerbose, flags.Lookup("verbose"))

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	cmd.AddCommand(newGenesCmd())
	cmd.AddCommand(newCasesCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// initConfig reads ~/.vibe-cgds.yaml and VIBE_CGDS_* environment variables.
// A missing config file is not an error.
func initConfig() error {
	viper.SetConfigName(".vibe-cgds")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("VIBE_CGDS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// session is an opened store plus the resources a command must release.
type session struct {
	store    *alteration.Store
	backend  alteration.Backend
	logger   *zap.Logger
	registry *prometheus.Registry
}

func openSession(ctx context.Context) (*session, error) {
	mode, err := alteration.ParseMode(viper.GetString(keyMode))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	logger, err := newLogger(viper.GetBool(keyVerbose))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	kind := viper.GetString(keyBackend)
	path := viper.GetString(keyPath)
	b, err := backend.Open(ctx, kind, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened backend",
		zap.String("backend", kind),
		zap.String("path", path),
		zap.Stringer("mode", mode))

	reg := prometheus.NewRegistry()
	store := alteration.NewStore(b, mode)
	store.SetLogger(logger)
	store.SetMetrics(alteration.NewMetrics(reg))

	return &session{store: store, backend: b, logger: logger, registry: reg}, nil
}

// Close flushes pending rows, writes metrics if requested and closes the
// backend. The first error wins.
func (s *session) Close(ctx context.Context) error {
	err := s.store.Close(ctx)
	if path := viper.GetString(keyMetricsFile); path != "" {
		if werr := prometheus.WriteToTextfile(filepath.Clean(path), s.registry); werr != nil && err == nil {
			err = fmt.Errorf("writing metrics: %w", werr)
		}
	}
	if cerr := s.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = s.logger.Sync()
	return err
}

// withSession runs fn against an open store and always closes it.
func withSession(ctx context.Context, fn func(*session) error) (err error) {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vibe-cgds version %s (%s) built %s\n", version, commit, date)
		},
	}
}
