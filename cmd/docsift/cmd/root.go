// Package cmd provides the CLI commands for docsift.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/docstore"
	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/logging"
	"github.com/docsift/docsift/internal/output"
	"github.com/docsift/docsift/internal/profiling"
	"github.com/docsift/docsift/internal/telemetry"
	"github.com/docsift/docsift/pkg/version"
)

// app carries global flags and the per-run state built from them.
type app struct {
	dir         string
	debug       bool
	jsonOut     bool
	metricsFile string
	profile     profiling.Targets

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	profiler *profiling.Session
	cleanup  func()
}

// NewRootCmd creates the root command for the docsift CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "docsift",
		Short: "Full-text search and auto-classification for a document archive",
		Long: `docsift keeps a full-text index in step with a document database and
serves permission-aware search, more-like-this, highlighting and
autocomplete over it. It also suggests correspondents, document types,
tags and storage paths from each entity's matching rule.

Typical use:
  docsift import archive.json
  docsift index --watch
  docsift search "electricity invoice" --filter is_tagged=1`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.start,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.stop()
		},
	}

	cmd.SetVersionTemplate("docsift version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "Directory searched for .docsift.yaml")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.docsift/logs/")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	cmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newMoreLikeCmd(a))
	cmd.AddCommand(newAutocompleteCmd(a))
	cmd.AddCommand(newMatchCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newLogsCmd(a))
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, serrors.FormatForCLI(err))
	}
	return err
}

// start loads configuration, then sets up logging, metrics and profiling.
// Commands that repair or describe the setup run on defaults when the
// configuration does not load.
func (a *app) start(cmd *cobra.Command, _ []string) error {
	cfg, cfgErr := config.Load(a.dir)
	if cfgErr != nil {
		if !toleratesBadConfig(cmd) {
			return serrors.ConfigError(fmt.Sprintf("failed to load configuration: %v", cfgErr), cfgErr).
				WithSuggestion("fix the configuration file, or run 'docsift config init --force'")
		}
		cfg = config.NewConfig()
	}
	a.cfg = cfg

	logCfg := logging.DefaultConfig()
	if a.debug {
		logCfg = logging.DebugConfig()
	} else if logging.ParseLevel(cfg.Logging.Level) > logging.ParseLevel(logCfg.Level) {
		logCfg.Level = cfg.Logging.Level
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger = logger
	a.cleanup = cleanup
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("Failed to load configuration, using defaults", slog.String("error", cfgErr.Error()))
	}
	if a.debug {
		logger.Info("Debug logging enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = telemetry.NewMetrics(a.registry)

	if a.profile.Enabled() {
		a.profiler, err = profiling.Start(a.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

func toleratesBadConfig(cmd *cobra.Command) bool {
	if cmd.Name() == "version" {
		return true
	}
	return cmd.Parent() != nil && cmd.Parent().Name() == "config"
}

// stop flushes profiles and metrics and closes the log file.
func (a *app) stop() error {
	var errs []error
	if err := a.profiler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if a.metricsFile != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
	return errors.Join(errs...)
}

func (a *app) output(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout(), output.WithJSON(a.jsonOut))
}

func (a *app) openDocs(ctx context.Context) (*docstore.Store, error) {
	return docstore.Open(ctx, a.cfg.Store.Database, docstore.WithLogger(a.logger))
}

func (a *app) openIndex(ctx context.Context, recreate bool) (*index.Store, error) {
	return index.Open(ctx, a.cfg.Index.Dir, recreate,
		index.WithLogger(a.logger),
		index.WithMetrics(a.metrics),
		index.WithASNRange(a.cfg.Index.ASNMin, a.cfg.Index.ASNMax))
}

// openIndexReadOnly opens the index for queries. It never creates or
// rebuilds an index, and shares the directory with other readers.
func (a *app) openIndexReadOnly(ctx context.Context) (*index.Store, error) {
	return index.OpenReadOnly(ctx, a.cfg.Index.Dir,
		index.WithLogger(a.logger),
		index.WithMetrics(a.metrics))
}
