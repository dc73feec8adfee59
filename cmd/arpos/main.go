// Command arpos runs the AR positioning core against the simulated tracker
// and manages its session journal.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banshee-data/arpositioning/internal/ar/frame"
	"github.com/banshee-data/arpositioning/internal/ar/pipeline"
	"github.com/banshee-data/arpositioning/internal/ar/session"
	"github.com/banshee-data/arpositioning/internal/ar/taprouter"
	"github.com/banshee-data/arpositioning/internal/ar/telemetry"
	"github.com/banshee-data/arpositioning/internal/config"
	"github.com/banshee-data/arpositioning/internal/monitoring"
)

type rootOptions struct {
	configPath string
	verbose    bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "arpos",
		Short:         "AR anchor positioning core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return wireLogging(logger, opts.verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.json, .yaml); defaults to "+config.DefaultConfigPath+" if present")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging and per-frame traces")

	root.AddCommand(newSimulateCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

type logWriterFunc func(ops, diag, trace io.Writer)

// wireLogging routes monitoring.Logf and every package's ops, diag and
// trace streams into logger at warn, info and debug level.
func wireLogging(logger *zap.Logger, verbose bool) error {
	monitoring.SetLogger(logger.Sugar().Infof)

	packages := map[string]logWriterFunc{
		"session":   session.SetLogWriters,
		"frame":     frame.SetLogWriters,
		"pipeline":  pipeline.SetLogWriters,
		"taprouter": taprouter.SetLogWriters,
		"telemetry": telemetry.SetLogWriters,
	}
	for name, set := range packages {
		named := logger.Named(name)
		ops, err := zap.NewStdLogAt(named, zapcore.WarnLevel)
		if err != nil {
			return err
		}
		diag, err := zap.NewStdLogAt(named, zapcore.InfoLevel)
		if err != nil {
			return err
		}
		var trace io.Writer
		if verbose {
			l, err := zap.NewStdLogAt(named, zapcore.DebugLevel)
			if err != nil {
				return err
			}
			trace = l.Writer()
		}
		set(ops.Writer(), diag.Writer(), trace)
	}
	return nil
}

// loadConfig reads path, or the default config file when path is empty and
// the default exists. With neither, every setting takes its default.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.Empty(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.Load(path)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
