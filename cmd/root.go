package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mapsmith/mapsmith/internal/config"
	"github.com/mapsmith/mapsmith/internal/engine"
	"github.com/mapsmith/mapsmith/internal/logging"
	"github.com/mapsmith/mapsmith/internal/store"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mapsmith",
	Short: "Mapsmith: declarative tree-to-tree data mapping",
	Long: `Mapsmith maps structured documents from one shape to another.

Mappings are written in a line-oriented DSL, applied to source and target
trees, compiled to scripts and run in chains of map and script steps.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mapsmith/mapsmith.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the config file. Without --config a missing default file
// means built-in defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupLogger builds the logger for a command. Console output is only used
// by long-running commands; the rest log to file so stdout stays clean.
func setupLogger(cfg *config.Config, console bool) *slog.Logger {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	setup := logging.SetupQuiet
	if console {
		setup = logging.Setup
	}
	logger, err := setup(level, cfg.Logging.Directory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(level)}))
	}

	if n, err := logging.Prune(cfg.Logging.Directory, cfg.Logging.RetentionDays, time.Now()); err != nil {
		logger.Warn("pruning old log files", "error", err)
	} else if n > 0 {
		logger.Debug("pruned old log files", "count", n)
	}
	return logger
}

// openEngine loads config, opens the configured store and builds an engine.
// The caller closes the engine.
func openEngine(ctx context.Context, console bool) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg, console)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
	}
	logger.Debug("store opened", "type", cfg.Store.Type)
	return engine.New(cfg, st, logger), nil
}

// readSource reads a file argument, with "-" meaning stdin.
func readSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(path string, w io.Writer, data string) error {
	if path == "" {
		_, err := fmt.Fprintln(w, data)
		return err
	}
	if err := os.WriteFile(path, []byte(data+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}
