// Package main provides the bimcheck binary: one-shot validation of element
// files, directory watching, the dashboard HTTP API, and a gRPC element server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bimcheck/internal/config"
	"github.com/danielpatrickdp/bimcheck/internal/engine"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/logger"
	"github.com/danielpatrickdp/bimcheck/internal/metrics"
	"github.com/danielpatrickdp/bimcheck/internal/runlog"
)

const (
	Version = "0.1.0"
	appName = "bimcheck"
)

// #region main
func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region root
// rootOptions holds the persistent flags. Non-empty values override the
// config file and the environment.
type rootOptions struct {
	configPath     string
	logLevel       string
	logFormat      string
	historyBackend string
	historyPath    string
	runlogPath     string
}

func (o *rootOptions) overrides() *config.Config {
	return &config.Config{
		Log:     config.LogConfig{Level: o.logLevel, Format: o.logFormat},
		History: config.HistoryConfig{Backend: o.historyBackend, Path: o.historyPath},
		RunLog:  config.RunLogConfig{Path: o.runlogPath},
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "BIM element validation and conformity metrics",
		Long: `bimcheck validates BIM element sets against the material, dimension and
norm-code rules, aggregates conformity metrics, and keeps a bounded dashboard
history of recent runs.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (console, json)")
	pf.StringVar(&opts.historyBackend, "history-backend", "", "History backend (sqlite, file, badger, memory)")
	pf.StringVar(&opts.historyPath, "history-path", "", "History store path")
	pf.StringVar(&opts.runlogPath, "runlog", "", "Run log database path")

	cmd.AddCommand(
		validateCmd(opts),
		watchCmd(opts),
		serveCmd(opts),
		serveElementsCmd(opts),
		historyCmd(opts),
		configCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// loadConfig resolves defaults, file, environment, then flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Merge(o.overrides())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// #endregion root

// #region app
// app is the wired engine and everything it owns.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	backend  history.Backend
	runlog   *sql.DB
	registry *prometheus.Registry
	engine   *engine.Engine
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	base := logger.New(cfg.Log.Level, cfg.Log.Format)
	a := &app{cfg: cfg, log: base}

	a.backend, err = history.OpenBackend(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	store := history.NewStore(a.backend, logger.Named(base, logger.ComponentHistory))

	if cfg.RunLog.Path != "" {
		a.runlog, err = runlog.Open(cfg.RunLog.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.engine, err = engine.New(cfg.RuleConfig(), store, engine.Options{
		Metrics: metrics.New(a.registry),
		RunLog:  a.runlog,
		Logger:  logger.Named(base, logger.ComponentEngine),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// a broken history is reported on the next run; start empty
	if _, err := a.engine.LoadHistory(ctx); err != nil {
		var perr *history.PersistenceError
		if !errors.As(err, &perr) {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn("Failed to close history backend", zap.Error(err))
		}
	}
	if a.runlog != nil {
		a.runlog.Close()
	}
	_ = a.log.Sync()
}

// #endregion app
