package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/bimcheck/internal/api"
	"github.com/danielpatrickdp/bimcheck/internal/config"
	"github.com/danielpatrickdp/bimcheck/internal/engine"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/logger"
	"github.com/danielpatrickdp/bimcheck/internal/report"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// #region validate
func validateCmd(opts *rootOptions) *cobra.Command {
	var (
		grpcAddr string
		name     string
		label    string
		format   string
		csvPath  string
	)

	cmd := &cobra.Command{
		Use:   "validate [file.json]",
		Short: "Validate one element set and print the report",
		Long: `Validate reads an element set from a JSON file, or from a gRPC element
server when --grpc is given, runs the rules and appends the run to history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var src source.Source
			switch {
			case grpcAddr != "" || (len(args) == 0 && name != ""):
				addr := grpcAddr
				if addr == "" {
					addr = a.cfg.Source.GRPCAddr
				}
				client, err := source.NewGRPCClient(addr, source.GRPCOptions{
					Source:  name,
					Timeout: a.cfg.Source.Timeout,
					Retries: a.cfg.Source.Retries,
				})
				if err != nil {
					return err
				}
				defer client.Close()
				src = client
			case len(args) == 1:
				src = source.NewJSONFile(args[0], a.cfg.Source.MaxFileBytes)
			default:
				return errors.New("an element file or --source with --grpc is required")
			}

			rep, runErr := a.engine.Run(ctx, label, src)
			if errors.Is(runErr, engine.ErrRunInProgress) {
				return runErr
			}

			if csvPath != "" {
				if err := writeCSVFile(csvPath, rep); err != nil {
					return err
				}
			}
			if format == "json" {
				if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), rep)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC element server address (default from config)")
	cmd.Flags().StringVar(&name, "source", "", "element set name requested from the gRPC server")
	cmd.Flags().StringVar(&label, "label", "", "run label (default: document label or file name)")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format (text, json)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write the CSV export to this path")
	return cmd
}

func writeCSVFile(path string, rep report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := report.WriteCSV(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// #endregion validate

// #region watch
func watchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Validate JSON element files as they are written to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := newDirWatcher(a, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			a.log.Info("Watching for element files", zap.String("dir", args[0]))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// newDirWatcher validates every JSON file that settles in dir. Output goes to
// out when non-nil.
func newDirWatcher(a *app, dir string, out io.Writer) (*source.Watcher, error) {
	handle := func(ctx context.Context, path string) {
		rep, err := a.engine.Run(ctx, "", source.NewJSONFile(path, a.cfg.Source.MaxFileBytes))
		if errors.Is(err, engine.ErrRunInProgress) {
			a.log.Warn("Skipped file, run in progress", zap.String("path", path))
			return
		}
		if out != nil {
			printReport(out, rep)
		}
	}
	return source.NewWatcher(dir, a.cfg.Source.WatchDebounce, handle, logger.Named(a.log, logger.ComponentWatcher))
}

// #endregion watch

// #region serve
func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.API.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(a.engine, a.registry, a.cfg.Source.MaxFileBytes, logger.Named(a.log, logger.ComponentAPI)).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("API listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if watchDir != "" {
				w, err := newDirWatcher(a, watchDir, nil)
				if err != nil {
					stop()
					_ = g.Wait()
					return err
				}
				g.Go(func() error {
					if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "also validate JSON files written to this directory")
	return cmd
}

func serveElementsCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-elements <dir>",
		Short: "Serve the JSON element files of a directory over gRPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			defer log.Sync()

			if addr == "" {
				addr = cfg.Source.GRPCAddr
			}
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			gs := grpc.NewServer()
			source.RegisterElementServer(gs, source.DirServer{Dir: args[0], MaxBytes: cfg.Source.MaxFileBytes})
			go func() {
				<-ctx.Done()
				gs.GracefulStop()
			}()

			log.Info("Element server listening", zap.String("addr", lis.Addr().String()), zap.String("dir", args[0]))
			return gs.Serve(lis)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// #endregion serve

// #region history
func historyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the dashboard history",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print statistics over the recent runs",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer a.Close()
				return printJSON(cmd.OutOrStdout(), a.engine.Stats())
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Print the dashboard history as JSON",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer a.Close()
				return history.ExportJSON(cmd.OutOrStdout(), a.engine.Dashboard())
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every recorded run",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd.Context(), opts)
				if err != nil {
					return err
				}
				defer a.Close()
				if _, err := a.engine.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
				return nil
			},
		},
	)
	return cmd
}

// #endregion history

// #region config
func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "init <path>",
			Short: "Write the default configuration as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := os.Stat(args[0]); err == nil {
					return fmt.Errorf("%s already exists", args[0])
				}
				return config.DefaultConfig().SaveToFile(args[0])
			},
		},
	)
	return cmd
}

// #endregion config

// #region output
func printReport(w io.Writer, rep report.Report) {
	fmt.Fprintf(w, "Run:        %s\n", rep.RunID)
	fmt.Fprintf(w, "Label:      %s\n", rep.Label)
	fmt.Fprintf(w, "Status:     %s (%s)\n", rep.Status, rep.StatusLabel())
	if rep.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", rep.Error)
	}
	fmt.Fprintf(w, "Elements:   %d\n", rep.TotalElements)
	fmt.Fprintf(w, "Problems:   %d\n", rep.TotalProblems)
	fmt.Fprintf(w, "Conformity: %d%%\n", rep.ConformityRate)
	fmt.Fprintf(w, "Time:       %.1fs\n", rep.ProcessingTime)

	if rep.Summary != nil {
		if c, ok := rep.Summary.MostCommonIssueCategory(); ok {
			fmt.Fprintf(w, "Top issue:  %s (%d)\n", c.Label(), rep.Summary.IssuesByCategory[c])
		}
	}

	if len(rep.Issues) > 0 {
		fmt.Fprintf(w, "\n%-4s  %-12s  %-20s  %-10s  %-6s  %s\n", "#", "Element", "Name", "Type", "Sev", "Description")
		for _, is := range rep.Issues {
			fmt.Fprintf(w, "%-4d  %-12s  %-20s  %-10s  %-6s  %s\n",
				is.ID, is.ElementID, is.ElementName, is.RuleCategory.Label(), is.Severity, is.Description)
		}
	}
	for _, wn := range rep.Warnings {
		fmt.Fprintf(w, "\nwarning [%s]: %s\n", wn.Code, wn.Message)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// #endregion output
