package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"scanbridge/internal/adapters/bridgeclient"
	"scanbridge/internal/config"
	applog "scanbridge/internal/log"
	"scanbridge/internal/workers/bridgeworker"
)

var (
	cfg = config.LoadWorker()

	flagMetricsAddr string // value of --metrics-addr
)

func main() {
	f := runCmd.Flags()
	f.StringVar(&cfg.BridgeURL, "bridge-url", cfg.BridgeURL, "base URL of the job bridge")
	f.StringVar(&cfg.WorkerID, "worker-id", cfg.WorkerID, "identifier reported when claiming jobs")
	f.StringVar(&cfg.ConverterExe, "converter", cfg.ConverterExe, "path to the vendor converter executable")
	f.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of jobs run in parallel")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "wait between polls of an empty queue")
	f.StringVar(&cfg.Format, "format", cfg.Format, "export format passed to the converter")
	f.DurationVar(&cfg.JobTimeout, "job-timeout", cfg.JobTimeout, "upper bound for one converter run")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve /metrics on this address when set")

	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or text")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		slog.SetDefault(applog.New(cfg.LogLevel, cfg.LogFormat))
	}

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("bridge-worker failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "bridge-worker",
	Short:        "Pulls conversion jobs from the scan bridge and runs the converter",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "poll the bridge and process jobs until interrupted",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("bridge-worker: version info not available")
			return
		}
		fmt.Printf("bridge-worker: %s\n", info.Main.Version)
		fmt.Printf("go:            %s\n", info.GoVersion)
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	if cfg.ConverterExe == "" {
		return errors.New("converter executable not set (CONVERTER_EXE or --converter)")
	}
	ctx := applog.ContextAttrs(cmd.Context(), slog.String("worker_id", cfg.WorkerID))

	client := bridgeclient.New(cfg.BridgeURL, cfg.WorkerID)
	processor := bridgeworker.ExecProcessor{Exe: cfg.ConverterExe, Format: cfg.Format, Timeout: cfg.JobTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(gctx, "worker started", "bridge", cfg.BridgeURL, "concurrency", cfg.Concurrency,
			"converter", cfg.ConverterExe)
		bridgeworker.Run(gctx, client, processor, cfg.Concurrency, cfg.PollInterval)
		slog.InfoContext(gctx, "worker stopped")
		return nil
	})
	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
