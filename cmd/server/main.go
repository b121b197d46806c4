package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scanbridge/internal/adapters/browser"
	"scanbridge/internal/adapters/converter"
	"scanbridge/internal/adapters/filestore"
	httpadapter "scanbridge/internal/adapters/http"
	"scanbridge/internal/adapters/lswebapi"
	"scanbridge/internal/adapters/memory"
	pg "scanbridge/internal/adapters/postgres"
	"scanbridge/internal/config"
	applog "scanbridge/internal/log"
	"scanbridge/internal/ports"
	"scanbridge/internal/services/bridge"
	"scanbridge/internal/services/scanner"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(applog.New(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobs   ports.JobRepository
		health func(context.Context) error
	)
	if cfg.JobsDatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.JobsDatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		jobs, health = db, db.Ping
		slog.Info("using postgres job store")
	} else {
		jobs = memory.NewJobStore()
		slog.Info("using in-memory job store")
	}

	dir := lswebapi.New(cfg.Scanner.InsecureTLS)
	timings := scanner.DefaultTimings()
	timings.Deadline = cfg.Scanner.Deadline
	timings.PollInterval = cfg.Scanner.PollInterval
	opts := []scanner.Option{scanner.WithTimings(timings)}
	srvOpts := []httpadapter.Option{httpadapter.WithBaseContext(ctx)}
	if health != nil {
		srvOpts = append(srvOpts, httpadapter.WithHealthCheck(health))
	}

	if cfg.ArtifactDir != "" {
		store, err := filestore.New(cfg.ArtifactDir)
		if err != nil {
			return err
		}
		opts = append(opts, scanner.WithArtifactStore(store))
		slog.Info("storing scans", "dir", cfg.ArtifactDir)
	}
	if cfg.Converter.URL != "" {
		conv := converter.New(cfg.Converter.URL, cfg.Converter.Format, cfg.Converter.Workspace, cfg.Converter.Timeout)
		opts = append(opts, scanner.WithConverter(conv, cfg.Converter.Format))
		srvOpts = append(srvOpts, httpadapter.WithConverter(conv))
		slog.Info("conversion enabled", "converter", cfg.Converter.URL, "format", cfg.Converter.Format)
	}

	scans := scanner.New(browser.New(cfg.Browser.ExecPath, cfg.Browser.Headless), dir, cfg.Scanner, opts...)
	api := httpadapter.New(scans, bridge.New(jobs), dir, cfg.Scanner, srvOpts...)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Sessions run under ctx, so they unwind once it is cancelled.
		stop()
		scans.Wait()
		return err
	})
	return g.Wait()
}
