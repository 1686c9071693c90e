package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/pipeline"
	"github.com/aluiziolira/go-scrape-wb/scraper"
	"github.com/aluiziolira/go-scrape-wb/server"
	"github.com/aluiziolira/go-scrape-wb/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	listenAddr := flag.String("addr", "", "HTTP listen address (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := run(cfg); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	metrics := scraper.NewMetrics()
	client, err := scraper.NewClient(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initialising client: %w", err)
	}

	opts := []server.Option{server.WithLogger(slog.Default())}
	if cfg.HistoryDB != "" {
		runs, err := store.NewRunStore(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer runs.Close()
		opts = append(opts, server.WithRunStore(runs))
	}
	if cfg.PostgresDSN != "" {
		dsn := cfg.PostgresDSN
		opts = append(opts, server.WithSink(func(ctx context.Context) (pipeline.OutputWriter, error) {
			return pipeline.NewPostgresWriter(ctx, dsn)
		}))
		slog.Info("postgres sink enabled")
	}

	srv := server.New(cfg, client, metrics, opts...)
	api := srv.HTTPServer(cfg.ListenAddr)
	// A signal cancels running harvests so they stop with partial results
	// before Shutdown gives up on them.
	api.BaseContext = func(net.Listener) context.Context { return ctx }
	servers := []*http.Server{api}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		})
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range servers {
		g.Go(func() error {
			slog.Info("listening", slog.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", hs.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, hs := range servers {
			if err := hs.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", hs.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
