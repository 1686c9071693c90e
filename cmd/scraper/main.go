package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/pipeline"
	"github.com/aluiziolira/go-scrape-wb/scraper"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	sellerURL := flag.String("url", "", "Seller or brand page URL to harvest")
	outputFile := flag.String("output", "", "Output file path (default: a generated name in the output dir)")
	outputFormat := flag.String("format", "", "Output format: csv, csv-cp1251, json, or dual")
	safetyCap := flag.Int("cap", 0, "Maximum products to collect (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	cfg, err := buildConfig(*configPath, *outputFormat, *metricsAddr, *safetyCap, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if strings.TrimSpace(*sellerURL) == "" {
		fmt.Fprintln(os.Stderr, "-url is required")
		flag.Usage()
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, keeping the products gathered so far")
	}()

	metrics := scraper.NewMetrics()
	client, err := scraper.NewClient(cfg, metrics)
	if err != nil {
		slog.Error("initialising client", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	target, err := scraper.NewResolver(cfg, client).Resolve(ctx, *sellerURL)
	if err != nil {
		slog.Error("resolving target", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("starting harvest", slog.String("target", target.String()), slog.Int("safety_cap", cfg.SafetyCap))

	harvester := scraper.NewHarvester(cfg, client, scraper.WithMetrics(metrics))
	result := harvester.Harvest(ctx, target)
	if len(result.Products) == 0 {
		slog.Error("no products found", slog.String("target", target.String()), slog.String("reason", string(result.Reason)))
		os.Exit(1)
	}

	path := *outputFile
	if path == "" {
		path = cfg.OutputFile
	}
	if path == "" {
		path = filepath.Join(cfg.OutputDir, pipeline.FileName(cfg.OutputFormat, time.Now()))
	}
	writer, err := pipeline.NewWriter(cfg.OutputFormat, path)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	// The harvest already honoured the signal; the export always completes.
	processed, err := pipeline.Export(context.WithoutCancel(ctx), writer, cfg, result.Products)
	if err != nil {
		slog.Error("export failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, processed, path)
	if result.Partial() {
		os.Exit(3)
	}
}

func buildConfig(path, format, metricsAddr string, safetyCap int, verbose bool) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if format != "" {
		cfg.OutputFormat = strings.ToLower(format)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if safetyCap > 0 {
		cfg.SafetyCap = safetyCap
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printSummary(result *models.HarvestResult, processed int64, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.Partial() {
		fmt.Println("Harvest stopped early (partial result)")
	} else {
		fmt.Println("Harvest complete")
	}

	duration := result.Duration()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(len(result.Products)) / duration.Seconds()
	}

	fmt.Printf("  Stop reason:   %s\n", result.Reason)
	fmt.Printf("  Products:      %d\n", len(result.Products))
	fmt.Printf("  Exported:      %d\n", processed)
	fmt.Printf("  Pages:         %d\n", result.Pages)
	fmt.Printf("  Requests:      %d\n", result.Requests)
	fmt.Printf("  Errors:        %d\n", result.Errors)
	fmt.Printf("  Rate limited:  %d\n", result.RateLimited)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if result.Duplicates > 0 || result.SkippedRecords > 0 {
		fmt.Printf("  Skipped:       %d duplicates, %d invalid\n", result.Duplicates, result.SkippedRecords)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
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
