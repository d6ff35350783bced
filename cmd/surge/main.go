package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/surge/internal/config"
	"github.com/torosent/surge/internal/httpclient"
	"github.com/torosent/surge/internal/logging"
	"github.com/torosent/surge/internal/metrics"
	"github.com/torosent/surge/internal/output"
	"github.com/torosent/surge/internal/runner"
	"github.com/torosent/surge/internal/scenario"
	"github.com/torosent/surge/internal/threshold"
	"github.com/torosent/surge/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errThresholdsFailed makes the process exit non-zero after the summary has
// been printed.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			return &runner.ConfigError{Issues: verr.Issues()}
		}
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return &runner.ConfigError{Issues: []string{err.Error()}}
	}

	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	runID := runner.NewRunID()
	provider, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()
	var tracer trace.Tracer
	if provider.Enabled() {
		tracer = provider.Tracer()
	}

	registry := metrics.NewRegistry()
	collector := metrics.NewCollector()

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, metrics.NewExporter(registry, collector, cfg.VUs), logger)
		defer stop()
	}

	client := httpclient.New(httpclient.Options{
		Timeout:   cfg.Timeout,
		RPS:       cfg.Rate,
		Retries:   cfg.Retries,
		Collector: collector,
		Tracer:    tracer,
		Propagate: provider.ShouldPropagate(),
		Logger:    logger,
	})

	sc, err := scenario.New(cfg, scenario.Options{
		Client:  client,
		Tracer:  tracer,
		Logger:  logger,
		RunID:   runID,
		BaseDir: configDir(cfg.ConfigFile),
	})
	if err != nil {
		return &runner.ConfigError{Issues: []string{err.Error()}}
	}

	opts := sc.Options()
	opts.Logger = logger
	opts.Registry = registry
	opts.HTTPStats = func(elapsed time.Duration) *metrics.HTTPStats {
		stats := collector.Stats(elapsed)
		if stats.Requests == 0 {
			return nil
		}
		return &stats
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Quiet {
		progress = output.NewProgressReporter(registry, collector, progressInterval, stdout)
		progress.Start()
	}

	sum, err := runner.New(opts).Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(sum)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, sum, results); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, sum, results)
	}

	if cfg.SummaryFile != "" {
		if err := output.WriteSummaryFile(cfg.SummaryFile, sum, results); err != nil {
			return fmt.Errorf("summary file: %w", err)
		}
	}

	if !threshold.Passed(results) {
		return errThresholdsFailed
	}
	return nil
}

// serveMetrics exposes the exporter on addr until the returned func is called.
func serveMetrics(addr string, exporter *metrics.Exporter, logger *zap.Logger) func() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func configDir(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}
