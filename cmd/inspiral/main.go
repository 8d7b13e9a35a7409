// Command inspiral runs the multi-detector matched-filter search end to end
// on synthetic data: Gaussian noise in H1 and L1 with a handful of injected
// chirps, a small TaylorF2 bank, the veto battery, sqlite persistence and
// injection scoring against the coincident foreground.
//
// Usage:
//
//	inspiral [flags]
//
// Configuration is read from the environment (INSPIRAL_*) and the YAML file
// named by INSPIRAL_CONFIG; flags only shape the synthetic data.
//
// Examples:
//
//	inspiral -injections 8 -snr 10
//	INSPIRAL_SAMPLE_RATE=2048 INSPIRAL_SEGMENT_LENGTH=262144 inspiral
//	inspiral -metrics :9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/algo-inspiral/internal/config"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	d := defaultDemo()
	flag.IntVar(&d.Segments, "segments", d.Segments, "whole segments of strain per detector")
	flag.IntVar(&d.Injections, "injections", d.Injections, "number of injected signals")
	flag.IntVar(&d.Vetoed, "vetoed", d.Vetoed, "trailing injections covered by an L1 veto")
	flag.Float64Var(&d.SNR, "snr", d.SNR, "optimal SNR of every injection")
	flag.Int64Var(&d.Seed, "seed", d.Seed, "noise seed")
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics on this address while running")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: inspiral [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the inspiral search on synthetic H1/L1 data.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if d.Segments < 1 || d.Injections < 0 || d.Vetoed < 0 {
		os.Stderr.WriteString("segments must be >= 1, injections and vetoed >= 0\n")
		os.Exit(2)
	}

	m := metrics.Default()
	if *metricsAddr != "" {
		srv := serveMetrics(ctx, log, *metricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
			}
		}()
	}

	out, err := run(ctx, cfg, d, m)
	if err != nil {
		log.Error(ctx, "run failed", logger.Error(err))
		stop()
		os.Exit(1)
	}

	fmt.Printf("run %s: %d templates, %d triggers, %d coincidences\n",
		out.RunID, out.Templates, out.Triggers, len(out.Foreground))
	fmt.Printf("injections: %d found, %d missed, %d ambiguous, %d found after vetoes (stored in %s)\n",
		len(out.Report.FoundAll), len(out.Report.MissedAll), len(out.Report.Ambiguous),
		len(out.Report.FoundAfterVetoes), cfg.DatabasePath)
}

func serveMetrics(ctx context.Context, log logger.Logger, addr string, m *metrics.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}
	go func() {
		log.Info(ctx, "serving metrics", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", logger.Error(err))
		}
	}()
	return srv
}
