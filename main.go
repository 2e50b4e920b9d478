package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/filament/config"
	"github.com/pthm-cable/filament/metrics"
	"github.com/pthm-cable/filament/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, snapshots and config copy")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = use solver.steps, both 0 = unlimited)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	limit := *maxTicks
	if limit == 0 {
		limit = cfg.Solver.Steps
	}
	addr := *metricsAddr
	if addr == "" {
		addr = cfg.Telemetry.MetricsAddr
	}

	var m *metrics.Metrics
	var srv *http.Server
	if addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	s, err := sim.New(cfg, sim.Options{
		OutputDir: *outputDir,
		LogStats:  *logStats,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting simulation",
		"dt", cfg.Solver.DT,
		"mode", cfg.Solver.IntegrationMode,
		"update", cfg.Filament.Update,
		"max_ticks", limit,
	)

	code := run(ctx, s, limit)

	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		code = 1
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	os.Exit(code)
}

// run steps s until limit ticks (0 = unlimited) or ctx is cancelled and
// returns the process exit code.
func run(ctx context.Context, s *sim.Simulation, limit int) int {
	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "tick", s.Tick())
			return 0
		default:
		}

		if err := s.Step(); err != nil {
			slog.Error("step failed", "tick", s.Tick(), "error", err)
			return 1
		}

		if limit > 0 && int(s.Tick()) >= limit {
			slog.Info("max ticks reached", "tick", s.Tick())
			return 0
		}
	}
}
