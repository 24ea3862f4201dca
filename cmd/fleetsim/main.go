package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seu-repo/sigec-fleetsim/internal/sim"
	"github.com/seu-repo/sigec-fleetsim/internal/uiserver"
	"github.com/seu-repo/sigec-fleetsim/pkg/config"
)

// Exit codes: 0 normal, 1 startup failure, 2 configuration error.
const (
	exitOK            = 0
	exitStartupFailed = 1
	exitConfigError   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfigError
	}
	applyEnvOverrides(cfg)

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfigError
	}
	defer logger.Sync()

	logger.Info("Starting fleet simulator",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	simulator, err := sim.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble simulator", zap.Error(err))
		return exitStartupFailed
	}
	defer simulator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Fleet.AutoStart {
		if err := simulator.Start(ctx); err != nil {
			logger.Error("Failed to start simulator", zap.Error(err))
			return exitStartupFailed
		}
	}

	var metricsSrv *http.Server
	if cfg.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Prometheus.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Prometheus.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	var ui *uiserver.Server
	uiErr := make(chan error, 1)
	if cfg.UI.Enabled {
		ui = uiserver.NewServer(uiserver.Options{
			Addr:             fmt.Sprintf("%s:%d", cfg.UI.Host, cfg.UI.Port),
			AuthEnabled:      cfg.UI.AuthEnabled,
			Users:            cfg.UI.Users,
			RatePerSecond:    cfg.UI.RatePerSecond,
			Burst:            cfg.UI.Burst,
			MaxIPs:           cfg.UI.MaxIPs,
			BodyLimit:        cfg.UI.BodyLimit,
			GzipThreshold:    cfg.UI.GzipThreshold,
			MaxAddStations:   cfg.UI.MaxAddStations,
			BroadcastTimeout: cfg.UI.BroadcastTimeout,
		}, simulator, simulator.Bus(), logger)
		go func() {
			uiErr <- ui.Listen()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-uiErr:
		if err != nil {
			logger.Error("UI server failed", zap.Error(err))
			return exitStartupFailed
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ui != nil {
		if err := ui.Shutdown(); err != nil {
			logger.Warn("UI server shutdown", zap.Error(err))
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown", zap.Error(err))
		}
	}
	if err := simulator.Stop(shutdownCtx); err != nil {
		logger.Warn("Simulator stop", zap.Error(err))
	}
	logger.Info("Fleet simulator stopped")
	return exitOK
}

// applyEnvOverrides honors the deployment environment variables the launcher
// owns: CI disables the UI surface for headless runs; VCAP_APPLICATION marks
// a Cloud Foundry deploy where PORT dictates the UI port.
func applyEnvOverrides(cfg *config.Config) {
	if os.Getenv("CI") != "" {
		cfg.UI.Enabled = false
	}
	if os.Getenv("VCAP_APPLICATION") != "" {
		cfg.UI.Host = ""
		if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
			cfg.UI.Port = port
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
