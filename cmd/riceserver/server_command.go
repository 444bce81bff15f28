package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riceserver/internal/api"
	"riceserver/internal/configwatch"
	"riceserver/internal/event"
	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/theme"
	"riceserver/internal/version"
)

const (
	httpServerShutdownTimeout = 5 * time.Second
	httpReadHeaderTimeout     = 5 * time.Second
	themeEventHistory         = 32
)

// pipeline holds the long-lived components behind the HTTP surface.
type pipeline struct {
	bus     *event.Bus[event.ThemeEvent]
	manager *theme.Manager
	bridge  *configwatch.Bridge
	session *configwatch.Session
}

func runServer(args []string) int {
	cfg, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Fprintln(os.Stdout, version.GetVersionInfo().String())
		return 0
	}

	logBuffer := logging.NewLogBuffer(int(cfg.Settings.Log.BufferSize))
	logger := logging.NewLogger(logBuffer, cfg.LogLevel)
	logVersionInfo(logger)
	logStartupConfig(logger, cfg)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	coordinator := newShutdownCoordinator(logger)
	components, err := startPipeline(shutdownCtx, cfg, logger, metrics.Default, coordinator)
	if err != nil {
		logger.Error("startup failed", map[string]string{
			"error": err.Error(),
		})
		_ = coordinator.Run(context.Background())
		return 1
	}

	listener, err := net.Listen("tcp", cfg.Settings.Server.Address())
	if err != nil {
		logger.Error("listen failed", map[string]string{
			"address": cfg.Settings.Server.Address(),
			"error":   err.Error(),
		})
		_ = coordinator.Run(context.Background())
		return 1
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Manager:   components.manager,
		Bridge:    components.bridge,
		Bus:       components.bus,
		Logger:    logger,
		Metrics:   metrics.Default,
		AuthToken: cfg.Settings.Server.Token,
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, shutdownCancel, signalCh)
	defer stopSignals()

	logger.Info("riceserver listening", map[string]string{
		"addr": listener.Addr().String(),
	})

	runner := &ServerRunner{Logger: logger, ShutdownTimeout: httpServerShutdownTimeout}
	serverErr := runner.Run(shutdownCtx, ManagedServer{
		Name: "api",
		Serve: func() error {
			return server.Serve(listener)
		},
		Shutdown: server.Shutdown,
	})

	stopContext, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancel()
	if err := coordinator.Run(stopContext); err != nil {
		logger.Warn("shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}

	if serverErr != nil {
		return 1
	}
	logger.Info("riceserver stopped", nil)
	return 0
}

// startPipeline builds the bus, theme manager, apply bridge and watch session,
// registering each with coordinator so they stop after the HTTP server in
// reverse dependency order.
func startPipeline(ctx context.Context, cfg Config, logger *logging.Logger, registry *metrics.Registry, coordinator *shutdownCoordinator) (*pipeline, error) {
	components := &pipeline{}

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config root: %w", err)
	}

	components.bus = event.NewBus[event.ThemeEvent](context.Background(), event.BusOptions{
		Name:        "theme_events",
		HistorySize: themeEventHistory,
		Registry:    registry,
	})

	manager, err := theme.NewManager(theme.Options{
		Root:    cfg.ConfigDir,
		Logger:  logger.Named("theme"),
		Bus:     components.bus,
		Metrics: registry,
	})
	if err != nil {
		components.bus.Close()
		return nil, fmt.Errorf("create theme manager: %w", err)
	}
	if err := manager.Load(); err != nil {
		components.bus.Close()
		return nil, fmt.Errorf("load config root: %w", err)
	}
	components.manager = manager

	components.bridge = configwatch.NewBridge(configwatch.BridgeOptions{
		QueueSize: int(cfg.Settings.Apply.QueueSize),
		Timeout:   cfg.Settings.Apply.Timeout,
		Logger:    logger.Named("bridge"),
	})

	session, err := configwatch.NewSession(configwatch.SessionOptions{
		Root:           cfg.ConfigDir,
		Manager:        manager,
		Bridge:         components.bridge,
		Logger:         logger.Named("configwatch"),
		Metrics:        registry,
		DebounceWindow: cfg.Settings.Watch.Debounce,
		SweepInterval:  cfg.Settings.Watch.SweepInterval,
	})
	if err != nil {
		_ = components.bridge.Close()
		components.bus.Close()
		return nil, fmt.Errorf("create watch session: %w", err)
	}
	components.session = session

	coordinator.AddCloser("watch session", session.Close)
	coordinator.AddCloser("apply bridge", components.bridge.Close)
	coordinator.AddCloser("event bus", func() error {
		components.bus.Close()
		return nil
	})

	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("start watch session: %w", err)
	}
	return components, nil
}
