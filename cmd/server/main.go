// Package main implements the ARFlow ingestion core's entry point.
//
// This service accepts AR/XR sensor telemetry (transform, color, depth,
// gyroscope, audio, plane, point cloud, and mesh frames) from recording
// devices over a JSON-RPC 2.0/WebSocket transport and routes it to either a
// live viewer or an archival recording, one session at a time per device
// group.
//
// Architecture follows a layered approach:
//   - Foundation: configuration and logging
//   - Recording: the Adapter that journals/streams frames (file-backed by
//     default)
//   - Core: the session registry and RPC servicer built on top of it
//   - API: the JSON-RPC/WebSocket transport (protocol layer only)
//   - Operations: health/readiness/metrics HTTP endpoints and background
//     maintenance jobs
//
// Graceful shutdown stops the components concurrently under one deadline;
// the RPC transport is drained before the session streams and then the
// global recording are disconnected.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cake-lab/arflow-go/internal/config"
	"github.com/cake-lab/arflow-go/internal/health"
	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/maintenance"
	"github.com/cake-lab/arflow-go/internal/recorder"
	"github.com/cake-lab/arflow-go/internal/rpcserver"
)

func main() {
	// Foundation: load and validate configuration.
	configManager := config.CreateConfigManager()
	configPath := os.Getenv("ARFLOW_CONFIG_PATH")
	if configPath == "" {
		configPath = "config/default.yaml"
	}
	if err := configManager.LoadConfig(configPath); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cfg := configManager.GetConfig()
	if cfg == nil {
		log.Fatalf("configuration not available")
	}

	if err := logging.SetupLogging(&logging.LoggingConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		MaxFileSize:    int(cfg.Logging.MaxFileSize),
		BackupCount:    cfg.Logging.BackupCount,
		ConsoleEnabled: cfg.Logging.ConsoleEnabled,
	}); err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	logger := logging.GetLogger("arflow")
	logger.Info("starting arflow ingestion core")

	// Recording: a file-backed adapter that, in archival mode, writes every
	// session's records to a .rrd file under OperatingMode.SaveDir.
	adapter := recorder.NewFileAdapter(logger)

	// Core: the RPC servicer validates the operating mode and wraps a
	// session registry bound to the adapter.
	servicer, err := rpcserver.New(rpcserver.Config{
		Adapter:        adapter,
		ApplicationID:  cfg.OperatingMode.ApplicationID,
		SpawnViewer:    cfg.OperatingMode.SpawnViewer,
		SaveDir:        cfg.OperatingMode.SaveDir,
		Logger:         logger,
		WarnFreeBytes:  cfg.Storage.WarnFreeBytes,
		BlockFreeBytes: cfg.Storage.BlockFreeBytes,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to construct rpc servicer")
	}

	// API: JSON-RPC 2.0 over WebSocket, dispatch bounded by a worker pool.
	transport := rpcserver.NewTransport(servicer, rpcserver.TransportConfig{
		Host:              cfg.Transport.Host,
		Port:              cfg.Transport.Port,
		Path:              cfg.Transport.Path,
		MaxConnections:    cfg.Transport.MaxConnections,
		ReadTimeout:       cfg.Transport.ReadTimeout,
		WriteTimeout:      cfg.Transport.WriteTimeout,
		PingInterval:      cfg.Transport.PingInterval,
		PongWait:          cfg.Transport.PongWait,
		MaxMessageSize:    cfg.Transport.MaxMessageSize,
		WorkerPoolSize:    cfg.Transport.WorkerPoolSize,
		WorkerTaskTimeout: cfg.Transport.WorkerTaskTimeout,
		ShutdownTimeout:   cfg.Transport.ShutdownTimeout,
		Logger:            logger,
	})

	ctx := context.Background()
	if err := transport.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start rpc transport")
	}
	logger.WithField("port", strconv.Itoa(cfg.Transport.Port)).Info("rpc transport started")

	// Operations: health/readiness/metrics, and background maintenance.
	var healthServer *health.Server
	if cfg.Health.Enabled {
		monitor := health.NewMonitor(servicer.Registry())
		healthServer = health.NewServer(cfg.Health.Host, cfg.Health.Port, cfg.Health.MetricsEnabled, monitor, logger)
		if err := healthServer.Start(ctx); err != nil {
			logger.WithError(err).Fatal("failed to start health server")
		}
		logger.Info("health server started")
	}

	sched, err := maintenance.New(
		servicer.Registry(), adapter,
		cfg.Health.StatsLogInterval, cfg.Health.StaleHandleInterval, cfg.Health.StaleHandleAge,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to build maintenance scheduler")
	}
	sched.Start()

	logger.Info("arflow ingestion core started - all components operational")

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal, stopping services...")

	shutdownTimeout := cfg.ServerDefaults.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errorChan := make(chan error, 6)

	stop := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(shutdownCtx); err != nil {
				logger.WithError(err).WithField("component", name).Error("error stopping component")
				errorChan <- err
			}
		}()
	}

	if healthServer != nil {
		stop("health server", healthServer.Stop)
	}
	stop("maintenance scheduler", sched.Stop)
	// Drain in-flight RPCs, then disconnect every live session's stream,
	// then the global recording, so no RPC is still writing once they close.
	stop("rpc transport", func(ctx context.Context) error {
		err := transport.Stop(ctx)
		servicer.Shutdown()
		if derr := adapter.Disconnect(nil); err == nil {
			err = derr
		}
		return err
	})
	stop("config manager", configManager.Stop)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all services stopped cleanly")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timeout - forcing exit")
		os.Exit(1)
	}

	close(errorChan)
	errCount := 0
	for range errorChan {
		errCount++
	}
	if errCount > 0 {
		logger.WithField("error_count", strconv.Itoa(errCount)).Error("some services failed to stop cleanly")
	}

	logger.Info("arflow ingestion core stopped")
}
