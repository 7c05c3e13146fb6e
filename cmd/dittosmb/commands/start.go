package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/server"
)

var (
	listenAddress string
	pidFile       string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the SMB server",
	Long: `Start the SMB server in the foreground.

The server stops gracefully on SIGINT or SIGTERM: new connections are
refused, open files are closed and parked lock requests are dropped.

Examples:
  # Start with the default config
  dittosmb start

  # Start on an unprivileged port
  dittosmb start --listen :1445

  # Start with environment variable overrides
  DITTOSMB_LOGGING_LEVEL=DEBUG dittosmb start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&listenAddress, "listen", "", "Override server.listen_address")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if listenAddress != "" {
		cfg.Server.ListenAddress = listenAddress
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittosmb",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittosmb",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled", "path", "/metrics", "api_port", cfg.API.Port)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			srv.Close()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", "address", cfg.Server.ListenAddress)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}
	return nil
}
