// Package main provides the entry point for the tunnel's local
// (SOCKS5-facing) process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sahmadiut/half-tunnel/internal/config"
	"github.com/sahmadiut/half-tunnel/internal/local"
	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	flags := pflag.NewFlagSet("local", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to configuration file")
	listenAddr := flags.String("listen", "", "SOCKS5 listen address (overrides config)")
	tunnelURL := flags.String("tunnel-url", "", "remote tunnel WebSocket URL (overrides config)")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("half-tunnel local %s (commit %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.LoadLocal(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Local.ListenAddr = *listenAddr
	}
	if *tunnelURL != "" {
		cfg.Local.TunnelURL = *tunnelURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", version).
		Str("listen_addr", cfg.Local.ListenAddr).
		Str("tunnel_url", cfg.Local.TunnelURL).
		Msg("starting local tunnel process")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcol := metrics.NewCollector()
	metricsServer := metrics.NewServer(cfg.Observability.MetricsAddr, mcol)
	go func() {
		if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	engine := local.NewEngine(cfg, log, mcol)

	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("engine stopped")
		}
	}

	_ = metricsServer.Shutdown(context.Background())
}
