package remote

import (
	"context"

	"github.com/sahmadiut/half-tunnel/internal/config"
	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// Engine assembles the remote side's components (spec §4.0): the
// upstream registry, the dialer, and the tunnel server.
type Engine struct {
	cfg     *config.RemoteConfig
	log     *logger.Logger
	metrics *metrics.Collector
	server  *Server
}

// NewEngine wires up a remote Engine from configuration.
func NewEngine(cfg *config.RemoteConfig, log *logger.Logger, mcol *metrics.Collector) *Engine {
	registry := NewRegistry()
	dialer := NewDialer(cfg.Remote.UpstreamDialTimeout)
	server := NewServer(cfg.Remote.ListenAddr, registry, dialer, log, mcol, cfg.Remote.UpstreamIdleTimeout)

	return &Engine{cfg: cfg, log: log, metrics: mcol, server: server}
}

// Run starts the tunnel server, blocking until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Str("addr", e.cfg.Remote.ListenAddr).Msg("tunnel server listening")
	return e.server.Run(ctx)
}
