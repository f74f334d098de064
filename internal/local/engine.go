package local

import (
	"context"
	"fmt"
	"net"

	"github.com/sahmadiut/half-tunnel/internal/config"
	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/sahmadiut/half-tunnel/internal/transport"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// Engine assembles the local side's components (spec §4.0): the
// stream registry, the tunnel (sender/receiver/switcher), and the
// SOCKS5 acceptor.
type Engine struct {
	cfg      *config.LocalConfig
	log      *logger.Logger
	metrics  *metrics.Collector
	registry *Registry
	tunnel   *Tunnel
	acceptor *Acceptor
}

// NewEngine wires up a local Engine from configuration.
func NewEngine(cfg *config.LocalConfig, log *logger.Logger, mcol *metrics.Collector) *Engine {
	registry := NewRegistry()

	dialCfg := transport.DefaultConfig(cfg.Local.TunnelURL)
	tunnel := NewTunnel(Config{
		URL:              cfg.Local.TunnelURL,
		DialConfig:       dialCfg,
		ReconnectBackoff: cfg.Local.ReconnectDelay,
		SwitchInterval:   cfg.Local.SwitchInterval,
		DrainTimeout:     cfg.Local.DrainTimeout,
	}, log, mcol, nil)

	tunnel.dispatch = func(m *protocol.Message) {
		dispatchToStream(registry, log, m)
	}

	acceptor := NewAcceptor(cfg.Local.ListenAddr, registry, tunnel, log, mcol)

	return &Engine{cfg: cfg, log: log, metrics: mcol, registry: registry, tunnel: tunnel, acceptor: acceptor}
}

// dispatchToStream looks up the frame's stream and pushes it onto the
// stream's inbound queue, dropping frames for an unknown cid (spec
// §4.4). Push blocks while the stream's pump is behind, so a slow
// stream applies back-pressure to this call rather than losing data;
// it only returns false once the stream has already been torn down.
func dispatchToStream(registry *Registry, log *logger.Logger, m *protocol.Message) {
	if m.Cmd == protocol.CmdSwitch {
		return
	}
	stream, ok := registry.Lookup(m.CID)
	if !ok {
		log.Debug().Str("cid", m.CID).Msg("dropping frame for unknown stream")
		return
	}
	if !stream.Push(m) {
		log.Debug().Str("cid", m.CID).Msg("dropping frame for torn-down stream")
	}
}

// Run starts the tunnel receiver, the switcher, and the SOCKS5
// acceptor, blocking until ctx is cancelled or the acceptor fails.
func (e *Engine) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.cfg.Local.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", e.cfg.Local.ListenAddr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go e.tunnel.RunReceiver(ctx)
	go e.tunnel.RunSwitcher(ctx)

	e.log.Info().Str("addr", e.cfg.Local.ListenAddr).Msg("socks5 acceptor listening")

	err = e.acceptor.Run(ln)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
