package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/sahmadiut/half-tunnel/internal/transport"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// Server is the Tunnel Server (spec §4.7): it accepts the incoming
// WebSocket upgrade and dispatches every frame it reads to the
// connect/data/close/switch handlers of §4.8-§4.10.
type Server struct {
	listenAddr  string
	registry    *Registry
	dialer      *Dialer
	log         *logger.Logger
	metrics     *metrics.Collector
	idleTimeout time.Duration

	httpServer *http.Server
}

// NewServer creates a Server.
func NewServer(listenAddr string, registry *Registry, dialer *Dialer, log *logger.Logger, mcol *metrics.Collector, idleTimeout time.Duration) *Server {
	return &Server{listenAddr: listenAddr, registry: registry, dialer: dialer, log: log, metrics: mcol, idleTimeout: idleTimeout}
}

// Run serves the tunnel upgrade endpoint until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.serveUpgrade(ctx, w, r)
	})

	s.httpServer = &http.Server{Addr: s.listenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// serverConn serializes writes to one tunnel WebSocket; concurrently
// running pumps all write through it (spec §4.3's send_lock equivalent
// on the remote side, scoped to a single physical connection rather
// than the hot-swappable local tunnel).
type serverConn struct {
	ws     *transport.Connection
	sendMu sync.Mutex
}

func (c *serverConn) Send(m *protocol.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.WriteMessage(m)
}

func (s *Server) serveUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	ws, err := transport.Accept(w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("tunnel upgrade failed")
		return
	}
	s.metrics.SetTunnelConnected(true)
	defer func() {
		_ = ws.Close()
		s.metrics.SetTunnelConnected(false)
	}()

	conn := &serverConn{ws: ws}
	eg, _ := errgroup.WithContext(ctx)

	for {
		m, err := ws.ReadMessage()
		if err != nil {
			break
		}
		s.metrics.RecordFrameReceived(m.Cmd.String(), len(m.Data))

		switch m.Cmd {
		case protocol.CmdConnect:
			s.handleConnect(ctx, m, conn, eg)
		case protocol.CmdData:
			s.handleData(ctx, m, conn, eg)
		case protocol.CmdClose:
			s.handleClose(m)
		case protocol.CmdSwitch:
			s.log.Debug().Msg("peer switched transport")
		default:
			s.log.Warn().Str("cmd", m.Cmd.String()).Msg("unknown frame command, ignoring")
		}
	}

	_ = eg.Wait()
}

// handleConnect is the Upstream Dialer entry point (spec §4.8): dial
// host:port and reply with a connect acknowledgment.
func (s *Server) handleConnect(ctx context.Context, m *protocol.Message, conn *serverConn, eg *errgroup.Group) {
	cid, host, port := m.CID, m.Host, m.Port
	log := s.log.WithCID(cid)

	upstream, err := s.dialer.Dial(ctx, host, port)
	if err != nil {
		s.metrics.RecordUpstreamDialFailure()
		log.Info().Err(err).Str("host", host).Msg("upstream dial failed")
		_ = conn.Send(protocol.NewConnectReply(cid, false, err.Error()))
		return
	}

	s.registry.Insert(cid, upstream)
	s.metrics.RecordStreamOpened()

	if err := conn.Send(protocol.NewConnectReply(cid, true, "")); err != nil {
		_ = upstream.Close()
		s.registry.Remove(cid)
		s.metrics.RecordStreamClosed()
		return
	}

	pump := NewPump(s.registry, s.log, s.metrics, s.idleTimeout)
	eg.Go(func() error {
		pump.Run(cid, host, port, upstream, conn)
		s.metrics.RecordStreamClosed()
		return nil
	})
}

// handleData is the Remote Data Handler (spec §4.9): forward the
// payload to the stream's upstream writer. If no writer is registered
// for cid, the frame itself carries enough to recover: dial host:port
// fresh, register it, and spawn a pump before forwarding the payload.
func (s *Server) handleData(ctx context.Context, m *protocol.Message, conn *serverConn, eg *errgroup.Group) {
	cid := m.CID
	upstream, ok := s.registry.Lookup(cid)
	if !ok {
		if m.Host == "" {
			s.log.Debug().Str("cid", cid).Msg("data frame for unknown stream with no recovery info, dropping")
			return
		}

		dialed, err := s.dialer.Dial(ctx, m.Host, m.Port)
		if err != nil {
			s.metrics.RecordUpstreamDialFailure()
			_ = conn.Send(protocol.NewClose(cid))
			return
		}
		s.registry.Insert(cid, dialed)
		s.metrics.RecordStreamOpened()

		pump := NewPump(s.registry, s.log, s.metrics, s.idleTimeout)
		eg.Go(func() error {
			pump.Run(cid, m.Host, m.Port, dialed, conn)
			s.metrics.RecordStreamClosed()
			return nil
		})
		upstream = dialed
	}

	if len(m.Data) == 0 {
		return
	}
	if _, err := upstream.Write(m.Data); err != nil {
		s.log.WithCID(cid).Debug().Err(err).Msg("upstream write failed")
		_ = upstream.Close()
		s.registry.Remove(cid)
		_ = conn.Send(protocol.NewClose(cid))
	}
}

// handleClose is the Remote Close Handler (spec §4.10): close the
// upstream writer if present. The registry entry itself is removed by
// the pump's own deferred cleanup on its next iteration.
func (s *Server) handleClose(m *protocol.Message) {
	if upstream, ok := s.registry.Lookup(m.CID); ok {
		_ = upstream.Close()
	}
}
