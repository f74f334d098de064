package local

import (
	"io"
	"net"

	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/sahmadiut/half-tunnel/internal/socks5"
	"github.com/sahmadiut/half-tunnel/internal/streamid"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// Acceptor is the SOCKS5 Acceptor (spec §4.1): it owns the listener,
// performs the SOCKS5 greeting, and bridges each accepted connection
// into a multiplexed stream.
type Acceptor struct {
	listenAddr string
	registry   *Registry
	tunnel     *Tunnel
	log        *logger.Logger
	metrics    *metrics.Collector
}

// NewAcceptor creates an Acceptor.
func NewAcceptor(listenAddr string, registry *Registry, tunnel *Tunnel, log *logger.Logger, mcol *metrics.Collector) *Acceptor {
	return &Acceptor{listenAddr: listenAddr, registry: registry, tunnel: tunnel, log: log, metrics: mcol}
}

// Run listens for SOCKS5 connections until the listener is closed or ln
// is torn down by the caller cancelling the passed-in context via a
// goroutine that closes ln.
func (a *Acceptor) Run(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go a.handle(conn)
	}
}

func (a *Acceptor) handle(conn net.Conn) {
	req, err := socks5.Accept(conn)
	if err != nil {
		// Malformed greeting or rejected command/address type: socks5
		// already wrote any applicable failure reply. Close silently.
		a.log.Debug().Err(err).Msg("socks5 greeting rejected")
		_ = conn.Close()
		return
	}

	cid := streamid.New()
	stream := newStream(cid, conn, req.Host, req.Port)
	a.registry.Insert(stream)
	a.metrics.RecordStreamOpened()

	log := a.log.WithCID(cid)

	if err := a.tunnel.Send(protocol.NewConnect(cid, req.Host, req.Port)); err != nil {
		log.Warn().Err(err).Str("host", req.Host).Msg("failed to send connect frame")
		a.fail(stream)
		return
	}

	reply, ok := <-stream.Inbound()
	if !ok {
		a.fail(stream)
		return
	}
	if reply.Cmd != protocol.CmdConnect {
		log.Warn().Str("cmd", reply.Cmd.String()).Msg("unexpected reply to connect")
		a.fail(stream)
		return
	}
	if !reply.OK {
		log.Info().Str("msg", reply.Msg).Msg("remote dial refused")
		_ = socks5.SendFailure(conn, socks5.ReplyGeneralFailure)
		a.remove(stream)
		return
	}

	if err := socks5.SendSuccess(conn); err != nil {
		a.remove(stream)
		return
	}

	stream.SetPhase(PhaseEstablished)
	log.Info().Str("host", req.Host).Uint16("port", req.Port).Msg("stream established")

	done := make(chan struct{}, 2)
	go a.pumpDownstreamToUpstream(stream, done)
	go a.pumpUpstreamToDownstream(stream, done)

	<-done
	<-done
	a.remove(stream)
}

func (a *Acceptor) fail(stream *Stream) {
	_ = socks5.SendFailure(stream.Downstream, socks5.ReplyGeneralFailure)
	a.remove(stream)
}

func (a *Acceptor) remove(stream *Stream) {
	stream.removeOnce.Do(func() {
		stream.SetPhase(PhaseClosed)
		_ = stream.Downstream.Close()
		stream.Close()
		a.registry.Remove(stream.CID)
		a.metrics.RecordStreamClosed()
	})
}

// pumpDownstreamToUpstream is the downstream-to-upstream pump of spec
// §4.6: read from the SOCKS5 client, emit data frames, emit a close
// frame and move to PhaseHalfClosed on EOF or read error. If the tunnel
// fails to carry a data frame, the stream is torn down.
func (a *Acceptor) pumpDownstreamToUpstream(s *Stream, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	buf := make([]byte, 16*1024)
	for {
		n, err := s.Downstream.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if sendErr := a.tunnel.Send(protocol.NewData(s.CID, payload, s.Host, s.Port)); sendErr != nil {
				a.log.WithCID(s.CID).Warn().Err(sendErr).Msg("failed sending data frame")
				a.remove(s)
				return
			}
		}
		if err != nil {
			if s.Phase() == PhaseClosed {
				return
			}
			s.SetPhase(PhaseHalfClosed)
			_ = a.tunnel.Send(protocol.NewClose(s.CID))
			if err != io.EOF {
				a.log.WithCID(s.CID).Debug().Err(err).Msg("downstream read error")
			}
			return
		}
	}
}

// pumpUpstreamToDownstream is the upstream-to-downstream pump of spec
// §4.6: consume the stream's inbound queue, write data payloads to the
// SOCKS5 client, and close downstream on an empty data frame or a close
// frame, so a client blocked reading until EOF (spec §8 S1) observes
// the close immediately instead of waiting for both pumps to finish.
func (a *Acceptor) pumpUpstreamToDownstream(s *Stream, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for m := range s.Inbound() {
		switch m.Cmd {
		case protocol.CmdData:
			if len(m.Data) == 0 {
				s.SetPhase(PhaseClosed)
				_ = s.Downstream.Close()
				return
			}
			if _, err := s.Downstream.Write(m.Data); err != nil {
				s.SetPhase(PhaseClosed)
				_ = s.Downstream.Close()
				return
			}
		case protocol.CmdClose:
			s.SetPhase(PhaseClosed)
			_ = s.Downstream.Close()
			return
		}
	}
}
