// Package local implements the SOCKS5-facing side of the tunnel: the
// acceptor, stream registry, tunnel sender/receiver, and transport
// switcher described in spec §2/§4 (local side).
package local

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/sahmadiut/half-tunnel/internal/constants"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
)

// Phase is the per-stream state machine of spec §4.6.
type Phase int32

const (
	PhaseAwaitingConnectAck Phase = iota
	PhaseEstablished
	PhaseHalfClosed
	PhaseClosed
)

// Stream is a local side's per-stream entry (spec §3).
type Stream struct {
	CID        string
	Downstream net.Conn
	Host       string
	Port       uint16

	inbound  chan *protocol.Message
	torndown chan struct{}
	phase    atomic.Int32

	removeOnce sync.Once
	closeOnce  sync.Once
}

// newStream creates a stream entry in PhaseAwaitingConnectAck.
func newStream(cid string, downstream net.Conn, host string, port uint16) *Stream {
	s := &Stream{
		CID:        cid,
		Downstream: downstream,
		Host:       host,
		Port:       port,
		inbound:    make(chan *protocol.Message, constants.StreamQueueDepth),
		torndown:   make(chan struct{}),
	}
	s.phase.Store(int32(PhaseAwaitingConnectAck))
	return s
}

// Phase returns the current phase.
func (s *Stream) Phase() Phase {
	return Phase(s.phase.Load())
}

// SetPhase transitions the stream to a new phase.
func (s *Stream) SetPhase(p Phase) {
	s.phase.Store(int32(p))
}

// Push enqueues an inbound frame for this stream's pump to consume. It
// blocks while the bounded queue is full, so a slow downstream consumer
// applies back-pressure all the way up through the tunnel receiver, per
// spec §9. It only gives up once the stream itself has been torn down
// (Close), since nothing will ever drain the queue again at that point.
func (s *Stream) Push(m *protocol.Message) bool {
	select {
	case s.inbound <- m:
		return true
	case <-s.torndown:
		return false
	}
}

// Inbound returns the channel the stream's pump reads from.
func (s *Stream) Inbound() <-chan *protocol.Message {
	return s.inbound
}

// Close unblocks any Push call waiting on this stream's queue. Safe to
// call more than once or concurrently with Push.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.torndown) })
}
