package local

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tnlerrors "github.com/sahmadiut/half-tunnel/internal/errors"
	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/sahmadiut/half-tunnel/internal/retry"
	"github.com/sahmadiut/half-tunnel/internal/transport"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// receiverPollTimeout bounds each read attempt of the persistent tunnel
// receiver loop. Reading with a short deadline instead of blocking
// indefinitely lets the receiver periodically release recvMu so the
// Transport Switcher can always acquire it within a bounded time, even
// while the link is idle — see SPEC_FULL.md's Open Question 4 on this adaptation of
// spec §4.4/§4.5's "hold recv_lock while reading" wording.
const receiverPollTimeout = 2 * time.Second

// Tunnel owns the local side's transport state (spec §3 "Transport
// state (local)"): the current WebSocket, the send/recv mutual
// exclusion, and the connected flag.
type Tunnel struct {
	url    string
	dialer func(ctx context.Context) (*transport.Connection, error)

	current atomic.Pointer[transport.Connection]
	swapMu  sync.Mutex // guards replacing `current`
	sendMu  sync.Mutex // serializes one Send() call (incl. its single retry)
	recvMu  sync.Mutex // serializes reads on `current` against the switcher's drain

	connected atomic.Bool

	reconnectBackoff time.Duration
	switchInterval   time.Duration
	drainTimeout     time.Duration

	log     *logger.Logger
	metrics *metrics.Collector

	// dispatch handles one inbound frame: registry lookup + push to the
	// stream's inbound queue (spec §4.4). Shared by the receiver loop
	// and the switcher's drain step.
	dispatch func(*protocol.Message)

	// backoff paces the receiver loop's retry after a transport error.
	// The delay is jittered by 20% but capped at ReconnectBackoff, so it
	// falls between 80% and 100% of that value (400-500ms by default).
	backoff *retry.Retryer
}

// Config configures a Tunnel.
type Config struct {
	URL              string
	DialConfig       *transport.Config
	ReconnectBackoff time.Duration
	SwitchInterval   time.Duration
	DrainTimeout     time.Duration
}

// NewTunnel creates a Tunnel with no connection established yet
// (lazily dialed on first Send or by the switcher, per spec §3).
func NewTunnel(cfg Config, log *logger.Logger, mcol *metrics.Collector, dispatch func(*protocol.Message)) *Tunnel {
	t := &Tunnel{
		url:              cfg.URL,
		reconnectBackoff: cfg.ReconnectBackoff,
		switchInterval:   cfg.SwitchInterval,
		drainTimeout:     cfg.DrainTimeout,
		log:              log,
		metrics:          mcol,
		dispatch:         dispatch,
		backoff: retry.New(&retry.Config{
			InitialDelay: cfg.ReconnectBackoff,
			MaxDelay:     cfg.ReconnectBackoff,
			Multiplier:   1,
			Jitter:       0.2,
		}),
	}
	t.dialer = func(ctx context.Context) (*transport.Connection, error) {
		return transport.Dial(ctx, cfg.DialConfig)
	}
	return t
}

// Connected reports whether the tunnel currently believes it has a
// working transport.
func (t *Tunnel) Connected() bool {
	return t.connected.Load()
}

// Send serializes and writes one frame (spec §4.3). If no tunnel is
// open or the write fails, it attempts a single eager reconnect and
// retries the write once; two consecutive failures are returned to the
// caller, who tears down the originating stream.
func (t *Tunnel) Send(m *protocol.Message) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if conn := t.current.Load(); conn != nil {
		if err := conn.WriteMessage(m); err == nil {
			t.connected.Store(true)
			t.metrics.RecordFrameSent(m.Cmd.String(), len(m.Data))
			return nil
		}
		t.connected.Store(false)
	}

	newConn, err := t.reconnect()
	if err != nil {
		return tnlerrors.Wrap("tunnel.send", tnlerrors.ErrTunnelUnavailable, err)
	}

	if err := newConn.WriteMessage(m); err != nil {
		t.connected.Store(false)
		return tnlerrors.Wrap("tunnel.send.retry", tnlerrors.ErrTunnelUnavailable, err)
	}

	t.connected.Store(true)
	t.metrics.RecordFrameSent(m.Cmd.String(), len(m.Data))
	return nil
}

// reconnect dials a fresh connection and swaps it in atomically,
// closing whatever was previously current.
func (t *Tunnel) reconnect() (*transport.Connection, error) {
	newConn, err := t.dialer(context.Background())
	if err != nil {
		t.metrics.RecordReconnectAttempt(false)
		return nil, err
	}
	t.metrics.RecordReconnectAttempt(true)

	t.swapMu.Lock()
	old := t.current.Swap(newConn)
	t.swapMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return newConn, nil
}

// RunReceiver is the single long-running Tunnel Receiver task (spec
// §4.4). It blocks until ctx is cancelled.
func (t *Tunnel) RunReceiver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn := t.current.Load()
		if conn == nil {
			time.Sleep(t.backoff.NextDelay())
			continue
		}

		t.recvMu.Lock()
		m, err := conn.ReadMessageTimeout(receiverPollTimeout)
		t.recvMu.Unlock()

		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			t.connected.Store(false)
			t.metrics.SetTunnelConnected(false)
			t.log.Warn().Err(err).Msg("tunnel receive failed, backing off")
			time.Sleep(t.backoff.NextDelay())
			continue
		}

		t.backoff.Reset()
		t.connected.Store(true)
		t.metrics.SetTunnelConnected(true)
		t.metrics.RecordFrameReceived(m.Cmd.String(), len(m.Data))
		t.dispatch(m)
	}
}

// RunSwitcher is the Transport Switcher task (spec §4.5). It blocks
// until ctx is cancelled.
func (t *Tunnel) RunSwitcher(ctx context.Context) {
	ticker := time.NewTicker(t.switchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.trySwitch(ctx)
		}
	}
}

func (t *Tunnel) trySwitch(ctx context.Context) {
	if !t.connected.Load() {
		return
	}

	newConn, err := t.dialer(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("switch: dial failed, abandoning this cycle")
		return
	}

	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if err := newConn.WriteMessage(protocol.NewSwitch()); err != nil {
		t.log.Warn().Err(err).Msg("switch: failed writing switch frame, abandoning this cycle")
		_ = newConn.Close()
		return
	}

	old := t.current.Load()
	drained := t.drain(old)

	if old != nil {
		_ = old.Close()
	}

	t.swapMu.Lock()
	t.current.Store(newConn)
	t.swapMu.Unlock()

	t.connected.Store(true)
	t.metrics.RecordSwitch(drained)
	t.log.Info().Int("drained_frames", drained).Msg("tunnel switched")
}

// drain repeatedly reads from old with a short bounded timeout,
// dispatching each frame exactly as the receiver would, until the
// first timeout (spec §4.5 step 4).
func (t *Tunnel) drain(old *transport.Connection) int {
	if old == nil {
		return 0
	}

	count := 0
	for {
		m, err := old.ReadMessageTimeout(t.drainTimeout)
		if err != nil {
			return count
		}
		t.metrics.RecordFrameReceived(m.Cmd.String(), len(m.Data))
		t.dispatch(m)
		count++
	}
}
