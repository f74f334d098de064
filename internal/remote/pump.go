package remote

import (
	"io"
	"net"
	"time"

	"github.com/sahmadiut/half-tunnel/internal/metrics"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/sahmadiut/half-tunnel/pkg/logger"
)

// sender is the subset of a server connection a pump needs: one
// serialized frame write.
type sender interface {
	Send(m *protocol.Message) error
}

// Pump is the Upstream Pump (spec §4.11): reads from one upstream
// connection and forwards its bytes to the local side as data frames,
// until EOF, an idle timeout, or a read error.
type Pump struct {
	registry *Registry
	log      *logger.Logger
	metrics  *metrics.Collector
	idle     time.Duration
}

// NewPump creates a Pump.
func NewPump(registry *Registry, log *logger.Logger, mcol *metrics.Collector, idleTimeout time.Duration) *Pump {
	return &Pump{registry: registry, log: log, metrics: mcol, idle: idleTimeout}
}

// Run reads up to 16KiB at a time from upstream and writes data frames
// to out, tagged with cid/host/port so the local side (and the remote
// side's own recovery path) can identify the stream. It closes
// upstream, removes the registry entry, and sends a close frame before
// returning.
func (p *Pump) Run(cid string, host string, port uint16, upstream net.Conn, out sender) {
	defer func() {
		_ = upstream.Close()
		p.registry.Remove(cid)
		_ = out.Send(protocol.NewClose(cid))
	}()

	buf := make([]byte, 16*1024)
	for {
		if p.idle > 0 {
			if err := upstream.SetReadDeadline(time.Now().Add(p.idle)); err != nil {
				return
			}
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if sendErr := out.Send(protocol.NewData(cid, payload, host, port)); sendErr != nil {
				p.log.WithCID(cid).Warn().Err(sendErr).Msg("failed forwarding upstream data")
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				p.log.WithCID(cid).Debug().Err(err).Msg("upstream read ended")
			}
			return
		}
	}
}
