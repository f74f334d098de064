package remote

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dialer opens upstream TCP connections on behalf of connect and
// recovered data frames (spec §4.8/§4.9). It uses the system resolver;
// no custom DNS handling is in scope.
type Dialer struct {
	timeout time.Duration
}

// NewDialer creates a Dialer with the given per-dial timeout.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{timeout: timeout}
}

// Dial connects to host:port, bounded by the dialer's timeout.
func (d *Dialer) Dial(ctx context.Context, host string, port uint16) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}
