// Package transport wraps the single WebSocket connection that carries
// the tunnel between the local and remote sides.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sahmadiut/half-tunnel/internal/constants"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
)

// Errors
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// Config holds dial-side transport configuration.
type Config struct {
	URL              string
	TLSConfig        *tls.Config
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	// TCPNoDelay disables Nagle's algorithm for lower latency.
	TCPNoDelay bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(tunnelURL string) *Config {
	return &Config{
		URL:              tunnelURL,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      0, // ReadMessage blocks indefinitely; the receiver and the switcher's drain pass their own timeouts to ReadMessageTimeout
		MaxMessageSize:   1024 * 1024,
		HandshakeTimeout: constants.HandshakeTimeout,
		ReadBufferSize:   constants.DefaultReadBufferSize,
		WriteBufferSize:  constants.DefaultWriteBufferSize,
		TCPNoDelay:       true,
	}
}

// Connection is a WebSocket connection carrying one Message per
// WebSocket message, in the binary encoding of internal/protocol.
type Connection struct {
	conn     *websocket.Conn
	writeTo  time.Duration
	readTo   time.Duration
	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
}

func wrap(conn *websocket.Conn, writeTimeout, readTimeout time.Duration, maxMessageSize int64) *Connection {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Connection{
		conn:     conn,
		writeTo:  writeTimeout,
		readTo:   readTimeout,
		closedCh: make(chan struct{}),
	}
}

// createDialContext applies TCP_NODELAY to dialed connections.
func createDialContext(config *Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: config.HandshakeTimeout, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok && config.TCPNoDelay {
			_ = tcpConn.SetNoDelay(true)
		}
		return conn, nil
	}
}

// Dial opens a fresh tunnel WebSocket to config.URL.
func Dial(ctx context.Context, config *Config) (*Connection, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  config.TLSConfig,
		HandshakeTimeout: config.HandshakeTimeout,
		NetDialContext:   createDialContext(config),
	}
	if config.ReadBufferSize > 0 {
		dialer.ReadBufferSize = config.ReadBufferSize
	}
	if config.WriteBufferSize > 0 {
		dialer.WriteBufferSize = config.WriteBufferSize
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, err
	}

	conn, _, err := dialer.DialContext(ctx, config.URL, http.Header{})
	if err != nil {
		return nil, err
	}

	return wrap(conn, config.WriteTimeout, config.ReadTimeout, config.MaxMessageSize), nil
}

// Upgrader upgrades an incoming HTTP request to a tunnel WebSocket
// connection. Used by the remote side's Tunnel Server (§4.7).
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  constants.DefaultReadBufferSize,
	WriteBufferSize: constants.DefaultWriteBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades r/w into a Connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return wrap(conn, 10*time.Second, 0, 1024*1024), nil
}

// WriteMessage encodes and sends one frame.
func (c *Connection) WriteMessage(m *protocol.Message) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	return c.write(b)
}

func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	if c.writeTo > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTo)); err != nil {
			return err
		}
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ReadMessage blocks for the next frame using the connection's default
// read timeout (zero means block indefinitely).
func (c *Connection) ReadMessage() (*protocol.Message, error) {
	return c.ReadMessageTimeout(c.readTo)
}

// ReadMessageTimeout reads the next frame, overriding the read deadline
// for this call only. A zero timeout blocks indefinitely. Used by the
// Transport Switcher (§4.5) to drain the old tunnel with a short,
// bounded per-read timeout.
func (c *Connection) ReadMessageTimeout(timeout time.Duration) (*protocol.Message, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.BinaryMessage {
		return nil, errors.New("expected binary message")
	}

	return protocol.Unmarshal(data)
}

// Close closes the connection gracefully.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)

	return c.conn.Close()
}

// IsClosed returns true if the connection is closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClosedChan returns a channel that is closed when the connection closes.
func (c *Connection) ClosedChan() <-chan struct{} {
	return c.closedCh
}

// RemoteAddr returns the remote address of the underlying TCP connection.
func (c *Connection) RemoteAddr() string {
	if c == nil || c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// IsTimeout reports whether err is a network timeout (used by the tunnel
// receiver to tell an expired poll deadline from a real transport error).
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
