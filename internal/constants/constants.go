// Package constants provides shared constants for the tunnel system.
package constants

import "time"

// Buffer and frame sizing.
const (
	// MaxFramePayload is the maximum payload carried by a single data frame.
	MaxFramePayload = 16 * 1024 // 16 KiB

	// StreamQueueDepth is the depth of a stream's inbound frame queue.
	StreamQueueDepth = 64

	// DefaultReadBufferSize/WriteBufferSize size the WebSocket's I/O buffers.
	DefaultReadBufferSize  = 32 * 1024
	DefaultWriteBufferSize = 32 * 1024
)

// Timing.
const (
	// SwitchInterval is how often the local side opens a fresh tunnel.
	SwitchInterval = 8 * time.Second

	// DrainReadTimeout bounds each read while draining the outgoing tunnel.
	DrainReadTimeout = 50 * time.Millisecond

	// ReconnectBackoff is the pause after a failed tunnel recv before retrying.
	ReconnectBackoff = 500 * time.Millisecond

	// UpstreamIdleTimeout closes an upstream pump after this much silence.
	UpstreamIdleTimeout = 60 * time.Second

	// DialTimeout bounds the remote side's upstream TCP dial.
	DialTimeout = 10 * time.Second

	// HandshakeTimeout bounds the WebSocket handshake on dial.
	HandshakeTimeout = 10 * time.Second
)

// Default network endpoints.
const (
	DefaultSOCKS5Addr    = ":3810"
	DefaultTunnelAddr    = ":3811"
	DefaultLocalMetrics  = ":9400"
	DefaultRemoteMetrics = ":9401"
)
