// Package metrics provides Prometheus metrics for the tunnel system.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the Prometheus namespace for tunnel metrics.
const Namespace = "tunnel"

// Collector holds all Prometheus metrics for the tunnel system, scoped
// to the events named in SPEC_FULL.md §4.12.
type Collector struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec
	BytesReceived  *prometheus.CounterVec

	StreamsOpened prometheus.Counter
	StreamsClosed prometheus.Counter
	ActiveStreams prometheus.Gauge

	TunnelConnected   prometheus.Gauge
	TunnelSwitches    prometheus.Counter
	SwitchDrainFrames prometheus.Histogram

	ReconnectAttempts prometheus.Counter
	ReconnectSuccess  prometheus.Counter
	ReconnectFailure  prometheus.Counter

	UpstreamDialFailures prometheus.Counter
}

// NewCollector creates a new metrics collector with all metrics registered.
func NewCollector() *Collector {
	return &Collector{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "frames_sent_total",
				Help:      "Total number of frames sent, by command",
			},
			[]string{"cmd"},
		),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "frames_received_total",
				Help:      "Total number of frames received, by command",
			},
			[]string{"cmd"},
		),
		BytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "bytes_sent_total",
				Help:      "Total payload bytes sent in data frames",
			},
			[]string{"cmd"},
		),
		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "bytes_received_total",
				Help:      "Total payload bytes received in data frames",
			},
			[]string{"cmd"},
		),
		StreamsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "streams_opened_total",
				Help:      "Total number of streams opened",
			},
		),
		StreamsClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "streams_closed_total",
				Help:      "Total number of streams closed",
			},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "active_streams",
				Help:      "Number of currently active streams",
			},
		),
		TunnelConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "tunnel_connected",
				Help:      "1 if the current tunnel is connected, 0 otherwise",
			},
		),
		TunnelSwitches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tunnel_switches_total",
				Help:      "Total number of transport switches performed",
			},
		),
		SwitchDrainFrames: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "switch_drain_frames",
				Help:      "Number of frames drained from the old tunnel during a switch",
				Buckets:   prometheus.LinearBuckets(0, 1, 10),
			},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reconnect_attempts_total",
				Help:      "Total number of eager reconnect attempts",
			},
		),
		ReconnectSuccess: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reconnect_success_total",
				Help:      "Total number of successful eager reconnects",
			},
		),
		ReconnectFailure: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reconnect_failure_total",
				Help:      "Total number of failed eager reconnects",
			},
		),
		UpstreamDialFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "upstream_dial_failures_total",
				Help:      "Total number of failed upstream dials on the remote side",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (c *Collector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.FramesSent,
		c.FramesReceived,
		c.BytesSent,
		c.BytesReceived,
		c.StreamsOpened,
		c.StreamsClosed,
		c.ActiveStreams,
		c.TunnelConnected,
		c.TunnelSwitches,
		c.SwitchDrainFrames,
		c.ReconnectAttempts,
		c.ReconnectSuccess,
		c.ReconnectFailure,
		c.UpstreamDialFailures,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// MustRegister registers all metrics and panics on error.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	if err := c.Register(reg); err != nil {
		panic(err)
	}
}

// RecordFrameSent records an outbound frame.
func (c *Collector) RecordFrameSent(cmd string, payloadBytes int) {
	c.FramesSent.WithLabelValues(cmd).Inc()
	if payloadBytes > 0 {
		c.BytesSent.WithLabelValues(cmd).Add(float64(payloadBytes))
	}
}

// RecordFrameReceived records an inbound frame.
func (c *Collector) RecordFrameReceived(cmd string, payloadBytes int) {
	c.FramesReceived.WithLabelValues(cmd).Inc()
	if payloadBytes > 0 {
		c.BytesReceived.WithLabelValues(cmd).Add(float64(payloadBytes))
	}
}

// RecordStreamOpened records a stream creation.
func (c *Collector) RecordStreamOpened() {
	c.StreamsOpened.Inc()
	c.ActiveStreams.Inc()
}

// RecordStreamClosed records a stream teardown.
func (c *Collector) RecordStreamClosed() {
	c.StreamsClosed.Inc()
	c.ActiveStreams.Dec()
}

// SetTunnelConnected sets the tunnel connectivity gauge.
func (c *Collector) SetTunnelConnected(connected bool) {
	if connected {
		c.TunnelConnected.Set(1)
		return
	}
	c.TunnelConnected.Set(0)
}

// RecordSwitch records a completed transport switch and how many
// frames were drained from the retiring tunnel.
func (c *Collector) RecordSwitch(drainedFrames int) {
	c.TunnelSwitches.Inc()
	c.SwitchDrainFrames.Observe(float64(drainedFrames))
}

// RecordReconnectAttempt records an eager reconnect attempt and its outcome.
func (c *Collector) RecordReconnectAttempt(success bool) {
	c.ReconnectAttempts.Inc()
	if success {
		c.ReconnectSuccess.Inc()
	} else {
		c.ReconnectFailure.Inc()
	}
}

// RecordUpstreamDialFailure records a failed upstream dial.
func (c *Collector) RecordUpstreamDialFailure() {
	c.UpstreamDialFailures.Inc()
}

// Server is an HTTP server that exposes Prometheus metrics.
type Server struct {
	server    *http.Server
	collector *Collector
	registry  *prometheus.Registry
	addr      string
}

// NewServer creates a new metrics server serving collector's metrics at addr.
func NewServer(addr string, collector *Collector) *Server {
	registry := prometheus.NewRegistry()
	collector.MustRegister(registry)
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		collector: collector,
		registry:  registry,
		addr:      addr,
	}
}

// Collector returns the metrics collector.
func (s *Server) Collector() *Collector {
	return s.collector
}

// Start starts the metrics server. Returns http.ErrServerClosed on
// graceful shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
