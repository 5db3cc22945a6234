// Package metrics exports rawsocket connection metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zereker/rawsocket"
)

// Collector implements rawsocket.Metrics with Prometheus collectors.
type Collector struct {
	registry *prometheus.Registry

	connsOpen   *prometheus.GaugeVec
	connsClosed *prometheus.CounterVec
	frames      *prometheus.CounterVec
	frameBytes  *prometheus.HistogramVec
}

var _ rawsocket.Metrics = (*Collector)(nil)

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "rawsocket",
				Subsystem: "connections",
				Name:      "open",
				Help:      "Connections with a bound session.",
			},
			[]string{"role"},
		),
		connsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rawsocket",
				Subsystem: "connections",
				Name:      "closed_total",
				Help:      "Closed connections by outcome.",
			},
			[]string{"role", "clean"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rawsocket",
				Subsystem: "frames",
				Name:      "total",
				Help:      "Frames transferred.",
			},
			[]string{"role", "direction"},
		),
		frameBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rawsocket",
				Subsystem: "frames",
				Name:      "payload_bytes",
				Help:      "Frame payload size in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
			[]string{"role", "direction"},
		),
	}

	c.registry.MustRegister(c.connsOpen, c.connsClosed, c.frames, c.frameBytes)
	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ConnOpened(role rawsocket.Role) {
	c.connsOpen.WithLabelValues(role.String()).Inc()
}

func (c *Collector) ConnClosed(role rawsocket.Role, clean bool) {
	c.connsOpen.WithLabelValues(role.String()).Dec()
	c.connsClosed.WithLabelValues(role.String(), strconv.FormatBool(clean)).Inc()
}

func (c *Collector) FrameReceived(role rawsocket.Role, size int) {
	c.observe(role, "rx", size)
}

func (c *Collector) FrameSent(role rawsocket.Role, size int) {
	c.observe(role, "tx", size)
}

func (c *Collector) observe(role rawsocket.Role, direction string, size int) {
	c.frames.WithLabelValues(role.String(), direction).Inc()
	c.frameBytes.WithLabelValues(role.String(), direction).Observe(float64(size))
}
