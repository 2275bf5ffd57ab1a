// Package metrics holds the Prometheus instruments of the playback pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchDuration tracks chunk and size fetches per transport and outcome.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ripple_fetch_duration_seconds",
		Help:    "Duration of transport requests",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"transport", "op", "result"})

	// FetchRetries counts retried transport attempts.
	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_fetch_retries_total",
		Help: "Transport attempts that were retried",
	}, []string{"transport"})

	// BytesFetched counts payload bytes delivered to the player.
	BytesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_bytes_fetched_total",
		Help: "Bytes received from the media source",
	})

	// StaleDropped counts responses and units discarded as stale.
	StaleDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_stale_dropped_total",
		Help: "Chunk responses or decoded units discarded as stale",
	}, []string{"kind"})

	// UnitsReleased counts units handed to the sinks.
	UnitsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_units_released_total",
		Help: "Decoded units released to the audio or video sink",
	}, []string{"kind"})

	// BufferOccupancy is the frame buffer fill level in its configured unit.
	BufferOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_buffer_occupancy",
		Help: "Frame buffer occupancy (seconds or units)",
	})

	// Sessions counts ended sessions by outcome.
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_sessions_total",
		Help: "Playback sessions by outcome",
	}, []string{"outcome"})

	// ServedBytes counts bytes sent by the companion server.
	ServedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_served_bytes_total",
		Help: "Bytes served by the companion file server",
	}, []string{"endpoint"})

	// SocketConnections is the number of open companion websocket connections.
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_socket_connections",
		Help: "Open websocket connections on the companion server",
	})
)

// ObserveFetch records one transport request.
func ObserveFetch(transport, op string, status int, err error, d time.Duration) {
	result := "ok"
	switch {
	case err != nil && status > 0:
		result = strconv.Itoa(status)
	case err != nil:
		result = "error"
	}
	FetchDuration.WithLabelValues(transport, op, result).Observe(d.Seconds())
}

// IncRetry records a retried attempt.
func IncRetry(transport string) {
	FetchRetries.WithLabelValues(transport).Inc()
}

// IncStale records a discarded stale message.
func IncStale(kind string) {
	StaleDropped.WithLabelValues(kind).Inc()
}

// IncReleased records a unit handed to a sink.
func IncReleased(kind string) {
	UnitsReleased.WithLabelValues(kind).Inc()
}

// IncSession records a session end.
func IncSession(outcome string) {
	Sessions.WithLabelValues(outcome).Inc()
}
