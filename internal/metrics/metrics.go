// Package metrics provides Prometheus metrics for lansync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lansync"

// Metrics contains all Prometheus metrics for an agent.
type Metrics struct {
	FramesEncoded *prometheus.CounterVec
	FramesDecoded *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
	BytesReceived *prometheus.CounterVec

	HandshakesStarted prometheus.Counter
	HandshakesSecured prometheus.Counter
	HandshakeErrors   *prometheus.CounterVec
	HandshakeLatency  prometheus.Histogram

	FilesTransferred prometheus.Counter
	FilesDeleted     prometheus.Counter
	SyncDuration     prometheus.Histogram
	SyncErrors       *prometheus.CounterVec

	EngineState prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered against
// reg, so tests and multiple in-process agents can avoid collisions on the
// global default registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesEncoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_encoded_total",
			Help:      "Total wire frames encoded, by message type",
		}, []string{"msg_type"}),
		FramesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Total wire frames decoded, by message type",
		}, []string{"msg_type"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent on the wire, by direction",
		}, []string{"direction"}),
		BytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes received on the wire, by direction",
		}, []string{"direction"}),

		HandshakesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_started_total",
			Help:      "Total handshakes initiated or accepted",
		}),
		HandshakesSecured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_secured_total",
			Help:      "Total handshakes that reached SessionSecured",
		}),
		HandshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_errors_total",
			Help:      "Total handshake failures by cause",
		}, []string{"error_type"}),
		HandshakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_latency_seconds",
			Help:      "Time from TCP connect to SessionSecured",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		FilesTransferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_transferred_total",
			Help:      "Total files completed by the download pump",
		}),
		FilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_deleted_total",
			Help:      "Total local files removed by a sync pull",
		}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of a full Sync call from RequestTree to completion",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		}),
		SyncErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Total sync failures by cause",
		}, []string{"error_type"}),

		EngineState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "Current engine state as its ordinal value",
		}),
	}
}

// RecordFrameEncoded records an outbound frame.
func (m *Metrics) RecordFrameEncoded(msgType string, n int) {
	m.FramesEncoded.WithLabelValues(msgType).Inc()
	m.BytesSent.WithLabelValues("application").Add(float64(n))
}

// RecordFrameDecoded records an inbound frame.
func (m *Metrics) RecordFrameDecoded(msgType string, n int) {
	m.FramesDecoded.WithLabelValues(msgType).Inc()
	m.BytesReceived.WithLabelValues("application").Add(float64(n))
}

// RecordHandshakeSecured records a successful handshake and its latency.
func (m *Metrics) RecordHandshakeSecured(latencySeconds float64) {
	m.HandshakesSecured.Inc()
	m.HandshakeLatency.Observe(latencySeconds)
}

// RecordHandshakeError records a handshake failure by cause.
func (m *Metrics) RecordHandshakeError(errorType string) {
	m.HandshakeErrors.WithLabelValues(errorType).Inc()
}

// RecordSyncComplete records a finished sync pull and its duration.
func (m *Metrics) RecordSyncComplete(durationSeconds float64) {
	m.SyncDuration.Observe(durationSeconds)
}

// RecordSyncError records a sync failure by cause.
func (m *Metrics) RecordSyncError(errorType string) {
	m.SyncErrors.WithLabelValues(errorType).Inc()
}

// SetEngineState records the engine's current state as a gauge.
func (m *Metrics) SetEngineState(ordinal int) {
	m.EngineState.Set(float64(ordinal))
}
