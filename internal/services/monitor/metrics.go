package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
)

// Metrics of the connection manager. Collectors are registered only when a
// Registerer is given, so tests can build as many managers as they like.
type Metrics struct {
	ConnectionState     prometheus.Gauge
	StreamOpens         prometheus.Counter
	StreamErrors        prometheus.Counter
	ReconnectsScheduled prometheus.Counter
	DecodeErrors        prometheus.Counter
	Snapshots           prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pumpwatch",
			Name:      "connection_state",
			Help:      "Device stream state (0=disconnected, 1=connecting, 2=connected).",
		}),
		StreamOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "stream_opens_total",
			Help:      "Event stream connection attempts.",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "stream_errors_total",
			Help:      "Errors reported by the active event stream.",
		}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnection attempts scheduled after a stream error.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "decode_errors_total",
			Help:      "Update messages discarded because the payload could not be decoded.",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpwatch",
			Name:      "snapshots_total",
			Help:      "Telemetry snapshots decoded from the stream.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ConnectionState, m.StreamOpens, m.StreamErrors,
			m.ReconnectsScheduled, m.DecodeErrors, m.Snapshots)
	}
	return m
}

func (m *Metrics) setState(s model.ConnectionState) {
	m.ConnectionState.Set(float64(s))
}
