package netkit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "netkit"

// metrics holds the Prometheus collectors of one engine. Connections share
// their owner's collectors.
type metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	connectionsActive   prometheus.Gauge
	handshakeFailures   prometheus.Counter
	messagesReceived    prometheus.Counter
	messagesSent        prometheus.Counter
	bytesReceived       prometheus.Counter
	bytesSent           prometheus.Counter
}

// newMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered but still usable.
func newMetrics(reg prometheus.Registerer, subsystem string) *metrics {
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &metrics{
		connectionsAccepted: counter("connections_accepted_total", "Connections approved by the connect hook."),
		connectionsRejected: counter("connections_rejected_total", "Connections vetoed by the connect hook."),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Validated connections currently tracked.",
		}),
		handshakeFailures: counter("handshake_failures_total", "Connections dropped for a wrong handshake response."),
		messagesReceived:  counter("messages_received_total", "Frames read from peers."),
		messagesSent:      counter("messages_sent_total", "Frames written to peers."),
		bytesReceived:     counter("bytes_received_total", "Header and body bytes read from peers."),
		bytesSent:         counter("bytes_sent_total", "Header and body bytes written to peers."),
	}
}
