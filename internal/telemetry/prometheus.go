package telemetry

import "github.com/prometheus/client_golang/prometheus"

const huddleNamespace string = "huddle"

var (
	promConnectionsTotal prometheus.Gauge

	// GateWaiters counts callers queued for a transcription slot.
	GateWaiters          prometheus.Gauge
	SignalEventCounter   *prometheus.CounterVec
	TranscriptionCounter *prometheus.CounterVec
)

func init() {
	promConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: huddleNamespace,
		Subsystem: "signaling",
		Name:      "connections",
	})

	GateWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: huddleNamespace,
		Subsystem: "captions",
		Name:      "gate_waiters",
	})

	SignalEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: huddleNamespace,
			Subsystem: "signaling",
			Name:      "events_total",
		},
		[]string{"event"},
	)

	TranscriptionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: huddleNamespace,
			Subsystem: "captions",
			Name:      "transcriptions_total",
		},
		[]string{"status", "error_type"},
	)

	prometheus.MustRegister(promConnectionsTotal)
	prometheus.MustRegister(GateWaiters)
	prometheus.MustRegister(SignalEventCounter)
	prometheus.MustRegister(TranscriptionCounter)
}

func ConnectionOpened() {
	promConnectionsTotal.Inc()
}

func ConnectionClosed() {
	promConnectionsTotal.Dec()
}

func GateWaiterAdded() {
	GateWaiters.Inc()
}

func GateWaiterRemoved() {
	GateWaiters.Dec()
}
