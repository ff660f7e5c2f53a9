package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is optional; every method is safe on a nil receiver.
type Metrics struct {
	sessionsActive    prometheus.Gauge
	connectionsActive prometheus.Gauge
	inputs            *prometheus.CounterVec
	flushes           *prometheus.CounterVec
	deletes           *prometheus.CounterVec
	handlerPanics     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const namespace = "coedit"
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of documents with in-memory editing sessions",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open realtime connections",
		}),
		inputs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_total",
			Help:      "Field input events by outcome",
		}, []string{"field", "result"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Debounced field writes to storage by outcome",
		}, []string{"field", "result"}),
		deletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Document delete requests by outcome",
		}, []string{"result"}),
		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked and were recovered",
		}),
	}
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) input(f Field, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "dropped"
	}
	m.inputs.WithLabelValues(string(f), result).Inc()
}

func (m *Metrics) flush(f Field, err error) {
	if m == nil {
		return
	}
	result := "saved"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(string(f), result).Inc()
}

func (m *Metrics) delete(err error) {
	if m == nil {
		return
	}
	result := "deleted"
	if err != nil {
		result = "error"
	}
	m.deletes.WithLabelValues(result).Inc()
}

func (m *Metrics) HandlerPanic(any) {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}
