package metricsservice

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	MQTTClients atomic.Int64

	outcomes        *prometheus.CounterVec
	detectLatency   prometheus.Histogram
	sideEffectFails *prometheus.CounterVec
	mqttMessages    *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sssai_trigger_outcomes_total",
			Help: "Trigger events handled, by camera and outcome",
		}, []string{"camera", "outcome"}),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sssai_detection_seconds",
			Help:    "Object detection round trip time",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sssai_side_effect_failures_total",
			Help: "Failed webhook, capture or notification calls",
		}, []string{"effect"}),
		mqttMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sssai_mqtt_messages_total",
			Help: "Messages published through the embedded broker, by topic",
		}, []string{"topic"}),
	}

	m.registry.MustRegister(m.outcomes, m.detectLatency, m.sideEffectFails, m.mqttMessages)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sssai_mqtt_clients",
			Help: "Clients connected to the embedded broker",
		},
		func() float64 { return float64(m.MQTTClients.Load()) },
	))
	return m
}

func (m *Metrics) Outcome(camera, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(camera, outcome).Inc()
}

func (m *Metrics) DetectionLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.detectLatency.Observe(d.Seconds())
}

func (m *Metrics) SideEffectFailed(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFails.WithLabelValues(effect).Inc()
}

func (m *Metrics) MQTTMessage(topic string) {
	if m == nil {
		return
	}
	m.mqttMessages.WithLabelValues(topic).Inc()
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.MQTTClients.Add(1)
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.MQTTClients.Add(-1)
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
