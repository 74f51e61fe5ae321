package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/online"
)

// Metrics lobby gateway metrics. It implements lobby.Observer and
// online.CallObserver.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge

	// WebSocket
	WSConnectionsTotal  *prometheus.CounterVec
	WSActiveConnections prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// session lifecycle
	OperationsIssued    *prometheus.CounterVec
	OperationsCompleted *prometheus.CounterVec
	Connecting          prometheus.Gauge
	NotificationsTotal  *prometheus.CounterVec

	// registry
	RegistryCallsTotal   *prometheus.CounterVec
	RegistryCallDuration *prometheus.HistogramVec
	RegistryGuardState   prometheus.Gauge
	Advertisements       prometheus.Gauge

	// system
	PanicsTotal prometheus.Counter
	GoRoutines  prometheus.Gauge
}

// NewMetrics registers the gateway metrics with reg
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
		),

		WSConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "websocket_connections_total",
				Help:      "Total number of WebSocket connections",
			},
			[]string{"status"}, // connected/disconnected
		),
		WSActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "websocket_active_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "websocket_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"type", "direction"}, // sent/received
		),

		OperationsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "session_operations_issued_total",
				Help:      "Session operations issued to the backend",
			},
			[]string{"op"},
		),
		OperationsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "session_operations_completed_total",
				Help:      "Session operation completions by outcome",
			},
			[]string{"op", "result"},
		),
		Connecting: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "session_connecting",
				Help:      "1 while a join is in flight",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "session_notifications_total",
				Help:      "Connection notifications emitted",
			},
			[]string{"event"},
		),

		RegistryCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_calls_total",
				Help:      "Registry round trips by outcome",
			},
			[]string{"op", "result"},
		),
		RegistryCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_call_duration_seconds",
				Help:      "Registry round trip latency distributions",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		RegistryGuardState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_circuit_state",
				Help:      "Registry circuit state (0=closed, 1=half-open, 2=open)",
			},
		),
		Advertisements: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_advertisements",
				Help:      "Advertised sessions in the registry",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "panics_total",
				Help:      "Recovered panics",
			},
		),
		GoRoutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Number of goroutines",
			},
		),
	}
}

// OperationIssued implements lobby.Observer
func (m *Metrics) OperationIssued(op lobby.Operation) {
	m.OperationsIssued.WithLabelValues(op.String()).Inc()
}

// OperationCompleted implements lobby.Observer
func (m *Metrics) OperationCompleted(op lobby.Operation, success bool) {
	m.OperationsCompleted.WithLabelValues(op.String(), resultLabel(success)).Inc()
}

// ConnectingChanged implements lobby.Observer
func (m *Metrics) ConnectingChanged(connecting bool) {
	if connecting {
		m.Connecting.Set(1)
		return
	}
	m.Connecting.Set(0)
}

// ObserveRegistryCall implements online.CallObserver
func (m *Metrics) ObserveRegistryCall(op string, duration time.Duration, err error) {
	m.RegistryCallsTotal.WithLabelValues(op, resultLabel(err == nil)).Inc()
	m.RegistryCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetGuardState records the registry circuit state
func (m *Metrics) SetGuardState(state online.GuardState) {
	m.RegistryGuardState.Set(float64(state))
}

// RecordNotification counts a connection notification
func (m *Metrics) RecordNotification(event string) {
	m.NotificationsTotal.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records a finished HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWSConnection records a websocket connect or disconnect
func (m *Metrics) RecordWSConnection(connected bool) {
	if connected {
		m.WSConnectionsTotal.WithLabelValues("connected").Inc()
		m.WSActiveConnections.Inc()
		return
	}
	m.WSConnectionsTotal.WithLabelValues("disconnected").Inc()
	m.WSActiveConnections.Dec()
}

// RecordWSMessage counts a websocket message
func (m *Metrics) RecordWSMessage(msgType, direction string) {
	m.WSMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// RecordPanic counts a recovered panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
