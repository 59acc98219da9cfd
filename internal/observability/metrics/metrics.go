package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// Observer captures telemetry for client calls and push events.
type Observer interface {
	ObserveCall(transport, operation string, duration time.Duration, err error)
	ObservePush(event string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveCall(string, string, time.Duration, error) {}
func (Nop) ObservePush(string)                                {}

// PrometheusObserver exports client metrics to Prometheus.
type PrometheusObserver struct {
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
	pushEvents   *prometheus.CounterVec
}

// NewPrometheusObserver registers the client collectors on reg. When the
// collectors are already registered (several clients sharing a registry) the
// existing ones are reused.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "unifiedmcp_client"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Latency of client calls by transport and operation.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"transport", "operation"})
	callErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_errors_total",
		Help:      "Count of failed client calls by transport, operation and error code.",
	}, []string{"transport", "operation", "code"})
	pushEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_events_total",
		Help:      "Count of server-pushed events received.",
	}, []string{"event"})

	var err error
	if callDuration, err = register(reg, callDuration); err != nil {
		return nil, err
	}
	if callErrors, err = register(reg, callErrors); err != nil {
		return nil, err
	}
	if pushEvents, err = register(reg, pushEvents); err != nil {
		return nil, err
	}
	return &PrometheusObserver{callDuration: callDuration, callErrors: callErrors, pushEvents: pushEvents}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register client metric: %w", err)
	}
	return collector, nil
}

// ObserveCall records the latency of one call and counts it when it failed.
func (o *PrometheusObserver) ObserveCall(transport, operation string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.callDuration.WithLabelValues(transport, operation).Observe(duration.Seconds())
	if err != nil {
		o.callErrors.WithLabelValues(transport, operation, string(xerrors.CodeOf(err))).Inc()
	}
}

// ObservePush counts a server-pushed event.
func (o *PrometheusObserver) ObservePush(event string) {
	if o == nil {
		return
	}
	o.pushEvents.WithLabelValues(event).Inc()
}
