package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tracking"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions        *prometheus.CounterVec
	evaluationErrors   prometheus.Counter
	evaluationDuration prometheus.Histogram
	alertsEmitted      *prometheus.CounterVec
	deliveryFailures   prometheus.Counter
	samplesIngested    *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_transitions_total",
			Help:      "Geofence transitions detected, by direction.",
		}, []string{"type"}),
		evaluationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_evaluation_errors_total",
			Help:      "Geofences skipped because they could not be evaluated.",
		}),
		evaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geofence_evaluation_duration_seconds",
			Help:      "Time spent evaluating one location sample against its organization's geofences.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		alertsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alerts created, by alert type.",
		}, []string{"type"}),
		deliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_delivery_failures_total",
			Help:      "Alerts that failed to persist or notify.",
		}),
		samplesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_samples_total",
			Help:      "Location samples received, by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTransition(transitionType string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transitionType).Inc()
}

func (m *Metrics) ObserveEvaluationError() {
	if m == nil {
		return
	}
	m.evaluationErrors.Inc()
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveAlert(alertType string) {
	if m == nil {
		return
	}
	m.alertsEmitted.WithLabelValues(alertType).Inc()
}

func (m *Metrics) ObserveDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) ObserveSample(outcome string) {
	if m == nil {
		return
	}
	m.samplesIngested.WithLabelValues(outcome).Inc()
}
