// Package telemetry exposes Prometheus metrics for the HTTP API and the models.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speakpaint"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	inferenceLatency  *prometheus.HistogramVec
	inferenceFailures *prometheus.CounterVec
	imagesGenerated   prometheus.Counter
	modelsReady       prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"method", "route", "status"},
		),
		inferenceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Duration of model inference calls in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service"},
		),
		inferenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inference_errors_total",
				Help:      "Total number of failed inference calls.",
			},
			[]string{"service"},
		),
		imagesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_generated_total",
			Help:      "Total number of images written to the generated folder.",
		}),
		modelsReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_ready",
			Help:      "1 when every model is loaded and serving, 0 otherwise.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.inferenceLatency,
		m.inferenceFailures,
		m.imagesGenerated,
		m.modelsReady,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m, nil
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordInference records one inference call on a service.
func (m *Metrics) RecordInference(service string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.inferenceLatency.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		m.inferenceFailures.WithLabelValues(service).Inc()
	}
}

// RecordImageGenerated counts a stored image.
func (m *Metrics) RecordImageGenerated() {
	if m == nil {
		return
	}
	m.imagesGenerated.Inc()
}

// SetModelsReady sets the readiness gauge.
func (m *Metrics) SetModelsReady(ready bool) {
	if m == nil {
		return
	}

	if ready {
		m.modelsReady.Set(1)
	} else {
		m.modelsReady.Set(0)
	}
}
