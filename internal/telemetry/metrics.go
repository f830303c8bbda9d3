package telemetry

import (
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics bundles the request-level instruments recorded by the router
// middleware and exposed at /metrics via the Prometheus exporter.
type Metrics struct {
	Requests        metric.Int64Counter
	ErrorCount      metric.Int64Counter
	RequestDuration metric.Float64Histogram

	registry *promclient.Registry
	provider *sdkmetric.MeterProvider
}

// NewMetrics wires an OpenTelemetry meter to a dedicated Prometheus
// registry.
func NewMetrics() (*Metrics, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("toolsets")

	requests, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, err
	}
	errorCount, err := meter.Int64Counter("http_request_errors_total",
		metric.WithDescription("Total number of HTTP requests that returned 4xx or 5xx"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Requests:        requests,
		ErrorCount:      errorCount,
		RequestDuration: duration,
		registry:        registry,
		provider:        provider,
	}, nil
}

// PrometheusHandler serves the scrape endpoint.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
