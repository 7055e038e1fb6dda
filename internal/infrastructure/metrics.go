package infrastructure

import (
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsProvider bundles the OpenTelemetry meter provider with the
// Prometheus registry the /metrics endpoint serves from.
type MetricsProvider struct {
	MeterProvider *sdkmetric.MeterProvider
	Registry      *promclient.Registry
}

// InitializeMetrics sets up an OTel meter provider backed by a Prometheus
// exporter and installs it as the global provider.
func InitializeMetrics(serviceName, version string) (*MetricsProvider, error) {
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{
		MeterProvider: provider,
		Registry:      registry,
	}, nil
}
