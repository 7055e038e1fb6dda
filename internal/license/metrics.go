package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments of the license manager
type Metrics struct {
	ActivationsTotal metric.Int64Counter
	ValidationsTotal metric.Int64Counter
}

// NewMetrics creates the license instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	activations, err := meter.Int64Counter("license_activations_total",
		metric.WithDescription("License activation attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation counter: %w", err)
	}
	validations, err := meter.Int64Counter("license_validations_total",
		metric.WithDescription("Launch-time license checks by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation counter: %w", err)
	}
	return &Metrics{
		ActivationsTotal: activations,
		ValidationsTotal: validations,
	}, nil
}

// RecordActivation records one activation attempt with its outcome
func (m *Metrics) RecordActivation(ctx context.Context, outcome string) {
	if m == nil || m.ActivationsTotal == nil {
		return
	}
	m.ActivationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordValidation records one launch check with its outcome
func (m *Metrics) RecordValidation(ctx context.Context, outcome string) {
	if m == nil || m.ValidationsTotal == nil {
		return
	}
	m.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
