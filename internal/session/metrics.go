package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Validation outcomes recorded on the session_validations_total counter
const (
	outcomeValid    = "valid"
	outcomeAbsent   = "absent"
	outcomeTampered = "tampered"
	outcomeExpired  = "expired"
	outcomeRevoked  = "revoked"
	outcomeDegraded = "degraded"
)

// Metrics holds the OpenTelemetry instruments of the session manager
type Metrics struct {
	ValidationsTotal metric.Int64Counter
	RefreshesTotal   metric.Int64Counter
}

// NewMetrics creates the session instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	validations, err := meter.Int64Counter("session_validations_total",
		metric.WithDescription("Session read validations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session validation counter: %w", err)
	}
	refreshes, err := meter.Int64Counter("session_refreshes_total",
		metric.WithDescription("Session expiry extensions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session refresh counter: %w", err)
	}
	return &Metrics{
		ValidationsTotal: validations,
		RefreshesTotal:   refreshes,
	}, nil
}

// RecordValidation records one validation with its outcome
func (m *Metrics) RecordValidation(ctx context.Context, outcome string) {
	if m == nil || m.ValidationsTotal == nil {
		return
	}
	m.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRefresh records one session refresh
func (m *Metrics) RecordRefresh(ctx context.Context) {
	if m == nil || m.RefreshesTotal == nil {
		return
	}
	m.RefreshesTotal.Add(ctx, 1)
}
