package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dmitrijs2005/fooddelivery/internal/server/services"

const (
	outcomeSuccess   = "success"
	outcomeRejected  = "rejected"
	outcomeThrottled = "throttled"
	outcomeError     = "error"
)

// Metrics counts session operations by outcome.
type Metrics struct {
	loginAttempts   metric.Int64Counter
	refreshAttempts metric.Int64Counter
	logoutCalls     metric.Int64Counter
}

// NewMetrics creates the counters on meter, or on the global meter provider
// when meter is nil. Instrument errors fall back to no-op counters.
func NewMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	return &Metrics{
		loginAttempts:   counter(meter, "auth.login.attempts", "Login attempts by outcome."),
		refreshAttempts: counter(meter, "auth.refresh.attempts", "Refresh credential redemptions by outcome."),
		logoutCalls:     counter(meter, "auth.logout.calls", "Logout calls by outcome."),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(name)
	}
	return c
}

func (m *Metrics) login(ctx context.Context, outcome string) {
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) refresh(ctx context.Context, outcome string) {
	m.refreshAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) logout(ctx context.Context, outcome string) {
	m.logoutCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
