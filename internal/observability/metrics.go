package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the counters recorded by the handoff flow.
type Metrics struct {
	tokensIssued   metric.Int64Counter
	tokensRejected metric.Int64Counter
	otpIssued      metric.Int64Counter
	otpRejected    metric.Int64Counter
	completions    metric.Int64Counter
}

// NewMetrics registers the handoff instruments on the manager's meter.
func NewMetrics(mgr *Manager) (*Metrics, error) {
	return newMetrics(mgr.Meter("github.com/Additional-Code/handoff"))
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter("nop"))
	return m
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.tokensIssued, err = meter.Int64Counter("handoff_token_issued_total",
		metric.WithDescription("Pickup tokens issued")); err != nil {
		return nil, err
	}
	if m.tokensRejected, err = meter.Int64Counter("handoff_token_rejected_total",
		metric.WithDescription("Tokens or tickets rejected, by reason")); err != nil {
		return nil, err
	}
	if m.otpIssued, err = meter.Int64Counter("handoff_otp_issued_total",
		metric.WithDescription("Confirmation codes issued")); err != nil {
		return nil, err
	}
	if m.otpRejected, err = meter.Int64Counter("handoff_otp_rejected_total",
		metric.WithDescription("Confirmation codes rejected, by reason")); err != nil {
		return nil, err
	}
	if m.completions, err = meter.Int64Counter("handoff_completions_total",
		metric.WithDescription("Orders completed through handoff")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) TokenIssued(ctx context.Context) {
	m.tokensIssued.Add(ctx, 1)
}

func (m *Metrics) TokenRejected(ctx context.Context, reason string) {
	m.tokensRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) OTPIssued(ctx context.Context) {
	m.otpIssued.Add(ctx, 1)
}

func (m *Metrics) OTPRejected(ctx context.Context, reason string) {
	m.otpRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Completed(ctx context.Context, method string) {
	m.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("delivery_method", method)))
}
