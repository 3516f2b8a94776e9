package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SagaMetrics counts saga traffic per topic. A nil *SagaMetrics records nothing.
type SagaMetrics struct {
	published     metric.Int64Counter
	consumed      metric.Int64Counter
	failures      metric.Int64Counter
	submitted     metric.Int64Counter
	authorization metric.Float64Histogram
}

func NewSagaMetrics() (*SagaMetrics, error) {
	meter := otel.Meter("orderflow/saga")

	published, err := meter.Int64Counter("saga.events.published",
		metric.WithDescription("Integration events published"))
	if err != nil {
		return nil, err
	}
	consumed, err := meter.Int64Counter("saga.events.consumed",
		metric.WithDescription("Integration events handled successfully"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("saga.handler.failures",
		metric.WithDescription("Integration event handlers that returned an error"))
	if err != nil {
		return nil, err
	}
	submitted, err := meter.Int64Counter("orders.submitted",
		metric.WithDescription("Order submissions by outcome"))
	if err != nil {
		return nil, err
	}
	authorization, err := meter.Float64Histogram("payment.authorization.duration",
		metric.WithDescription("Time spent waiting for a payment authorization reply"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &SagaMetrics{
		published:     published,
		consumed:      consumed,
		failures:      failures,
		submitted:     submitted,
		authorization: authorization,
	}, nil
}

func (m *SagaMetrics) Published(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *SagaMetrics) Consumed(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *SagaMetrics) Failed(ctx context.Context, topic string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// OrderSubmitted records one submission; outcome is accepted, invalid, rejected, unavailable or failed.
func (m *SagaMetrics) OrderSubmitted(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SagaMetrics) ObserveAuthorization(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.authorization.Record(ctx, d.Seconds())
}
