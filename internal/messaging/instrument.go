package messaging

import (
	"context"

	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

type instrumentedBus struct {
	Bus
	metrics *telemetry.SagaMetrics
}

// Instrument counts publications, successful deliveries and handler
// failures per topic.
func Instrument(bus Bus, metrics *telemetry.SagaMetrics) Bus {
	if metrics == nil {
		return bus
	}
	return &instrumentedBus{Bus: bus, metrics: metrics}
}

func (b *instrumentedBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := b.Bus.Publish(ctx, topic, key, payload); err != nil {
		return err
	}
	b.metrics.Published(ctx, topic)
	return nil
}

func (b *instrumentedBus) Subscribe(topic, group string, handler Handler) {
	b.Bus.Subscribe(topic, group, func(ctx context.Context, payload []byte) error {
		if err := handler(ctx, payload); err != nil {
			b.metrics.Failed(ctx, topic)
			return err
		}
		b.metrics.Consumed(ctx, topic)
		return nil
	})
}
