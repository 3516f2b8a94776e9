package messaging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DeliveryFailure records a handler error seen by MemoryBus.
type DeliveryFailure struct {
	Topic string
	Group string
	Err   error
}

// MemoryBus is an in-process Bus. Publish delivers synchronously to every
// group subscribed to the topic, in group order. Handler errors do not
// propagate to the publisher; they are logged and kept in Failures.
type MemoryBus struct {
	reg    *registry
	logger *slog.Logger

	mu        sync.Mutex
	published map[string][][]byte
	failures  []DeliveryFailure
	closed    bool
}

func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		reg:       newRegistry(),
		logger:    logger,
		published: make(map[string][][]byte),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.published[topic] = append(b.published[topic], payload)
	b.mu.Unlock()

	subs := b.reg.subscriptions(topic)
	sort.Slice(subs, func(i, j int) bool { return subs[i].key.group < subs[j].key.group })

	for _, sub := range subs {
		if err := sub.handler(ctx, payload); err != nil {
			b.logger.Error("handler failed", "topic", topic, "group", sub.key.group, "key", key, "error", err)
			b.mu.Lock()
			b.failures = append(b.failures, DeliveryFailure{Topic: topic, Group: sub.key.group, Err: err})
			b.mu.Unlock()
		}
	}
	return nil
}

func (b *MemoryBus) Request(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	handler := b.reg.responder(topic)
	if handler == nil {
		return nil, ErrNoResponder
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		reply []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := handler(ctx, payload)
		done <- result{reply: reply, err: err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ErrRequestTimeout
	}
}

func (b *MemoryBus) Respond(topic string, handler RequestHandler) {
	b.reg.respond(topic, handler)
}

func (b *MemoryBus) Subscribe(topic, group string, handler Handler) {
	b.reg.subscribe(topic, group, handler)
}

func (b *MemoryBus) OnReconnect(fn func()) {
	b.reg.addReconnect(fn)
}

// Reconnect fires the OnReconnect callbacks as a transport would after
// re-establishing its connection.
func (b *MemoryBus) Reconnect() {
	b.reg.reconnected()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Published returns the payloads published on topic so far.
func (b *MemoryBus) Published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

func (b *MemoryBus) Failures() []DeliveryFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeliveryFailure, len(b.failures))
	copy(out, b.failures)
	return out
}

// Subscriptions returns the number of registered (topic, group) handlers.
func (b *MemoryBus) Subscriptions() int {
	return len(b.reg.subscriptions(""))
}
