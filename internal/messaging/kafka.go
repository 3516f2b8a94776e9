package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const defaultRetryBackoff = time.Second

// KafkaBus implements Bus on Kafka. Every subscription runs its own consumer
// goroutine. Requests carry a correlation id and a reply-to topic; each bus
// instance reads its service's reply topic with a private consumer group.
type KafkaBus struct {
	brokers      []string
	service      string
	instanceID   string
	logger       *slog.Logger
	reg          *registry
	retryBackoff time.Duration

	mu        sync.Mutex
	producers map[string]*Producer
	pending   map[string]chan []byte
	running   map[subscriptionKey]bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	closed    bool
	// outage advances each time the reconnect callbacks fire.
	outage uint64
}

type KafkaBusOption func(*KafkaBus)

func WithRetryBackoff(d time.Duration) KafkaBusOption {
	return func(b *KafkaBus) {
		b.retryBackoff = d
	}
}

func NewKafkaBus(brokers []string, service string, logger *slog.Logger, opts ...KafkaBusOption) *KafkaBus {
	b := &KafkaBus{
		brokers:      brokers,
		service:      service,
		instanceID:   uuid.New().String(),
		logger:       logger,
		reg:          newRegistry(),
		retryBackoff: defaultRetryBackoff,
		producers:    make(map[string]*Producer),
		pending:      make(map[string]chan []byte),
		running:      make(map[subscriptionKey]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *KafkaBus) replyTopic() string {
	return b.service + ".replies"
}

func responderGroup(topic string) string {
	return topic + ".responders"
}

// Start launches the reply consumer and a consumer for every handler
// registered so far. Handlers registered later start immediately.
func (b *KafkaBus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.started = true

	b.launchLocked(b.replyTopic(), b.service+".replies."+b.instanceID, b.handleReply, WithStartOffset(kafka.LastOffset))
	for _, sub := range b.reg.subscriptions("") {
		b.launchLocked(sub.key.topic, sub.key.group, b.dispatch(sub.key.topic, sub.key.group), WithStartOffset(kafka.FirstOffset))
	}
	for _, topic := range b.reg.responderTopics() {
		b.launchLocked(topic, responderGroup(topic), b.answer(topic), WithStartOffset(kafka.FirstOffset))
	}

	b.logger.Info("kafka bus started", "service", b.service, "brokers", b.brokers)
}

func (b *KafkaBus) launchLocked(topic, group string, handler MessageHandler, opts ...ConsumerOption) {
	key := subscriptionKey{topic: topic, group: group}
	if !b.started || b.closed || b.running[key] {
		return
	}
	b.running[key] = true
	b.wg.Add(1)
	go b.run(topic, group, handler, opts...)
}

// run keeps a consumer alive for topic/group until the bus closes. A failed
// handler restarts the reader so the uncommitted message is fetched again;
// a failed reader additionally notifies OnReconnect callbacks once it is back.
// Consumers that fail during the same outage notify only once between them.
func (b *KafkaBus) run(topic, group string, handler MessageHandler, opts ...ConsumerOption) {
	defer b.wg.Done()

	for {
		consumer := NewConsumer(b.brokers, topic, group, opts...)
		err := consumer.Consume(b.ctx, handler)
		_ = consumer.Close()

		if b.ctx.Err() != nil {
			return
		}

		var herr *handlerError
		transportFailure := !errors.As(err, &herr)
		outage := b.currentOutage()
		if transportFailure {
			b.logger.Error("consumer disconnected", "topic", topic, "group", group, "error", err)
		} else {
			b.logger.Warn("handler failed, message will be redelivered", "topic", topic, "group", group, "error", err)
		}

		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.retryBackoff):
		}

		if transportFailure {
			b.logger.Info("consumer reconnecting", "topic", topic, "group", group)
			b.reconnected(outage)
		}
	}
}

func (b *KafkaBus) currentOutage() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outage
}

// reconnected fires the OnReconnect callbacks unless another consumer already
// did so for the outage observed as outage. It reports whether it fired them.
func (b *KafkaBus) reconnected(outage uint64) bool {
	b.mu.Lock()
	if outage != b.outage {
		b.mu.Unlock()
		return false
	}
	b.outage++
	b.mu.Unlock()

	b.reg.reconnected()
	return true
}

func (b *KafkaBus) dispatch(topic, group string) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		handler := b.reg.handler(topic, group)
		if handler == nil {
			return nil
		}
		err := handler(ctx, msg.Value)
		switch {
		case errors.Is(err, ErrMalformedMessage):
			b.logger.Warn("skipping malformed message", "topic", topic, "group", group, "offset", msg.Offset, "error", err)
		case errors.Is(err, ErrUnrecoverable):
			b.logger.Error("dropping message that cannot be processed", "topic", topic, "group", group,
				"offset", msg.Offset, "key", string(msg.Key), "error", err)
		}
		return err
	}
}

func (b *KafkaBus) answer(topic string) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		handler := b.reg.responder(topic)
		if handler == nil {
			return nil
		}

		correlationID := headerValue(msg, headerCorrelationID)
		replyTo := headerValue(msg, headerReplyTo)
		if correlationID == "" || replyTo == "" {
			b.logger.Warn("skipping request without correlation headers", "topic", topic, "offset", msg.Offset)
			return fmt.Errorf("%w: missing correlation headers", ErrMalformedMessage)
		}

		reply, err := handler(ctx, msg.Value)
		if err != nil {
			return err
		}

		if err := b.producer(replyTo).Publish(ctx, correlationID, reply, header(headerCorrelationID, correlationID)); err != nil {
			return fmt.Errorf("publish reply: %w", err)
		}
		return nil
	}
}

func (b *KafkaBus) handleReply(_ context.Context, msg kafka.Message) error {
	correlationID := headerValue(msg, headerCorrelationID)

	b.mu.Lock()
	ch, ok := b.pending[correlationID]
	delete(b.pending, correlationID)
	b.mu.Unlock()

	if ok {
		ch <- msg.Value
	}
	return nil
}

func (b *KafkaBus) producer(topic string) *Producer {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.producers[topic]
	if !ok {
		p = NewProducer(b.brokers, topic)
		b.producers[topic] = p
	}
	return p
}

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	if err := b.producer(topic).Publish(ctx, key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *KafkaBus) Request(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	correlationID := uuid.New().String()
	ch := make(chan []byte, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.pending[correlationID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
	}()

	err := b.producer(topic).Publish(ctx, correlationID, payload,
		header(headerCorrelationID, correlationID),
		header(headerReplyTo, b.replyTopic()),
	)
	if err != nil {
		return nil, fmt.Errorf("publish request %s: %w", topic, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *KafkaBus) Respond(topic string, handler RequestHandler) {
	b.reg.respond(topic, handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchLocked(topic, responderGroup(topic), b.answer(topic), WithStartOffset(kafka.FirstOffset))
}

func (b *KafkaBus) Subscribe(topic, group string, handler Handler) {
	b.reg.subscribe(topic, group, handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.launchLocked(topic, group, b.dispatch(topic, group), WithStartOffset(kafka.FirstOffset))
}

func (b *KafkaBus) OnReconnect(fn func()) {
	b.reg.addReconnect(fn)
}

func (b *KafkaBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close stops every consumer and flushes the producers.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for topic, p := range b.producers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
