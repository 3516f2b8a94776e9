package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrNoResponder      = errors.New("no responder registered")
	ErrMalformedMessage = errors.New("malformed message")
	ErrBusClosed        = errors.New("bus closed")

	// ErrUnrecoverable marks a handler failure that redelivery cannot fix.
	// The transport reports it and moves past the delivery.
	ErrUnrecoverable = errors.New("unrecoverable")
)

// Unrecoverable wraps err so the transport stops redelivering the message.
// The result still matches err with errors.Is and errors.As.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

// Handler processes one delivery. A non-nil error leaves the delivery
// unacknowledged so the bus redelivers it, unless the error wraps
// ErrUnrecoverable or ErrMalformedMessage.
type Handler func(ctx context.Context, payload []byte) error

// RequestHandler answers a correlated request with a reply payload.
type RequestHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Bus is the transport shared by every saga participant.
//
// Publications are at-least-once and fire-and-forget. Subscribe and Respond
// replace any previous registration for the same key, so participants can
// re-register from an OnReconnect callback without duplicating handlers.
type Bus interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Request(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error)
	Respond(topic string, handler RequestHandler)
	Subscribe(topic, group string, handler Handler)
	OnReconnect(fn func())
	Close() error
}

type Subscriber[T any] interface {
	Handle(ctx context.Context, msg T) error
}

type SubscriberFunc[T any] func(ctx context.Context, msg T) error

func (f SubscriberFunc[T]) Handle(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

type Responder[Req, Resp any] interface {
	Respond(ctx context.Context, req Req) (Resp, error)
}

type ResponderFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f ResponderFunc[Req, Resp]) Respond(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// PublishEvent encodes event as JSON and publishes it under key.
func PublishEvent(ctx context.Context, bus Bus, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return bus.Publish(ctx, topic, key, data)
}

func Subscribe[T any](bus Bus, topic, group string, s Subscriber[T]) {
	bus.Subscribe(topic, group, func(ctx context.Context, payload []byte) error {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrMalformedMessage, topic, err)
		}
		return s.Handle(ctx, msg)
	})
}

func Respond[Req, Resp any](bus Bus, topic string, r Responder[Req, Resp]) {
	bus.Respond(topic, func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedMessage, topic, err)
		}
		resp, err := r.Respond(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	})
}

// Request sends req on topic and waits up to timeout for the correlated reply.
func Request[Req, Resp any](ctx context.Context, bus Bus, topic string, req Req, timeout time.Duration) (Resp, error) {
	var resp Resp

	data, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("marshal %s: %w", topic, err)
	}

	reply, err := bus.Request(ctx, topic, data, timeout)
	if err != nil {
		return resp, err
	}

	if err := json.Unmarshal(reply, &resp); err != nil {
		return resp, fmt.Errorf("%w: decode reply to %s: %v", ErrMalformedMessage, topic, err)
	}
	return resp, nil
}
