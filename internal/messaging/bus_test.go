package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type ping struct {
	ID string `json:"id"`
}

type pong struct {
	Echo string `json:"echo"`
}

func newTestBus() *MemoryBus {
	return NewMemoryBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribe_TypedDelivery(t *testing.T) {
	bus := newTestBus()
	var got []string

	Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(_ context.Context, msg ping) error {
		got = append(got, msg.ID)
		return nil
	}))

	if err := PublishEvent(context.Background(), bus, "pings", "k", ping{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := PublishEvent(context.Background(), bus, "other", "k", ping{ID: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected [a], got %v", got)
	}
}

func TestSubscribe_ReplacesSameKey(t *testing.T) {
	bus := newTestBus()
	var first, second, otherGroup atomic.Int32

	Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(context.Context, ping) error { first.Add(1); return nil }))
	Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(context.Context, ping) error { second.Add(1); return nil }))
	Subscribe(bus, "pings", "g2", SubscriberFunc[ping](func(context.Context, ping) error { otherGroup.Add(1); return nil }))

	_ = PublishEvent(context.Background(), bus, "pings", "k", ping{ID: "a"})

	if first.Load() != 0 {
		t.Error("replaced handler must not run")
	}
	if second.Load() != 1 || otherGroup.Load() != 1 {
		t.Errorf("expected one delivery per group, got %d and %d", second.Load(), otherGroup.Load())
	}
	if bus.Subscriptions() != 2 {
		t.Errorf("expected 2 subscriptions, got %d", bus.Subscriptions())
	}
}

func TestOnReconnect_ReRegistrationIsIdempotent(t *testing.T) {
	bus := newTestBus()
	var deliveries atomic.Int32

	register := func() {
		Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(context.Context, ping) error {
			deliveries.Add(1)
			return nil
		}))
	}
	register()
	bus.OnReconnect(register)

	bus.Reconnect()
	bus.Reconnect()

	_ = PublishEvent(context.Background(), bus, "pings", "k", ping{ID: "a"})

	if deliveries.Load() != 1 {
		t.Errorf("expected exactly one delivery after reconnects, got %d", deliveries.Load())
	}
}

func TestMemoryBus_HandlerFailure(t *testing.T) {
	bus := newTestBus()
	boom := errors.New("boom")
	Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(context.Context, ping) error { return boom }))

	if err := PublishEvent(context.Background(), bus, "pings", "k", ping{}); err != nil {
		t.Fatalf("publisher must not see handler errors, got %v", err)
	}

	failures := bus.Failures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, boom) {
		t.Errorf("expected recorded failure, got %v", failures)
	}
}

func TestSubscribe_MalformedPayload(t *testing.T) {
	bus := newTestBus()
	Subscribe(bus, "pings", "g1", SubscriberFunc[ping](func(context.Context, ping) error { return nil }))

	_ = bus.Publish(context.Background(), "pings", "k", []byte("not json"))

	failures := bus.Failures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, ErrMalformedMessage) {
		t.Errorf("expected malformed message failure, got %v", failures)
	}
}

func TestRequest(t *testing.T) {
	t.Run("returns typed reply", func(t *testing.T) {
		bus := newTestBus()
		Respond(bus, "echo", ResponderFunc[ping, pong](func(_ context.Context, req ping) (pong, error) {
			return pong{Echo: req.ID}, nil
		}))

		resp, err := Request[ping, pong](context.Background(), bus, "echo", ping{ID: "x"}, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Echo != "x" {
			t.Errorf("expected echo x, got %q", resp.Echo)
		}
	})

	t.Run("times out", func(t *testing.T) {
		bus := newTestBus()
		release := make(chan struct{})
		defer close(release)
		Respond(bus, "slow", ResponderFunc[ping, pong](func(context.Context, ping) (pong, error) {
			<-release
			return pong{}, nil
		}))

		_, err := Request[ping, pong](context.Background(), bus, "slow", ping{}, 20*time.Millisecond)
		if !errors.Is(err, ErrRequestTimeout) {
			t.Errorf("expected ErrRequestTimeout, got %v", err)
		}
	})

	t.Run("no responder", func(t *testing.T) {
		bus := newTestBus()
		_, err := Request[ping, pong](context.Background(), bus, "nobody", ping{}, time.Second)
		if !errors.Is(err, ErrNoResponder) {
			t.Errorf("expected ErrNoResponder, got %v", err)
		}
	})
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := newTestBus()
	_ = bus.Close()

	if err := bus.Publish(context.Background(), "pings", "k", []byte("{}")); !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}

func TestMessageCarrier(t *testing.T) {
	msg := kafka.Message{}
	carrier := NewMessageCarrier(&msg)

	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")
	carrier.Set(headerCorrelationID, "c1")

	if got := carrier.Get("traceparent"); got != "b" {
		t.Errorf("expected overwritten value b, got %q", got)
	}
	if len(carrier.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %v", carrier.Keys())
	}
	if got := headerValue(msg, headerCorrelationID); got != "c1" {
		t.Errorf("expected c1, got %q", got)
	}
}

func TestKafkaBus_ReconnectOncePerOutage(t *testing.T) {
	bus := NewKafkaBus([]string{"localhost:9092"}, "orders", slog.New(slog.NewTextHandler(io.Discard, nil)))
	var calls int
	bus.OnReconnect(func() { calls++ })

	// Three consumers see the same broker outage.
	outages := []uint64{bus.currentOutage(), bus.currentOutage(), bus.currentOutage()}
	fired := 0
	for _, outage := range outages {
		if bus.reconnected(outage) {
			fired++
		}
	}
	if fired != 1 || calls != 1 {
		t.Fatalf("expected callbacks to fire once, fired=%d calls=%d", fired, calls)
	}

	if !bus.reconnected(bus.currentOutage()) {
		t.Fatal("a later outage must fire the callbacks again")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestUnrecoverable(t *testing.T) {
	cause := errors.New("payment already captured")
	err := Unrecoverable(cause)

	if !errors.Is(err, ErrUnrecoverable) || !errors.Is(err, cause) {
		t.Fatalf("expected both sentinel and cause, got %v", err)
	}
	if Unrecoverable(nil) != nil {
		t.Error("nil stays nil")
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain failure", errors.New("db down"), true},
		{"malformed", ErrMalformedMessage, false},
		{"unrecoverable", err, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKafkaBus_DispatchUnrecoverable(t *testing.T) {
	bus := NewKafkaBus([]string{"localhost:9092"}, "payments", slog.New(slog.NewTextHandler(io.Discard, nil)))
	cause := errors.New("payment already captured")
	bus.Subscribe("order.cancelled", "payments", func(context.Context, []byte) error {
		return Unrecoverable(cause)
	})

	err := bus.dispatch("order.cancelled", "payments")(context.Background(), kafka.Message{Value: []byte(`{}`)})
	if !errors.Is(err, cause) {
		t.Fatalf("expected the handler error, got %v", err)
	}
	if retryable(err) {
		t.Error("the message must be committed, not redelivered")
	}
}
