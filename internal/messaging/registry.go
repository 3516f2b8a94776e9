package messaging

import "sync"

type subscriptionKey struct {
	topic string
	group string
}

type subscription struct {
	key     subscriptionKey
	handler Handler
}

// registry holds the current handlers. Registering an existing key replaces it.
type registry struct {
	mu          sync.RWMutex
	handlers    map[subscriptionKey]Handler
	responders  map[string]RequestHandler
	onReconnect []func()
}

func newRegistry() *registry {
	return &registry{
		handlers:   make(map[subscriptionKey]Handler),
		responders: make(map[string]RequestHandler),
	}
}

// subscribe stores handler and reports whether the key is new.
func (r *registry) subscribe(topic, group string, handler Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subscriptionKey{topic: topic, group: group}
	_, exists := r.handlers[key]
	r.handlers[key] = handler
	return !exists
}

func (r *registry) respond(topic string, handler RequestHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.responders[topic]
	r.responders[topic] = handler
	return !exists
}

func (r *registry) handler(topic, group string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[subscriptionKey{topic: topic, group: group}]
}

func (r *registry) responder(topic string) RequestHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.responders[topic]
}

func (r *registry) subscriptions(topic string) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []subscription
	for key, h := range r.handlers {
		if topic == "" || key.topic == topic {
			subs = append(subs, subscription{key: key, handler: h})
		}
	}
	return subs
}

func (r *registry) responderTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.responders))
	for topic := range r.responders {
		topics = append(topics, topic)
	}
	return topics
}

func (r *registry) addReconnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReconnect = append(r.onReconnect, fn)
}

// reconnected runs every OnReconnect callback once, outside the lock so
// callbacks may register handlers.
func (r *registry) reconnected() {
	r.mu.RLock()
	callbacks := make([]func(), len(r.onReconnect))
	copy(callbacks, r.onReconnect)
	r.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}
