package messaging

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Registry tracks live consumers per topic. It is shared by all consumer loops.
type Registry struct {
	factory *Factory

	mu        sync.RWMutex
	consumers map[string][]Consumer
}

// NewRegistry creates an empty registry building consumers through factory.
func NewRegistry(factory *Factory) *Registry {
	return &Registry{
		factory:   factory,
		consumers: make(map[string][]Consumer),
	}
}

// CreateAndSubscribe builds a consumer for spec, subscribes it to spec.Name
// and registers it. A consumer that fails to subscribe is closed and not registered.
func (r *Registry) CreateAndSubscribe(ctx context.Context, spec TopicSpec) (Consumer, error) {
	consumer, err := r.factory.Build(spec)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(ctx, spec.Name); err != nil {
		if cerr := consumer.Close(); cerr != nil {
			log.Printf("Error closing consumer after failed subscribe: topic=%s, error=%v", spec.Name, cerr)
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", spec.Name, err)
	}

	r.Add(spec.Name, consumer)
	return consumer, nil
}

// Add registers consumer under topic.
func (r *Registry) Add(topic string, consumer Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consumers[topic] = append(r.consumers[topic], consumer)
}

// Consumers returns the consumers registered under topic.
func (r *Registry) Consumers(topic string) []Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Consumer(nil), r.consumers[topic]...)
}

// Topics lists topics with at least one registered consumer.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.consumers))
	for topic, list := range r.consumers {
		if len(list) > 0 {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Alive counts registered consumers that report a usable connection.
func (r *Registry) Alive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alive := 0
	for _, list := range r.consumers {
		for _, c := range list {
			if c.Alive() {
				alive++
			}
		}
	}
	return alive
}

// Evict unregisters and closes consumer. It reports whether consumer was registered under topic.
func (r *Registry) Evict(topic string, consumer Consumer) bool {
	r.mu.Lock()
	list := r.consumers[topic]
	found := false
	for i, c := range list {
		if c == consumer {
			r.consumers[topic] = append(list[:i:i], list[i+1:]...)
			found = true
			break
		}
	}
	if found && len(r.consumers[topic]) == 0 {
		delete(r.consumers, topic)
	}
	r.mu.Unlock()

	if err := consumer.Close(); err != nil {
		log.Printf("Error closing evicted consumer: topic=%s, error=%v", topic, err)
	}
	return found
}

// CloseAll unsubscribes and closes every consumer and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.consumers
	r.consumers = make(map[string][]Consumer)
	r.mu.Unlock()

	for topic, list := range all {
		for _, c := range list {
			if err := c.Unsubscribe(); err != nil {
				log.Printf("Error unsubscribing consumer: topic=%s, error=%v", topic, err)
			}
			if err := c.Close(); err != nil {
				log.Printf("Error closing consumer: topic=%s, error=%v", topic, err)
			}
		}
	}
}
