package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisBroker implements MessageBroker over Redis pub/sub. It shares the
// client used by the user store, so small deployments need no extra infra.
type RedisBroker struct {
	client *redis.Client
	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewRedisBroker creates a broker on top of an existing Redis client.
// The caller retains ownership of the client; Close only tears down
// subscriptions.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Type() string { return "redis" }

// Publish sends an event to the given pub/sub channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, topic, data).Err()
}

// Subscribe listens on the given pub/sub channel until ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker is closed")
	}
	pubsub := b.client.Subscribe(ctx, topic)
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	// Confirm the subscription before handing back the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	events := make(chan Event, 100)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("Event decode error on %s: %v", topic, err)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close tears down all subscriptions opened through this broker.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for _, sub := range b.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.subs = nil
	return firstErr
}
