package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
)

const (
	kafkaMaxRetries     = 3
	kafkaInitialBackoff = 100 * time.Millisecond
	kafkaMaxBackoff     = 5 * time.Second
)

// KafkaBroker implements MessageBroker using Apache Kafka.
type KafkaBroker struct {
	brokers       []string
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup
	config        *sarama.Config
	mu            sync.RWMutex
	closed        bool
}

// NewKafkaBroker creates a new Kafka message broker.
func NewKafkaBroker(brokers []string, groupID string) (*KafkaBroker, error) {
	config := sarama.NewConfig()

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = kafkaMaxRetries
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond

	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	return &KafkaBroker{
		brokers:       brokers,
		producer:      producer,
		consumerGroup: consumerGroup,
		config:        config,
	}, nil
}

func (b *KafkaBroker) Type() string { return "kafka" }

// Publish sends an event to the given topic with retry capability.
// Events for the same user land on the same partition so consumers see each
// user's transitions in order.
func (b *KafkaBroker) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(event.UserID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	}

	operation := func() error {
		_, _, err := b.producer.SendMessage(kafkaMsg)
		return err
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(kafkaInitialBackoff),
				backoff.WithMaxInterval(kafkaMaxBackoff),
			),
			kafkaMaxRetries,
		),
		ctx,
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		log.Printf("Retrying Kafka publish for user %s: %v (next attempt in %s)", event.UserID, err, d)
	})
}

// Subscribe starts consuming events from the given topic.
func (b *KafkaBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	events := make(chan Event, 100)

	handler := &consumerGroupHandler{
		events: events,
		ready:  make(chan bool),
	}

	go func() {
		defer close(events)

		for {
			select {
			case <-ctx.Done():
				return
			default:
				// Consume must be called in a loop; it returns on rebalance.
				if err := b.consumerGroup.Consume(ctx, []string{topic}, handler); err != nil {
					log.Printf("Error from consumer group: %v", err)
					return
				}
			}
		}
	}()

	go func() {
		for err := range b.consumerGroup.Errors() {
			log.Printf("Consumer group error: %v", err)
		}
	}()

	select {
	case <-handler.ready:
		return events, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("timeout waiting for consumer to be ready")
	}
}

// Close cleans up resources.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	var errs []error

	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := b.consumerGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer group: %w", err))
	}

	b.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	events chan<- Event
	ready  chan bool
	once   sync.Once
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() {
		close(h.ready)
	})
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case kafkaMsg := <-claim.Messages():
			if kafkaMsg == nil {
				return nil
			}

			var event Event
			if err := json.Unmarshal(kafkaMsg.Value, &event); err != nil {
				log.Printf("Event decode error: %v", err)
				session.MarkMessage(kafkaMsg, "")
				continue
			}

			select {
			case h.events <- event:
			case <-session.Context().Done():
				return nil
			}

			session.MarkMessage(kafkaMsg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
