package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MnsrSfx/lan-chat-web/broker"
	"github.com/MnsrSfx/lan-chat-web/metrics"
)

const publishTimeout = 10 * time.Second

// eventPublisher pushes lifecycle events to the message broker
// fire-and-forget. Publish failures are logged, never surfaced to the
// connection path.
type eventPublisher struct {
	broker   broker.MessageBroker
	topic    string
	serverID string
	wg       sync.WaitGroup
}

func newEventPublisher(b broker.MessageBroker, topic, serverID string) *eventPublisher {
	return &eventPublisher{broker: b, topic: topic, serverID: serverID}
}

func (p *eventPublisher) publish(eventType, userID, callID, peerID string) {
	if p.broker == nil {
		return
	}
	event := broker.Event{
		ServerID:  p.serverID,
		Type:      eventType,
		UserID:    userID,
		CallID:    callID,
		PeerID:    peerID,
		Timestamp: time.Now().Unix(),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.broker.Publish(ctx, p.topic, event); err != nil {
			log.Printf("Failed to publish %s event for user %s: %v", eventType, userID, err)
			return
		}
		metrics.BrokerMessagesPublished.WithLabelValues(p.broker.Type()).Inc()
	}()
}

// wait blocks until in-flight publishes have drained, used during shutdown.
func (p *eventPublisher) wait() {
	p.wg.Wait()
}
