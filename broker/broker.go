package broker

import "context"

// Event is the payload published for every presence flip and call lifecycle
// transition. Downstream services (the REST API, analytics) consume these
// instead of polling the store.
type Event struct {
	ServerID  string `json:"server_id"` // gateway instance that emitted the event
	Type      string `json:"type"`      // online, offline, call_connected, call_ended, ...
	UserID    string `json:"user_id"`
	CallID    string `json:"call_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix seconds
}

// MessageBroker abstracts the event transport so deployments can pick Redis
// pub/sub or Kafka per environment.
type MessageBroker interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
	Close() error
	Type() string
}
