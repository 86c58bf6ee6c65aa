// Package pubsub orchestrates event fan-out: it turns upstream change
// signals into rehydrated payloads and pushes them through every registered
// transport channel.
package pubsub

import (
	"context"

	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// Channel is a transport that accepts subscriptions and pushes typed payloads
// to interested subscribers. The transmitter depends on nothing beyond this
// capability set; each implementation owns its subscriber state exclusively.
type Channel interface {
	// HasListeners reports whether any subscriber currently holds the exact
	// topic.
	HasListeners(t topics.Topic) bool

	// HasFamilyListeners reports whether any subscriber holds any topic of
	// the family. Used when a signal's parameter is unknown until the
	// authoritative record is fetched.
	HasFamilyListeners(f topics.Family) bool

	// Send pushes a payload to every current subscriber of the topic. A
	// channel with no subscriber for the topic is a cheap no-op.
	Send(ctx context.Context, t topics.Topic, payload interface{}) error

	// Close tears down all subscriber state.
	Close(ctx context.Context) error
}

// Metrics observes connection and subscription lifecycle events. It is an
// optional collaborator; channels tolerate a nil sink.
type Metrics interface {
	Connect(remoteAddr string)
	Disconnect(remoteAddr string)
	Subscribe(remoteAddr string, topicKeys ...string)
	Unsubscribe(remoteAddr string, topicKey string)
	SendEvent(event string)
}
