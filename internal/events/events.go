// Package events mirrors committed log entries onto an external message bus.
// The event log in the store remains the single source of truth; the bus is
// an egress feed for observers (debug tails, downstream consumers), never a
// second write path.
package events

import (
	"context"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// SubjectPrefix is the root of every subject this service publishes on.
const SubjectPrefix = "sashay.event"

// FirehoseSubject matches every published event (NATS-style wildcard).
const FirehoseSubject = SubjectPrefix + ".>"

// Subject returns the bus subject for a committed event, keyed the same way
// as the payload variant: sashay.event.<entity_type>.<event_type>.
func Subject(e *model.Event) string {
	return SubjectPrefix + "." + string(e.EntityType) + "." + string(e.EventType)
}

// Publisher is the interface for emitting committed events to the bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *model.Event) error
	Close() error
}

// Subscriber receives raw event payloads from the bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(subject string) (<-chan []byte, func(), error)
	Close() error
}

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, subject string, event *model.Event) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
