package server

import (
	"log/slog"
	"sync"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// TopicChat is the single broadcast topic carrying chat events and presence
// changes. Every sync session subscribes to it.
const TopicChat = "chat"

// subscriberBufferSize is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing frames instead of stalling publishers.
const subscriberBufferSize = 64

// EnvelopeType discriminates websocket wire frames.
type EnvelopeType string

const (
	// EnvelopeEvent carries a committed event from the log.
	EnvelopeEvent EnvelopeType = "event"
	// EnvelopeConnected and EnvelopeDisconnected announce presence changes.
	EnvelopeConnected    EnvelopeType = "connected"
	EnvelopeDisconnected EnvelopeType = "disconnected"
)

// Envelope is a single frame on the broadcast hub and the websocket wire.
type Envelope struct {
	Type     EnvelopeType    `json:"type"`
	Event    *model.Event    `json:"event,omitempty"`
	Presence *PresenceChange `json:"presence,omitempty"`
}

// PresenceChange identifies the user behind a connected/disconnected frame.
type PresenceChange struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Subscriber is a single registered consumer of a hub topic.
type Subscriber struct {
	topic string
	ch    chan *Envelope
}

// Frames returns the subscriber's delivery channel. The channel is never
// closed by the hub; callers stop reading after Unsubscribe.
func (s *Subscriber) Frames() <-chan *Envelope {
	return s.ch
}

// Hub fans out envelopes to every subscriber of a topic, including the
// subscriber that triggered the publish. A sender's own frame coming back is
// how delivery is confirmed, so self-delivery is load-bearing, not a bug.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber on the given topic. Call Unsubscribe
// when done.
func (h *Hub) Subscribe(topic string) *Subscriber {
	sub := &Subscriber{
		topic: topic,
		ch:    make(chan *Envelope, subscriberBufferSize),
	}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber from its topic. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()
}

// Publish delivers the envelope to every current subscriber of the topic.
// The subscriber set is snapshotted first so deliveries never run under the
// lock; a subscriber registered mid-publish catches the next frame. Slow
// subscribers lose the frame rather than blocking the publisher.
func (h *Hub) Publish(topic string, env *Envelope) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
			slog.Warn("dropping frame for slow subscriber", "topic", topic, "type", env.Type)
		}
	}
}

// Subscribers returns the current subscriber count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
