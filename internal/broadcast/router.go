// Package broadcast fans state-change events out to the subscribers of a
// stream. Delivery is best-effort and fire-and-forget: the committed
// aggregate state is always the source of truth, events only signal that
// something changed.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the single broadcast contract consumed by any realtime transport.
type Event struct {
	StreamID  uuid.UUID       `json:"stream_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes an event to all current subscribers of a stream's
// group. It never blocks on a slow subscriber and is called strictly after
// the originating mutation has committed.
type Publisher interface {
	Publish(streamID uuid.UUID, eventType string, payload any)
}

// Router is the transport-agnostic publish/subscribe surface. Concrete
// transports (WebSocket, SSE, ...) attach through Subscribe.
type Router interface {
	Publisher
	Subscribe(streamID uuid.UUID) *Subscription
}

// Subscription is one subscriber's membership in a stream group.
type Subscription struct {
	events chan Event
	cancel func()
}

// Events returns the channel the subscription's events arrive on. The
// channel is closed when the subscription is closed.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close removes the subscription from its group and closes Events.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
