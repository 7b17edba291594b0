package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber event buffer. A subscriber that
// falls this far behind starts losing events rather than blocking publishers.
const subscriberBuffer = 256

// AudienceChangeHandler is invoked when a stream group's subscriber count
// changes, e.g. to feed the registry's viewer counter.
type AudienceChangeHandler func(streamID uuid.UUID, count int)

// Hub is the in-process Router implementation: one subscriber group per
// stream, with an optional Redis bridge for cross-instance fan-out.
type Hub struct {
	mu         sync.RWMutex
	groups     map[uuid.UUID]map[uint64]*Subscription
	bridgeSubs map[uuid.UUID]func()
	nextID     uint64
	logger     *zap.Logger
	bridge     Bridge
	onAudience AudienceChangeHandler
}

// Bridge relays events between instances. Publish sends an event to peers;
// Listen subscribes to a stream's channel and invokes handler for events
// originating on other instances.
type Bridge interface {
	Publish(ev Event) error
	Listen(streamID uuid.UUID, handler func(ev Event)) (cancel func(), err error)
}

// NewHub creates a hub. bridge may be nil for single-instance deployments.
func NewHub(logger *zap.Logger, bridge Bridge) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		groups:     make(map[uuid.UUID]map[uint64]*Subscription),
		bridgeSubs: make(map[uuid.UUID]func()),
		logger:     logger,
		bridge:     bridge,
	}
}

// SetAudienceChangeHandler sets the subscriber-count callback.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// Subscribe joins the stream's group. The first subscriber of a stream
// opens the bridge listener for that stream; the last one closes it.
func (h *Hub) Subscribe(streamID uuid.UUID) *Subscription {
	sub := &Subscription{events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.groups[streamID] == nil {
		h.groups[streamID] = make(map[uint64]*Subscription)
		if h.bridge != nil {
			cancel, err := h.bridge.Listen(streamID, func(ev Event) {
				h.deliver(ev)
			})
			if err != nil {
				h.logger.Warn("bridge listen failed", zap.String("stream_id", streamID.String()), zap.Error(err))
			} else {
				h.bridgeSubs[streamID] = cancel
			}
		}
	}
	h.groups[streamID][id] = sub
	count := len(h.groups[streamID])
	onAudience := h.onAudience
	h.mu.Unlock()

	sub.cancel = func() { h.unsubscribe(streamID, id, sub) }
	if onAudience != nil {
		onAudience(streamID, count)
	}
	h.logger.Debug("subscriber joined", zap.String("stream_id", streamID.String()), zap.Int("count", count))
	return sub
}

func (h *Hub) unsubscribe(streamID uuid.UUID, id uint64, sub *Subscription) {
	h.mu.Lock()
	group, ok := h.groups[streamID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := group[id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(group, id)
	count := len(group)
	if count == 0 {
		delete(h.groups, streamID)
		if cancel, ok := h.bridgeSubs[streamID]; ok {
			cancel()
			delete(h.bridgeSubs, streamID)
		}
	}
	// closed under the lock so deliver never sends on a closed channel
	close(sub.events)
	onAudience := h.onAudience
	h.mu.Unlock()

	if onAudience != nil {
		onAudience(streamID, count)
	}
	h.logger.Debug("subscriber left", zap.String("stream_id", streamID.String()), zap.Int("count", count))
}

// Publish delivers an event to every local subscriber of the stream and
// relays it to peer instances through the bridge.
func (h *Hub) Publish(streamID uuid.UUID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("drop unmarshalable event", zap.String("type", eventType), zap.Error(err))
		return
	}
	ev := Event{StreamID: streamID, Type: eventType, Payload: data, Timestamp: time.Now().UTC()}
	h.deliver(ev)
	if h.bridge != nil {
		if err := h.bridge.Publish(ev); err != nil {
			h.logger.Warn("bridge publish failed", zap.String("type", eventType), zap.Error(err))
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.groups[ev.StreamID] {
		select {
		case s.events <- ev:
		default:
			// subscriber buffer full, drop
		}
	}
}

// AudienceCount returns the number of current subscribers of a stream.
func (h *Hub) AudienceCount(streamID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[streamID])
}
