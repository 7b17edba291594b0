package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	streamID := uuid.New()

	first := hub.Subscribe(streamID)
	second := hub.Subscribe(streamID)
	defer first.Close()
	defer second.Close()

	hub.Publish(streamID, "chat_message", map[string]any{"text": "hi"})

	for _, sub := range []*Subscription{first, second} {
		ev := recvEvent(t, sub)
		if ev.Type != "chat_message" || ev.StreamID != streamID {
			t.Errorf("event = (%s, %s), want (chat_message, %s)", ev.Type, ev.StreamID, streamID)
		}
		if len(ev.Payload) == 0 {
			t.Error("event payload is empty")
		}
	}
}

func TestHub_StreamIsolation(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	streamA, streamB := uuid.New(), uuid.New()

	subA := hub.Subscribe(streamA)
	subB := hub.Subscribe(streamB)
	defer subA.Close()
	defer subB.Close()

	hub.Publish(streamA, "stream_started", nil)

	if ev := recvEvent(t, subA); ev.Type != "stream_started" {
		t.Errorf("stream A got %s, want stream_started", ev.Type)
	}
	select {
	case ev := <-subB.Events():
		t.Errorf("stream B received foreign event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	streamID := uuid.New()

	slow := hub.Subscribe(streamID)
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// overflow the subscriber buffer without draining it
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(streamID, "reaction_added", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	streamID := uuid.New()

	sub := hub.Subscribe(streamID)
	if got := hub.AudienceCount(streamID); got != 1 {
		t.Fatalf("audience = %d, want 1", got)
	}

	sub.Close()
	if got := hub.AudienceCount(streamID); got != 0 {
		t.Errorf("audience after close = %d, want 0", got)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after close")
	}

	// closing twice is harmless
	sub.Close()
}

func TestHub_AudienceChangeHandler(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	streamID := uuid.New()

	var mu sync.Mutex
	var counts []int
	hub.SetAudienceChangeHandler(func(id uuid.UUID, count int) {
		if id != streamID {
			t.Errorf("callback stream = %s, want %s", id, streamID)
		}
		mu.Lock()
		counts = append(counts, count)
		mu.Unlock()
	})

	first := hub.Subscribe(streamID)
	second := hub.Subscribe(streamID)
	second.Close()
	first.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 1, 0}
	if len(counts) != len(want) {
		t.Fatalf("callback fired %d times, want %d", len(counts), len(want))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("count[%d] = %d, want %d", i, counts[i], want[i])
		}
	}
}

type memBridge struct {
	mu        sync.Mutex
	published []Event
	handlers  map[uuid.UUID]func(Event)
	listening map[uuid.UUID]bool
}

func newMemBridge() *memBridge {
	return &memBridge{
		handlers:  make(map[uuid.UUID]func(Event)),
		listening: make(map[uuid.UUID]bool),
	}
}

func (b *memBridge) Publish(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *memBridge) Listen(streamID uuid.UUID, handler func(Event)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[streamID] = handler
	b.listening[streamID] = true
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listening[streamID] = false
	}, nil
}

func (b *memBridge) inject(ev Event) {
	b.mu.Lock()
	handler := b.handlers[ev.StreamID]
	b.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func TestHub_BridgeRelay(t *testing.T) {
	bridge := newMemBridge()
	hub := NewHub(zap.NewNop(), bridge)
	streamID := uuid.New()

	sub := hub.Subscribe(streamID)
	defer sub.Close()

	bridge.mu.Lock()
	listening := bridge.listening[streamID]
	bridge.mu.Unlock()
	if !listening {
		t.Fatal("first subscriber did not open the bridge listener")
	}

	// local publish is relayed to peers
	hub.Publish(streamID, "poll_created", nil)
	recvEvent(t, sub)
	bridge.mu.Lock()
	relayed := len(bridge.published)
	bridge.mu.Unlock()
	if relayed != 1 {
		t.Errorf("bridge relayed %d events, want 1", relayed)
	}

	// events arriving from peers reach local subscribers
	bridge.inject(Event{StreamID: streamID, Type: "super_chat", Timestamp: time.Now()})
	if ev := recvEvent(t, sub); ev.Type != "super_chat" {
		t.Errorf("relayed event = %s, want super_chat", ev.Type)
	}
}

func TestHub_BridgeListenerClosedWithLastSubscriber(t *testing.T) {
	bridge := newMemBridge()
	hub := NewHub(zap.NewNop(), bridge)
	streamID := uuid.New()

	first := hub.Subscribe(streamID)
	second := hub.Subscribe(streamID)
	first.Close()

	bridge.mu.Lock()
	listening := bridge.listening[streamID]
	bridge.mu.Unlock()
	if !listening {
		t.Fatal("bridge listener closed while subscribers remain")
	}

	second.Close()
	bridge.mu.Lock()
	listening = bridge.listening[streamID]
	bridge.mu.Unlock()
	if listening {
		t.Error("bridge listener still open after last subscriber left")
	}
}
