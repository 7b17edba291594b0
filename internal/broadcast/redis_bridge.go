package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "stream:"
	publishTimeout = 5 * time.Second
)

// wireEvent is the envelope published to Redis. Origin identifies the
// publishing instance so the local hub skips its own messages.
type wireEvent struct {
	Origin    string          `json:"origin"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RedisBridge implements Bridge over Redis pub/sub, one channel per stream.
type RedisBridge struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

// NewRedisBridge creates a Redis-backed cross-instance bridge.
func NewRedisBridge(client *redis.Client, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, instance: uuid.New().String(), logger: logger}
}

// Publish sends an event to the stream's Redis channel.
func (b *RedisBridge) Publish(ev Event) error {
	body, err := json.Marshal(wireEvent{
		Origin:    b.instance,
		Type:      ev.Type,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, channelPrefix+ev.StreamID.String(), body).Err()
}

// Listen subscribes to a stream's channel and invokes handler for events
// published by other instances. Returns a cancel func to stop listening.
func (b *RedisBridge) Listen(streamID uuid.UUID, handler func(ev Event)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channelPrefix+streamID.String())
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var w wireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
					b.logger.Warn("bad bridge payload", zap.Error(err))
					continue
				}
				if w.Origin == b.instance {
					continue
				}
				handler(Event{StreamID: streamID, Type: w.Type, Payload: w.Payload, Timestamp: w.Timestamp})
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
