package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"

	"presence-backend/internal/model"
)

const roomChannelPrefix = "presence:room:"

// RedisBridge mirrors room-topic traffic through Redis pub/sub so several
// presence processes can share room broadcasts. Room publishes go to Redis
// only; the Run loop feeds everything received from Redis, our own publishes
// included, into the local bus. Per-connection queue topics never leave the
// process.
type RedisBridge struct {
	bus    *Bus
	client *redis.Client
}

func NewRedisBridge(b *Bus, client *redis.Client) *RedisBridge {
	return &RedisBridge{bus: b, client: client}
}

func (rb *RedisBridge) Publish(topic string, msg *model.WireMessage) {
	roomID := model.RoomFromTopic(topic)
	if roomID == "" {
		rb.bus.Publish(topic, msg)
		return
	}
	if err := rb.publishRoom(context.Background(), roomID, msg); err != nil {
		log.Printf("bus: redis publish failed, delivering locally: %v", err)
		rb.bus.Publish(topic, msg)
	}
}

func (rb *RedisBridge) publishRoom(ctx context.Context, roomID string, msg *model.WireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := rb.client.Publish(ctx, roomChannelPrefix+roomID, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", roomID, err)
	}
	return nil
}

// Run consumes the room channel pattern and re-publishes into the local bus.
// It returns when ctx is cancelled or the subscription closes.
func (rb *RedisBridge) Run(ctx context.Context) error {
	sub := rb.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			roomID := strings.TrimPrefix(m.Channel, roomChannelPrefix)
			var msg model.WireMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Printf("bus: dropping malformed redis payload on %s: %v", m.Channel, err)
				continue
			}
			rb.bus.Publish(model.RoomTopic(roomID), &msg)
		}
	}
}
