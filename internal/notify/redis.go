package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const DefaultChannelPrefix = "payrank:"

// RedisPublisher publishes events on redis so that every API instance can fan them out.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.prefix+topic, data).Err()
}

// Relay copies events from redis into the local hub.
type Relay struct {
	client *redis.Client
	hub    Publisher
	prefix string
	log    *zap.Logger
}

func NewRelay(client *redis.Client, hub Publisher, prefix string, log *zap.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Relay{client: client, hub: hub, prefix: prefix, log: log}
}

// Run blocks until ctx is done or the subscription fails. ready, if not nil, is closed once
// the pattern subscription is active.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("discarding malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			topic := strings.TrimPrefix(msg.Channel, r.prefix)
			if err := r.hub.Publish(ctx, topic, ev); err != nil {
				r.log.Warn("relay publish failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
}
