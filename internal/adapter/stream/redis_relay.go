package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/core/domain"
)

// RedisRelay shares alerts between notification replicas. Broadcast publishes
// to a Redis channel; Run feeds every message on that channel into the local
// hub, including the ones this replica published.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}
}

func (r *RedisRelay) Broadcast(ctx context.Context, alert domain.StockAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert to %s: %w", r.channel, err)
	}
	return nil
}

// Run relays until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("alert relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var alert domain.StockAlert
			if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
				r.logger.Warn("discarding malformed relayed alert", zap.Error(err))
				continue
			}
			r.hub.Broadcast(ctx, alert)
		}
	}
}
