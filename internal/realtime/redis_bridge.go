package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBridge relays events between replicas over one Redis pub/sub channel
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
	ready   chan struct{}
}

func NewRedisBridge(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is established
func (b *RedisBridge) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the channel and hands every decoded event to deliver
// until ctx is cancelled
func (b *RedisBridge) Run(ctx context.Context, deliver func(Event)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	close(b.ready)
	b.logger.Info("realtime bridge subscribed", slog.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.logger.Warn("discarding malformed realtime event", slog.Any("error", err))
				continue
			}
			deliver(e)
		}
	}
}
