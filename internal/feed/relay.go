package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by every instance.
const DefaultRelayChannel = "studiocast:feed"

// RedisRelay fans announcements out across instances. Announce publishes to
// Redis; Run delivers every message on the channel, including this
// instance's own, to the local hub and to the handler set with OnEvent.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	handler EventHandler
	logger  *slog.Logger
}

// NewRedisRelay creates a relay on channel. An empty channel uses DefaultRelayChannel.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
	}
}

// OnEvent sets a handler called with every relayed event after the hub has
// fanned it out. It must be set before Run.
func (r *RedisRelay) OnEvent(handler EventHandler) {
	r.handler = handler
}

// Announce publishes the feed event for a durable record to Redis.
func (r *RedisRelay) Announce(ctx context.Context, record *broadcast.Record) error {
	ev, ok := EventFromRecord(record)
	if !ok {
		return nil
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run subscribes to the relay channel and forwards events to the hub until
// the context is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("feed relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("feed relay subscription closed")
			}
			r.dispatch(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, payload string) {
	ev, err := ParseEvent([]byte(payload))
	if err != nil {
		r.logger.WarnContext(ctx, "dropping relayed feed event", "error", err)
		return
	}
	if r.hub != nil {
		r.hub.Publish(ev)
	}
	if r.handler != nil {
		r.handler(ctx, ev)
	}
}
