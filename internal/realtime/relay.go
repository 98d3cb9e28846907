package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/observability"
)

// envelope is what travels over the redis channel. An empty UserID means broadcast.
type envelope struct {
	UserID string          `json:"user_id,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RedisRelay publishes events to a redis channel so every API instance can
// deliver them to its own local hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRedisRelay wires a relay in front of the local hub. metrics may be nil.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger, metrics *observability.Metrics) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger, metrics: metrics}
}

// Deferred reports that a nil error from EmitToUser only means the event was
// published; it says nothing about an open socket.
func (r *RedisRelay) Deferred() bool { return true }

// EmitToUser publishes a room-addressed event. Delivery happens in Run and
// never yields ErrNoSubscribers here.
func (r *RedisRelay) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	return r.publish(ctx, envelope{UserID: userID, Event: event}, payload)
}

// Broadcast publishes an event for every connected client.
func (r *RedisRelay) Broadcast(ctx context.Context, event string, payload any) error {
	return r.publish(ctx, envelope{Event: event}, payload)
}

func (r *RedisRelay) publish(ctx context.Context, env envelope, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	env.Data = data
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Run consumes the channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("realtime relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		r.logger.Warn("realtime relay decode", zap.Error(err))
		return
	}
	var err error
	if env.UserID == "" {
		err = r.hub.Broadcast(ctx, env.Event, env.Data)
	} else {
		err = r.hub.EmitToUser(ctx, env.UserID, env.Event, env.Data)
	}
	switch {
	case err == nil:
		r.metrics.RecordRelay(env.Event, observability.RelayDelivered)
	case errors.Is(err, ErrNoSubscribers):
		r.metrics.RecordRelay(env.Event, observability.RelayNoSubscribers)
	default:
		r.metrics.RecordRelay(env.Event, observability.RelayFailed)
		r.logger.Warn("realtime relay deliver", zap.String("event", env.Event), zap.Error(err))
	}
}
