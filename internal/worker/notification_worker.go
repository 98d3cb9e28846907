// Package worker connects the ticket event bus to its consumers and runs the
// background loops of the process.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/events"
	"github.com/loopio/feedback-tracker/internal/realtime"
)

const relayRetryDelay = 2 * time.Second

// Broadcaster pushes an event to every connected client.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Forwarder exports ticket events outside the process.
type Forwarder interface {
	Handle(ctx context.Context, e events.Event) error
}

var realtimeEvents = map[events.EventType]string{
	events.EventTicketCreated:    realtime.EventFeedbackAdded,
	events.EventTicketUpdated:    realtime.EventFeedbackUpdated,
	events.EventTicketDeleted:    realtime.EventFeedbackDeleted,
	events.EventAnalyticsChanged: realtime.EventAnalyticsUpdate,
}

// StartNotificationWorker subscribes the realtime broadcaster and, if given,
// the broker forwarder to every ticket event.
func StartNotificationWorker(bus events.Dispatcher, broadcaster Broadcaster, forwarder Forwarder, logger *zap.Logger) {
	if bus == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if broadcaster != nil {
		events.SubscribeAll(bus, broadcastHandler(broadcaster))
	}
	if forwarder != nil {
		events.SubscribeAll(bus, forwardHandler(forwarder))
		logger.Info("ticket events forwarded to broker")
	}
}

func broadcastHandler(b Broadcaster) events.EventHandler {
	return func(ctx context.Context, e events.Event) error {
		name, ok := realtimeEvents[e.Type]
		if !ok {
			return nil
		}
		return b.Broadcast(ctx, name, wirePayload(e))
	}
}

func forwardHandler(f Forwarder) events.EventHandler {
	return func(ctx context.Context, e events.Event) error {
		e.Payload = wirePayload(e)
		return f.Handle(ctx, e)
	}
}

// wirePayload converts an event payload to its client-facing form. Deleted
// tickets are announced by id alone.
func wirePayload(e events.Event) any {
	switch p := e.Payload.(type) {
	case *domain.HydratedFeedback:
		return dto.NewFeedbackResponse(p)
	case events.TicketDeletedPayload:
		return p.ID
	default:
		return nil
	}
}

// RunRelay keeps the redis relay subscribed until ctx ends.
func RunRelay(ctx context.Context, relay *realtime.RedisRelay, logger *zap.Logger) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("realtime relay stopped, retrying", zap.Error(err), zap.Duration("delay", relayRetryDelay))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRetryDelay):
		}
	}
}
