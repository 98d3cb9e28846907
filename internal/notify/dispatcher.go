// Package notify persists notification intents and pushes them to the
// recipient's realtime room.
package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/config"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/lifecycle"
	"github.com/loopio/feedback-tracker/internal/observability"
	"github.com/loopio/feedback-tracker/internal/realtime"
)

// Store persists one notification and fills in its ID and CreatedAt.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// Pusher delivers an event to a single user's room.
type Pusher interface {
	EmitToUser(ctx context.Context, userID, event string, payload any) error
}

// Batch is the intent list of one mutation together with the context needed
// to reconstruct it from logs.
type Batch struct {
	Mutation lifecycle.Mutation
	TicketID string
	ActorID  string
	Intents  []lifecycle.Intent
}

// Result counts what happened to a batch. Relayed pushes were handed to a
// cross-instance relay and are not counted as Pushed.
type Result struct {
	Persisted int
	Pushed    int
	Relayed   int
	Failed    int
}

// deferredPusher is implemented by pushers whose EmitToUser only publishes.
type deferredPusher interface {
	Deferred() bool
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeStored
	outcomePushed
	outcomeRelayed
)

// Dispatcher writes each intent as its own record and then tries a live push.
// Failures are logged per intent and never returned.
type Dispatcher struct {
	store       Store
	pusher      Pusher
	deferred    bool
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	timeout     time.Duration
}

// NewDispatcher builds a dispatcher. pusher may be nil, in which case records
// are only persisted.
func NewDispatcher(store Store, pusher Pusher, logger *zap.Logger, metrics *observability.Metrics, cfg config.DispatchConfig) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	deferred := false
	if dp, ok := pusher.(deferredPusher); ok {
		deferred = dp.Deferred()
	}
	return &Dispatcher{
		store:       store,
		pusher:      pusher,
		deferred:    deferred,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
		timeout:     cfg.Timeout(),
	}
}

// Dispatch delivers a batch and waits for it to finish. Intents addressed to
// the same recipient are delivered in batch order; different recipients
// proceed concurrently up to the configured limit. The caller's cancellation
// does not abort delivery, only the dispatch timeout does.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) Result {
	if len(batch.Intents) == 0 {
		return Result{}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var persisted, pushed, relayed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, queue := range groupByRecipient(batch.Intents) {
		g.Go(func() error {
			for _, intent := range queue {
				switch d.deliver(gctx, batch, intent) {
				case outcomeFailed:
					failed.Add(1)
				case outcomePushed:
					persisted.Add(1)
					pushed.Add(1)
				case outcomeRelayed:
					persisted.Add(1)
					relayed.Add(1)
				default:
					persisted.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Persisted: int(persisted.Load()),
		Pushed:    int(pushed.Load()),
		Relayed:   int(relayed.Load()),
		Failed:    int(failed.Load()),
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch Batch, intent lifecycle.Intent) outcome {
	n := &domain.Notification{
		RecipientID: intent.RecipientID,
		Message:     intent.Message,
		Type:        intent.Type,
		RelatedLink: intent.Link,
	}
	if err := d.store.Create(ctx, n); err != nil {
		d.metrics.RecordDispatch(string(batch.Mutation), observability.DispatchFailed)
		d.logger.Error("notification dispatch failed",
			zap.String("ticket_id", batch.TicketID),
			zap.String("actor_id", batch.ActorID),
			zap.String("mutation", string(batch.Mutation)),
			zap.String("recipient_id", intent.RecipientID),
			zap.String("message", intent.Message),
			zap.String("type", string(intent.Type)),
			zap.Error(err))
		return outcomeFailed
	}
	d.metrics.RecordDispatch(string(batch.Mutation), observability.DispatchPersisted)

	if d.pusher == nil {
		return outcomeStored
	}
	err := d.pusher.EmitToUser(ctx, intent.RecipientID, realtime.EventNotificationNew, dto.NewNotificationResponse(n))
	switch {
	case err == nil && d.deferred:
		d.metrics.RecordDispatch(string(batch.Mutation), observability.DispatchRelayed)
		return outcomeRelayed
	case err == nil:
		d.metrics.RecordDispatch(string(batch.Mutation), observability.DispatchPushed)
		return outcomePushed
	case errors.Is(err, realtime.ErrNoSubscribers):
		return outcomeStored
	default:
		d.logger.Warn("notification push failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", intent.RecipientID),
			zap.Error(err))
		return outcomeStored
	}
}

// groupByRecipient keeps the first-seen order of recipients and the original
// order of intents within each recipient.
func groupByRecipient(intents []lifecycle.Intent) [][]lifecycle.Intent {
	index := make(map[string]int, len(intents))
	var queues [][]lifecycle.Intent
	for _, in := range intents {
		i, ok := index[in.RecipientID]
		if !ok {
			i = len(queues)
			index[in.RecipientID] = i
			queues = append(queues, nil)
		}
		queues[i] = append(queues[i], in)
	}
	return queues
}
