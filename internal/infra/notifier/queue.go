package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"grantpath/internal/resilience/fallback"
)

// ErrQueueFull is returned when the deferred queue cannot accept another
// message; the gateway then surfaces Unavailable for that call.
var ErrQueueFull = errors.New("notifier: deferred queue full")

// DeferredQueue holds messages that could not be delivered while the webhook
// was degraded. A background worker drains it under the shared rate limit
// once deliveries start succeeding again.
type DeferredQueue struct {
	sender  Sender
	limiter *RateLimiter
	ch      chan Message
	logger  *slog.Logger
	pending atomic.Int64
}

// NewDeferredQueue creates a queue with the given capacity.
func NewDeferredQueue(sender Sender, capacity int, logger *slog.Logger) *DeferredQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferredQueue{
		sender:  sender,
		limiter: NewRateLimiter(1.0, 1),
		ch:      make(chan Message, capacity),
		logger:  logger,
	}
}

// Enqueue adds a message without blocking.
func (q *DeferredQueue) Enqueue(msg Message) error {
	select {
	case q.ch <- msg:
		q.pending.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued messages.
func (q *DeferredQueue) Pending() int {
	return int(q.pending.Load())
}

// Start drains the queue until ctx is cancelled. Failed deliveries re-queue
// at the back so one dead message cannot wedge the worker.
func (q *DeferredQueue) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.ch:
			q.pending.Add(-1)
			if err := q.limiter.Allow(ctx); err != nil {
				return
			}
			if err := q.sender.Send(ctx, msg); err != nil {
				q.logger.Warn("deferred notification failed, re-queueing",
					slog.String("subject", msg.Subject),
					slog.Any("error", err))
				if requeueErr := q.Enqueue(msg); requeueErr != nil {
					q.logger.Error("deferred notification dropped",
						slog.String("subject", msg.Subject))
				}
			}
		}
	}
}

// Fallback is the notification degraded substitute: defer the message for
// later delivery and report a deferred receipt.
func (q *DeferredQueue) Fallback() fallback.Func {
	return func(_ context.Context, _ string, payload any) (any, error) {
		msg, ok := payload.(Message)
		if !ok {
			return nil, fmt.Errorf("notifier fallback: unexpected payload %T", payload)
		}
		if err := q.Enqueue(msg); err != nil {
			return nil, err
		}
		return DeliveryReceipt{Deferred: true}, nil
	}
}
