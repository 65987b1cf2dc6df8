package workers

import (
	"context"
	"log/slog"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/observability"
	"time"
)

// Delivery is one message waiting to be pushed to one recipient connection.
type Delivery struct {
	Recipient domain.UserID
	Message   domain.Message
}

// Pusher drains the outbox of a single connection, one push at a time.
// Pushes leave in enqueue order. The first failed push stops the pusher:
// the registry has dropped the connection by then and whatever is queued stays pending.
type Pusher struct {
	log         *slog.Logger
	connID      domain.ConnectionID
	registry    contract.IRegistry
	outbox      *Outbox[Delivery]
	onDelivered func(Delivery)
	pushTimeout time.Duration
}

func NewPusher(
	log *slog.Logger,
	connID domain.ConnectionID,
	registry contract.IRegistry,
	onDelivered func(Delivery),
	pushTimeout time.Duration,
) *Pusher {
	return &Pusher{
		log:         log,
		connID:      connID,
		registry:    registry,
		outbox:      NewOutbox[Delivery](16),
		onDelivered: onDelivered,
		pushTimeout: pushTimeout,
	}
}

func (p *Pusher) Enqueue(d Delivery) bool {
	return p.outbox.Push(d)
}

// Stop discards queued deliveries and ends Run.
func (p *Pusher) Stop() {
	if discarded := p.outbox.Close(); discarded > 0 {
		p.log.Debug("Pusher stopped with pending deliveries", "connection_id", p.connID, "pending", discarded)
	}
}

func (p *Pusher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.Stop)
	defer stop()

	for {
		d, ok := p.outbox.Pop()
		if !ok {
			return nil
		}
		if err := p.push(ctx, d); err != nil {
			observability.Pushes.WithLabelValues("failed").Inc()
			p.log.Debug("Push failed, message stays pending",
				"connection_id", p.connID,
				"message_id", d.Message.ID,
				"error", err)
			p.Stop()
			return nil
		}
		observability.Pushes.WithLabelValues("delivered").Inc()
		p.onDelivered(d)
	}
}

func (p *Pusher) push(ctx context.Context, d Delivery) error {
	pushCtx := ctx
	if p.pushTimeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, p.pushTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { observability.PushDuration.Observe(time.Since(start).Seconds()) }()
	return p.registry.Send(pushCtx, p.connID, d.Message)
}
