package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives audit events. The memory store keeps them in process; the
// kafka sink ships them to a topic.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher decouples request handling from sink latency: Emit queues without
// blocking and the Worker drains. A full buffer drops the event rather than
// stalling a login.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit queues an event, stamping the time if unset.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"account_id", event.AccountID,
		)
	}
}

// Events exposes the queue for the worker.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}
