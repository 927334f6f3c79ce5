// Package audit is the append-only trail of lifecycle events. Emitting is
// fire-and-forget: a full buffer or failing sink never aborts the operation
// that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store persists events and serves them to reporting consumers.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

const defaultBuffer = 256

// Publisher hands events to the background worker through a buffered channel.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, defaultBuffer),
		logger: logger,
	}
}

// Emit queues an event. Events are dropped (and logged) when the buffer is
// full rather than blocking the caller.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", event.Action,
			"certificate_id", event.CertificateID,
		)
	}
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }
