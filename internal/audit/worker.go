package audit

import (
	"context"
	"log/slog"
)

// Sink receives every event the worker drains. The store is always a sink;
// Kafka is added when brokers are configured.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Worker consumes audit events from the publisher and fans them out. Sink
// failures are logged and swallowed; the trail is best-effort by contract.
type Worker struct {
	inbox  <-chan Event
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			for _, sink := range w.sinks {
				if err := sink.Append(ctx, event); err != nil {
					w.logger.ErrorContext(ctx, "audit sink append failed",
						"error", err,
						"action", event.Action,
					)
				}
			}
		}
	}
}
