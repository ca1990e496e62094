package workers

import (
	"context"
	"log/slog"

	"file-renamer/contract"
	"file-renamer/domain"
)

// Ensure *InboundWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*InboundWorker)(nil)

// InboundWorker drains one shard of inbound events, one event at a time.
type InboundWorker struct {
	events  chan domain.InboundEvent
	handler contract.InboundHandler
	log     *slog.Logger
}

func NewInboundWorker(
	events chan domain.InboundEvent,
	handler contract.InboundHandler,
	log *slog.Logger) *InboundWorker {
	return &InboundWorker{
		events:  events,
		handler: handler,
		log:     log,
	}
}

func (w *InboundWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping inbound worker")
			return ctx.Err()
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.handler.Handle(ctx, evt)
		}
	}
}
