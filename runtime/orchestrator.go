// Package runtime drives the conversation with each user and runs the
// rename pipeline. It wires the supervised workers without owning any transport.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"file-renamer/contract"
)

type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	dispatcher *Dispatcher
	background []contract.Worker
	flushers   []contract.Flusher
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, dispatcher *Dispatcher) *Orchestrator {
	return &Orchestrator{log: log, supervisor: supervisor, dispatcher: dispatcher}
}

// Add registers workers that run next to the inbound shards
// (activity logger, thumbnailer, expiry sweeps, health sampling, transports).
func (o *Orchestrator) Add(workers ...contract.Worker) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.background = append(o.background, workers...)
	return o
}

// Flush registers components flushed once the last pipeline has returned.
func (o *Orchestrator) Flush(flushers ...contract.Flusher) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushers = append(o.flushers, flushers...)
	return o
}

// Start blocks until ctx is cancelled and every worker and in-flight
// pipeline has returned.
func (o *Orchestrator) Start(ctx context.Context) {
	shards := o.dispatcher.Workers()

	o.mu.Lock()
	o.supervisor.Add(shards...)
	o.supervisor.Add(o.background...)
	count := len(shards) + len(o.background)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", count, "shards", len(shards))
	o.supervisor.Run(ctx)

	o.log.Info("Waiting for in-flight pipelines")
	o.dispatcher.Wait()

	o.mu.Lock()
	flushers := o.flushers
	o.mu.Unlock()
	for _, f := range flushers {
		f.Flush()
	}
}

// Stop cancels the supervised workers; Start returns once they are done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
