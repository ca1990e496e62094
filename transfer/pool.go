package transfer

import (
	"context"
	"sync/atomic"

	"file-renamer/observability"

	"golang.org/x/sync/semaphore"
)

// Pool is a fixed number of transfer slots shared by every user.
type Pool struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted
	inUse    atomic.Int64
	metrics  *observability.Metrics
}

func NewPool(name string, capacity int, metrics *observability.Metrics) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		metrics:  metrics,
	}
}

// Acquire blocks until a slot is free or ctx ends.
// The returned release func must be called exactly once; it is safe to defer.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.track(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.track(-1)
			p.sem.Release(1)
		}
	}, nil
}

func (p *Pool) InUse() int64 { return p.inUse.Load() }

func (p *Pool) Capacity() int64 { return p.capacity }

func (p *Pool) Name() string { return p.name }

func (p *Pool) track(delta int64) {
	n := p.inUse.Add(delta)
	if p.metrics != nil {
		p.metrics.SlotsInUse.WithLabelValues(p.name).Set(float64(n))
	}
}
