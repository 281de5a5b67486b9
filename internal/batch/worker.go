package batch

import (
	"context"
	"log"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/metrics"
)

// Handler receives every non-empty batch.
type Handler[T any] func(ctx context.Context, batch []T)

// Worker drains an accumulator window after window until its context is cancelled.
type Worker[T any] struct {
	name   string
	acc    *Accumulator[T]
	handle Handler[T]
}

// NewWorker creates a worker; name labels logs and metrics.
func NewWorker[T any](name string, acc *Accumulator[T], handle Handler[T]) *Worker[T] {
	return &Worker[T]{
		name:   name,
		acc:    acc,
		handle: handle,
	}
}

// Run blocks until ctx is cancelled. Items still queued at cancellation are
// handed over in one final batch with a context detached from ctx.
func (w *Worker[T]) Run(ctx context.Context) error {
	opts := w.acc.Options()
	log.Printf("Batch worker started: queue=%s, flush_interval=%s, max_batch_size=%d",
		w.name, opts.FlushInterval, opts.MaxBatchSize)

	for {
		batch := w.acc.Drain(ctx)

		if ctx.Err() != nil {
			batch = append(batch, w.acc.drainAll()...)
			if len(batch) > 0 {
				log.Printf("Batch worker flushing on shutdown: queue=%s, size=%d", w.name, len(batch))
				w.deliver(context.WithoutCancel(ctx), batch)
			}
			log.Printf("Batch worker stopped: queue=%s", w.name)
			return nil
		}

		if len(batch) > 0 {
			w.deliver(ctx, batch)
		}
	}
}

func (w *Worker[T]) deliver(ctx context.Context, batch []T) {
	metrics.BatchSize.WithLabelValues(w.name).Observe(float64(len(batch)))
	w.handle(ctx, batch)
}
