// Package batch collects items pushed by producers into time- and size-bounded windows.
package batch

import (
	"context"
	"sync"
	"time"
)

// Default window settings used when Options leaves them zero.
const (
	DefaultFlushInterval = time.Second
	DefaultPollDelay     = 10 * time.Millisecond
)

// Options configures the drain window.
type Options struct {
	// FlushInterval is the maximum lifetime of a window.
	FlushInterval time.Duration
	// MaxBatchSize closes the window once the batch grows past it. Zero means no limit.
	MaxBatchSize int
	// PollDelay is how long the drainer sleeps when the queue is empty.
	PollDelay time.Duration
}

// Accumulator is an unbounded FIFO queue with a single windowed drainer.
// Push never blocks; backpressure is the producer's concern.
type Accumulator[T any] struct {
	mu    sync.Mutex
	items []T
	opts  Options
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator[T any](opts Options) *Accumulator[T] {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.PollDelay <= 0 {
		opts.PollDelay = DefaultPollDelay
	}
	return &Accumulator[T]{opts: opts}
}

// Options returns the effective window settings.
func (a *Accumulator[T]) Options() Options {
	return a.opts
}

// Push appends items to the queue.
func (a *Accumulator[T]) Push(items ...T) {
	a.mu.Lock()
	a.items = append(a.items, items...)
	a.mu.Unlock()
}

// TryRead pops the oldest item without waiting.
func (a *Accumulator[T]) TryRead() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	if len(a.items) == 0 {
		return zero, false
	}
	item := a.items[0]
	a.items[0] = zero
	a.items = a.items[1:]
	if len(a.items) == 0 {
		a.items = nil
	}
	return item, true
}

// Len returns the number of queued items.
func (a *Accumulator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Drain collects one window. The window closes when FlushInterval has elapsed
// since it opened, when the batch grows past MaxBatchSize, or when ctx is done.
// The returned batch may be empty.
func (a *Accumulator[T]) Drain(ctx context.Context) []T {
	start := time.Now()
	var batch []T

	for {
		if ctx.Err() != nil || a.windowClosed(start, len(batch)) {
			return batch
		}

		if item, ok := a.TryRead(); ok {
			batch = append(batch, item)
			continue
		}

		timer := time.NewTimer(a.opts.PollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return batch
		case <-timer.C:
		}
	}
}

// drainAll empties the queue regardless of window limits.
func (a *Accumulator[T]) drainAll() []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	rest := a.items
	a.items = nil
	return rest
}

func (a *Accumulator[T]) windowClosed(start time.Time, size int) bool {
	if time.Since(start) >= a.opts.FlushInterval {
		return true
	}
	return a.opts.MaxBatchSize > 0 && size > a.opts.MaxBatchSize
}
