package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/metrics"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// Sink accepts decoded events; batch.Accumulator satisfies it.
type Sink interface {
	Push(events ...models.PaymentOperationEvent)
}

// LoopState is the lifecycle state of a consumer loop.
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopPolling
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopPolling:
		return "polling"
	case LoopStopped:
		return "stopped"
	}
	return fmt.Sprintf("LoopState(%d)", int32(s))
}

// LoopOptions tunes a consumer loop.
type LoopOptions struct {
	// PollDelay is waited after every iteration.
	PollDelay time.Duration
	// RetryDelay is waited before recreating a dead consumer and after a failed cycle.
	RetryDelay time.Duration
	// MaxMessagesPerCycle caps how many messages one consume cycle pulls.
	MaxMessagesPerCycle int
}

// Loop repeatedly polls one consumer and pushes decoded events into a sink.
type Loop struct {
	spec     TopicSpec
	registry *Registry
	sink     Sink
	opts     LoopOptions

	consumer Consumer
	state    atomic.Int32
	cycles   atomic.Int64
}

// NewLoop creates a loop for spec. consumer may be nil; the loop then
// creates one through registry on its first iteration.
func NewLoop(spec TopicSpec, registry *Registry, consumer Consumer, sink Sink, opts LoopOptions) *Loop {
	if opts.PollDelay <= 0 {
		opts.PollDelay = 100 * time.Millisecond
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.MaxMessagesPerCycle <= 0 {
		opts.MaxMessagesPerCycle = 1
	}
	return &Loop{
		spec:     spec,
		registry: registry,
		consumer: consumer,
		sink:     sink,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Cycles returns the number of completed consume cycles.
func (l *Loop) Cycles() int64 {
	return l.cycles.Load()
}

// Run polls until ctx is cancelled. It only returns nil.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("Consumer loop started: topic=%s, type=%s", l.spec.Name, l.spec.ConsumerType)
	defer func() {
		l.state.Store(int32(LoopStopped))
		log.Printf("Consumer loop stopped: topic=%s, cycles=%d", l.spec.Name, l.Cycles())
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if l.consumer == nil || !l.consumer.Alive() {
			l.state.Store(int32(LoopIdle))
			log.Printf("Consumer not available: topic=%s, retrying in %s", l.spec.Name, l.opts.RetryDelay)
			if !sleep(ctx, l.opts.RetryDelay) {
				return nil
			}
			l.reconnect(ctx)
			continue
		}

		if len(l.consumer.Subscriptions()) > 0 {
			l.state.Store(int32(LoopPolling))
			if err := l.consumeOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("Consume cycle failed: topic=%s, error=%v", l.spec.Name, err)
				if !sleep(ctx, l.opts.RetryDelay) {
					return nil
				}
			}
		} else {
			l.state.Store(int32(LoopIdle))
		}

		if !sleep(ctx, l.opts.PollDelay) {
			return nil
		}
	}
}

// consumeOnce pulls messages until the consumer is empty, the per-cycle cap
// is hit or ctx is cancelled. A message received after cancellation is left
// unsettled so the broker redelivers it.
func (l *Loop) consumeOnce(ctx context.Context) error {
	defer l.cycles.Add(1)

	for i := 0; i < l.opts.MaxMessagesPerCycle; i++ {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := l.consumer.PollOnce(ctx)
		if err != nil {
			metrics.ConsumerPolls.WithLabelValues(l.spec.Name, "error").Inc()
			return err
		}
		if msg == nil {
			metrics.ConsumerPolls.WithLabelValues(l.spec.Name, "empty").Inc()
			return nil
		}

		metrics.ConsumerPolls.WithLabelValues(l.spec.Name, "message").Inc()
		if ctx.Err() != nil {
			log.Printf("Leaving message unacknowledged on shutdown: topic=%s, key=%s", l.spec.Name, msg.Key)
			return nil
		}
		l.dispatch(ctx, msg)
	}
	return nil
}

func (l *Loop) dispatch(ctx context.Context, msg *Message) {
	var event models.PaymentOperationEvent
	err := json.Unmarshal(msg.Body, &event)
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		metrics.DecodeFailures.WithLabelValues(l.spec.Name).Inc()
		log.Printf("Dropping malformed message: topic=%s, key=%s, error=%v", l.spec.Name, msg.Key, err)
		if rerr := msg.Reject(ctx); rerr != nil {
			log.Printf("Failed to reject message: topic=%s, key=%s, error=%v", l.spec.Name, msg.Key, rerr)
		}
		return
	}

	l.sink.Push(event)

	if err := msg.Ack(ctx); err != nil {
		log.Printf("Failed to ack message: topic=%s, eventId=%s, error=%v", l.spec.Name, event.ID, err)
	}
}

// reconnect replaces the current consumer with a fresh one from the registry.
func (l *Loop) reconnect(ctx context.Context) {
	if l.consumer != nil {
		l.registry.Evict(l.spec.Name, l.consumer)
		l.consumer = nil
	}

	consumer, err := l.registry.CreateAndSubscribe(ctx, l.spec)
	if err != nil {
		log.Printf("Failed to create consumer: topic=%s, error=%v", l.spec.Name, err)
		return
	}
	l.consumer = consumer
	log.Printf("Consumer created: topic=%s", l.spec.Name)
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
