// Package metrics holds the Prometheus collectors of the ledger pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledger"

var (
	// EventsAppended counts events written to the event store, by event type.
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_appended_total",
		Help:      "Events appended to account-month streams.",
	}, []string{"event_type"})

	// AppendFailures counts stream groups whose append failed.
	AppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "append_failures_total",
		Help:      "Stream group appends that failed.",
	})

	// DeadLetters counts events handed to the dead-letter store.
	DeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_total",
		Help:      "Events sent to the dead-letter store.",
	})

	// BatchSize observes drained batch sizes per queue.
	BatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Number of events in a drained batch window.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"queue"})

	// ConsumerPolls counts poll cycles by topic and outcome (message, empty, error).
	ConsumerPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_polls_total",
		Help:      "Bus poll cycles.",
	}, []string{"topic", "result"})

	// DecodeFailures counts dropped malformed bus messages.
	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_failures_total",
		Help:      "Bus messages dropped because they could not be decoded.",
	}, []string{"topic"})

	// OutboxProcessed counts outbox rows by resulting status.
	OutboxProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_processed_total",
		Help:      "Outbox rows processed by the relay.",
	}, []string{"status"})

	// ReplayDuration observes history replay latency.
	ReplayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "history_replay_duration_seconds",
		Help:      "Time spent replaying one account history.",
		Buckets:   prometheus.DefBuckets,
	})
)
