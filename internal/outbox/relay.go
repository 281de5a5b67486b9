// Package outbox relays staged payment events from PostgreSQL to the message bus.
package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/metrics"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// Store is the outbox table as seen by the relay.
type Store interface {
	LockUnsent(ctx context.Context, limit, maxRetries int) ([]models.OutboxAccountPaymentsEntity, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Options tunes the relay.
type Options struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// Relay publishes unsent outbox rows on every tick.
type Relay struct {
	store     Store
	txManager domain.TransactionManager
	publisher domain.Publisher
	opts      Options
}

// NewRelay creates a new outbox relay
func NewRelay(store Store, txManager domain.TransactionManager, publisher domain.Publisher, opts Options) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	return &Relay{
		store:     store,
		txManager: txManager,
		publisher: publisher,
		opts:      opts,
	}
}

// Run processes the outbox every interval until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	log.Printf("Outbox relay started: interval=%s, batch_size=%d, max_retries=%d",
		r.opts.Interval, r.opts.BatchSize, r.opts.MaxRetries)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Error processing outbox: %v", err)
			}
		}
	}
}

// ProcessOnce publishes one batch inside a transaction and returns how many
// rows were sent and how many failed.
func (r *Relay) ProcessOnce(ctx context.Context) (int, int, error) {
	var sent, failed int

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rows, err := r.store.LockUnsent(txCtx, r.opts.BatchSize, r.opts.MaxRetries)
		if err != nil {
			return err
		}

		for _, row := range rows {
			if err := r.publish(txCtx, row); err != nil {
				log.Printf("Failed to publish outbox row: id=%s, operationKey=%s, attempt=%d, error=%v",
					row.ID, row.AggregateID, row.RetryCount+1, err)
				if err := r.store.MarkFailed(txCtx, row.ID); err != nil {
					return err
				}
				metrics.OutboxProcessed.WithLabelValues(string(models.OutboxStatusFailed)).Inc()
				failed++
				continue
			}

			if err := r.store.MarkSent(txCtx, row.ID, time.Now().UTC()); err != nil {
				return err
			}
			metrics.OutboxProcessed.WithLabelValues(string(models.OutboxStatusSent)).Inc()
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to relay outbox: %w", err)
	}

	if sent > 0 || failed > 0 {
		log.Printf("Outbox processed: sent=%d, failed=%d", sent, failed)
	}
	return sent, failed, nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxAccountPaymentsEntity) error {
	headers := map[string]string{
		"outbox_id":    row.ID.String(),
		"event_type":   string(row.EventType),
		"aggregate_id": row.AggregateID,
	}
	return r.publisher.Publish(ctx, row.PartitionKey, row.Payload, headers)
}
