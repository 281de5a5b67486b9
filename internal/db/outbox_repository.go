package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// OutboxRepository stores outbox_account_payments rows.
// Calls made inside WithTransaction use the caller's transaction.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{
		pool: pool,
	}
}

// Insert stages entities
func (r *OutboxRepository) Insert(ctx context.Context, entities []models.OutboxAccountPaymentsEntity) error {
	if len(entities) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entities {
		status := e.Status
		if status == "" {
			status = models.OutboxStatusPending
		}
		batch.Queue(`
			INSERT INTO outbox_account_payments (id, aggregate_id, event_type, payload, partition_key, status, retry_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, e.AggregateID, string(e.EventType), e.Payload, e.PartitionKey, string(status), e.RetryCount)
	}

	results := conn(ctx, r.pool).SendBatch(ctx, batch)
	for range entities {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert outbox row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to insert outbox rows: %w", err)
	}
	return nil
}

// LockUnsent selects up to limit rows that are pending, or failed with fewer
// than maxRetries attempts, oldest first. Rows locked by another relay are
// skipped. Must be called inside a transaction.
func (r *OutboxRepository) LockUnsent(ctx context.Context, limit, maxRetries int) ([]models.OutboxAccountPaymentsEntity, error) {
	if getTx(ctx) == nil {
		return nil, fmt.Errorf("locking outbox rows requires a transaction")
	}

	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, aggregate_id, event_type, payload, partition_key, status, retry_count, created_at, sent_at
		FROM outbox_account_payments
		WHERE status = 'PENDING' OR (status = 'FAILED' AND retry_count < $2)
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entities []models.OutboxAccountPaymentsEntity
	for rows.Next() {
		var (
			e         models.OutboxAccountPaymentsEntity
			eventType string
			status    string
		)
		err := rows.Scan(&e.ID, &e.AggregateID, &eventType, &e.Payload, &e.PartitionKey, &status, &e.RetryCount, &e.CreatedAt, &e.SentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		e.EventType = models.EventType(eventType)
		e.Status = models.OutboxStatus(status)
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}

	return entities, nil
}

// MarkSent records a successful publish
func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE outbox_account_payments
		SET status = 'SENT', sent_at = $2
		WHERE id = $1
	`, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row %s sent: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed publish attempt
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE outbox_account_payments
		SET status = 'FAILED', retry_count = retry_count + 1
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row %s failed: %w", id, err)
	}
	return nil
}

// CountByStatus reports how many rows are in each status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT status, count(*)
		FROM outbox_account_payments
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox rows: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OutboxStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outbox count: %w", err)
		}
		counts[models.OutboxStatus(status)] = count
	}
	return counts, rows.Err()
}
