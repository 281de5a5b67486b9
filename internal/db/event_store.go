package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/stream"
)

// DeadLetterSink stores events that could not be appended.
type DeadLetterSink interface {
	Put(ctx context.Context, letter models.DeadLetter) error
}

// EventStore implements domain.EventWriter and domain.EventReader on PostgreSQL.
// Every stream row carries its current version; appends lock that row, so
// appends to one stream are serialized while different streams proceed in parallel.
type EventStore struct {
	pool        *pgxpool.Pool
	txManager   *TransactionManager
	deadLetters DeadLetterSink
}

// NewEventStore creates a new EventStore
func NewEventStore(pool *pgxpool.Pool, deadLetters DeadLetterSink) *EventStore {
	return &EventStore{
		pool:        pool,
		txManager:   NewTransactionManager(pool),
		deadLetters: deadLetters,
	}
}

// AppendBatch appends events to streamID in order as one transaction.
// The stream is created on first append.
func (s *EventStore) AppendBatch(ctx context.Context, streamID string, events []models.PaymentOperationEvent, typeTag string) (models.WriteResult, error) {
	if len(events) == 0 {
		return models.WriteResult{}, fmt.Errorf("no events to append to %s", streamID)
	}

	accountID, periodStart, err := stream.Parse(streamID)
	if err != nil {
		return models.WriteResult{}, fmt.Errorf("invalid stream id: %w", err)
	}

	var result models.WriteResult
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		q := conn(txCtx, s.pool)

		_, err := q.Exec(txCtx, `
			INSERT INTO ledger_streams (stream_id, account_id, period_start)
			VALUES ($1, $2, $3)
			ON CONFLICT (stream_id) DO NOTHING
		`, streamID, accountID, periodStart.Time())
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}

		var version int64
		err = q.QueryRow(txCtx, `SELECT version FROM ledger_streams WHERE stream_id = $1 FOR UPDATE`, streamID).Scan(&version)
		if err != nil {
			return fmt.Errorf("failed to lock stream: %w", err)
		}

		batch := &pgx.Batch{}
		for _, event := range events {
			version++
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
			}
			metadata, err := json.Marshal(event.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata of %s: %w", event.ID, err)
			}
			batch.Queue(`
				INSERT INTO ledger_events (stream_id, stream_version, event_id, event_type, type_tag, payload, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING position
			`, streamID, version, event.ID, string(event.EventType), typeTag, payload, metadata)
		}

		results := q.SendBatch(txCtx, batch)
		var position int64
		for range events {
			if err := results.QueryRow().Scan(&position); err != nil {
				results.Close()
				return fmt.Errorf("failed to insert event: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to insert events: %w", err)
		}

		_, err = q.Exec(txCtx, `UPDATE ledger_streams SET version = $2 WHERE stream_id = $1`, streamID, version)
		if err != nil {
			return fmt.Errorf("failed to advance stream version: %w", err)
		}

		result = models.WriteResult{NextExpectedVersion: version, LogPosition: position}
		return nil
	})
	if err != nil {
		return models.WriteResult{}, fmt.Errorf("failed to append to stream %s: %w", streamID, err)
	}

	return result, nil
}

// ReadAll returns the events of streamID in append order
func (s *EventStore) ReadAll(ctx context.Context, streamID string) ([]models.PaymentOperationEvent, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `
		SELECT payload
		FROM ledger_events
		WHERE stream_id = $1
		ORDER BY stream_version
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []models.PaymentOperationEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		var event models.PaymentOperationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode event in %s: %w", streamID, err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Streams lists the streams of accountID, oldest month first
func (s *EventStore) Streams(ctx context.Context, accountID string) ([]string, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `
		SELECT stream_id
		FROM ledger_streams
		WHERE account_id = $1
		ORDER BY period_start
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var streams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stream id: %w", err)
		}
		streams = append(streams, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating streams: %w", err)
	}

	return streams, nil
}

// SendToDeadLetter parks event with the cause of its failure
func (s *EventStore) SendToDeadLetter(ctx context.Context, event models.PaymentOperationEvent, cause error) error {
	letter := models.DeadLetter{
		Event:    event,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		letter.Error = cause.Error()
	}
	if event.Payload.PaymentAccountID != "" && !event.Payload.OperationDay.IsZero() {
		letter.StreamID = stream.For(event.Payload.PaymentAccountID, event.Payload.OperationDay)
	}

	if err := s.deadLetters.Put(ctx, letter); err != nil {
		return fmt.Errorf("failed to store dead letter %s: %w", event.ID, err)
	}
	return nil
}
