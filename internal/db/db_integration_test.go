package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/stream"
)

type memoryDeadLetters struct {
	mu      sync.Mutex
	letters []models.DeadLetter
}

func (m *memoryDeadLetters) Put(ctx context.Context, letter models.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, letter)
	return nil
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "ledger",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	return container, fmt.Sprintf("postgres://testuser:testpass@%s:%s/ledger?sslmode=disable", host, port.Port())
}

func setupDatabase(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, url := startPostgresContainer(t, ctx)
	t.Cleanup(func() { container.Terminate(ctx) })

	if err := Migrate(url); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	pool, err := NewPool(ctx, config.PostgresConfig{URL: url, MaxConns: 10, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func testEvent(key string, day models.Date) models.PaymentOperationEvent {
	return models.NewPaymentOperationEvent(models.EventTypeAdded, models.FinancialTransaction{
		Key:              key,
		PaymentAccountID: "acc-1",
		CategoryID:       "food",
		Amount:           decimal.RequireFromString("12.34"),
		OperationDay:     day,
		TransactionType:  models.TransactionTypePayment,
	}, "corr-"+key)
}

func TestEventStore_AppendReadAndList(t *testing.T) {
	pool := setupDatabase(t)
	ctx := context.Background()
	deadLetters := &memoryDeadLetters{}
	store := NewEventStore(pool.Pool, deadLetters)

	march := models.NewDate(2024, time.March, 5)
	january := models.NewDate(2024, time.January, 20)
	marchStream := stream.For("acc-1", march)

	first, err := store.AppendBatch(ctx, marchStream, []models.PaymentOperationEvent{
		testEvent("op-1", march),
		testEvent("op-2", march),
	}, "Added_op-1")
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if first.NextExpectedVersion != 1 {
		t.Errorf("expected version 1, got %d", first.NextExpectedVersion)
	}

	second, err := store.AppendBatch(ctx, marchStream, []models.PaymentOperationEvent{testEvent("op-3", march)}, "Added_op-3")
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if second.NextExpectedVersion != 2 || second.LogPosition <= first.LogPosition {
		t.Errorf("expected version 2 after position %d, got %+v", first.LogPosition, second)
	}

	if _, err := store.AppendBatch(ctx, stream.For("acc-1", january), []models.PaymentOperationEvent{testEvent("op-0", january)}, "Added_op-0"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	events, err := store.ReadAll(ctx, marchStream)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"op-1", "op-2", "op-3"} {
		if events[i].Payload.Key != want {
			t.Errorf("event %d: expected %s, got %s", i, want, events[i].Payload.Key)
		}
	}
	if !events[0].Payload.Amount.Equal(decimal.RequireFromString("12.34")) || events[0].Payload.OperationDay != march {
		t.Errorf("payload not preserved: %+v", events[0].Payload)
	}

	streams, err := store.Streams(ctx, "acc-1")
	if err != nil {
		t.Fatalf("failed to list streams: %v", err)
	}
	if len(streams) != 2 || streams[0] != stream.For("acc-1", january) || streams[1] != marchStream {
		t.Errorf("expected january then march, got %v", streams)
	}

	if err := store.SendToDeadLetter(ctx, testEvent("op-9", march), errors.New("boom")); err != nil {
		t.Fatalf("failed to dead-letter: %v", err)
	}
	if len(deadLetters.letters) != 1 || deadLetters.letters[0].StreamID != marchStream || deadLetters.letters[0].Error != "boom" {
		t.Errorf("unexpected dead letters: %+v", deadLetters.letters)
	}
}

func TestEventStore_ConcurrentAppendsKeepVersionsDense(t *testing.T) {
	pool := setupDatabase(t)
	ctx := context.Background()
	store := NewEventStore(pool.Pool, &memoryDeadLetters{})

	day := models.NewDate(2024, time.May, 1)
	streamID := stream.For("acc-1", day)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("op-%d", i)
			if _, err := store.AppendBatch(ctx, streamID, []models.PaymentOperationEvent{testEvent(key, day)}, "Added_"+key); err != nil {
				t.Errorf("append %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	events, err := store.ReadAll(ctx, streamID)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if len(events) != 8 {
		t.Errorf("expected 8 events, got %d", len(events))
	}
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	pool := setupDatabase(t)
	ctx := context.Background()
	repo := NewOutboxRepository(pool.Pool)
	txManager := NewTransactionManager(pool.Pool)

	pending := models.OutboxAccountPaymentsEntity{
		ID:           uuid.New(),
		AggregateID:  "op-1",
		EventType:    models.EventTypeAdded,
		Payload:      []byte(`{"id":"e-1"}`),
		PartitionKey: "acc-1",
	}
	exhausted := models.OutboxAccountPaymentsEntity{
		ID:           uuid.New(),
		AggregateID:  "op-2",
		EventType:    models.EventTypeAdded,
		Payload:      []byte(`{"id":"e-2"}`),
		PartitionKey: "acc-1",
		Status:       models.OutboxStatusFailed,
		RetryCount:   5,
	}

	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return repo.Insert(txCtx, []models.OutboxAccountPaymentsEntity{pending, exhausted})
	})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	if _, err := repo.LockUnsent(ctx, 10, 5); err == nil {
		t.Error("expected error locking outside a transaction")
	}

	err = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rows, err := repo.LockUnsent(txCtx, 10, 5)
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].ID != pending.ID {
			t.Errorf("expected only the pending row, got %+v", rows)
			return nil
		}
		if rows[0].Status != models.OutboxStatusPending || !strings.Contains(string(rows[0].Payload), "e-1") {
			t.Errorf("unexpected row contents: %+v", rows[0])
		}
		if err := repo.MarkFailed(txCtx, pending.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed first relay pass: %v", err)
	}

	err = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rows, err := repo.LockUnsent(txCtx, 10, 5)
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].RetryCount != 1 || rows[0].Status != models.OutboxStatusFailed {
			t.Errorf("expected failed row with one retry, got %+v", rows)
			return nil
		}
		return repo.MarkSent(txCtx, pending.ID, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("failed second relay pass: %v", err)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if counts[models.OutboxStatusSent] != 1 || counts[models.OutboxStatusFailed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
