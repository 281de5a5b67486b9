package domain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// EventWriter appends events to account-month streams.
type EventWriter interface {
	// AppendBatch writes events to streamID as one ordered append.
	// typeTag is stored as the append's type metadata.
	AppendBatch(ctx context.Context, streamID string, events []models.PaymentOperationEvent, typeTag string) (models.WriteResult, error)

	// SendToDeadLetter parks an event the pipeline could not deliver.
	SendToDeadLetter(ctx context.Context, event models.PaymentOperationEvent, cause error) error
}

// EventReader reads streams back for replay.
type EventReader interface {
	// ReadAll returns the events of streamID in append order.
	ReadAll(ctx context.Context, streamID string) ([]models.PaymentOperationEvent, error)

	// Streams lists the streams of an account, oldest month first.
	Streams(ctx context.Context, accountID string) ([]string, error)
}

// AccountLookup resolves handbook accounts for transfer comments.
type AccountLookup interface {
	GetByID(ctx context.Context, accountID string) (models.AccountInfo, error)
}

// CategoryLookup resolves the balance direction of a category.
type CategoryLookup interface {
	IsIncomeCategory(ctx context.Context, categoryID string) (bool, error)
}

// HistoryStore keeps the replayed history of an account.
type HistoryStore interface {
	// ReplaceAll swaps the account's history for records.
	ReplaceAll(ctx context.Context, accountID string, records []models.HistoryRecord) error
}

// AccountStore owns the mutable balance of payment accounts.
type AccountStore interface {
	InitialBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) error
}

// ProcessedMarker remembers consumed event ids to make consumers idempotent.
type ProcessedMarker interface {
	IsProcessed(ctx context.Context, eventID string) bool
	MarkProcessed(ctx context.Context, eventID string)
}

// Publisher sends outbox payloads to the message bus.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte, headers map[string]string) error
	Close() error
}

// OutboxWriter stages events inside the caller's transaction.
type OutboxWriter interface {
	Insert(ctx context.Context, entities []models.OutboxAccountPaymentsEntity) error
}

// TransactionManager defines the interface for managing database transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
