package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/stream"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/transfer"
)

// PaymentService turns payment commands into events staged in the outbox.
// Events reach the bus through the outbox relay.
type PaymentService struct {
	outbox    domain.OutboxWriter
	txManager domain.TransactionManager
	accounts  domain.AccountLookup
}

// NewPaymentService creates a new payment command service
func NewPaymentService(outbox domain.OutboxWriter, txManager domain.TransactionManager, accounts domain.AccountLookup) *PaymentService {
	return &PaymentService{
		outbox:    outbox,
		txManager: txManager,
		accounts:  accounts,
	}
}

// AddPayment records a new operation. An empty Key is generated.
func (s *PaymentService) AddPayment(ctx context.Context, tx models.FinancialTransaction, correlationID string) (models.PaymentOperationEvent, error) {
	if tx.Key == "" {
		tx.Key = uuid.NewString()
	}
	if tx.TransactionType == "" {
		tx.TransactionType = models.TransactionTypePayment
	}
	if err := validateOperation("add payment", tx); err != nil {
		return models.PaymentOperationEvent{}, err
	}

	event := models.NewPaymentOperationEvent(models.EventTypeAdded, tx, correlationID)
	if err := s.stage(ctx, event); err != nil {
		return models.PaymentOperationEvent{}, err
	}
	return event, nil
}

// UpdatePayment replaces prev with next. When the change moves the operation to
// another account or month, prev is removed from its stream and next is added
// to the new one; otherwise a single Updated event is emitted.
func (s *PaymentService) UpdatePayment(ctx context.Context, prev, next models.FinancialTransaction, correlationID string) ([]models.PaymentOperationEvent, error) {
	next.Key = prev.Key
	if next.TransactionType == "" {
		next.TransactionType = prev.TransactionType
	}
	if err := validateOperation("update payment", prev); err != nil {
		return nil, err
	}
	if err := validateOperation("update payment", next); err != nil {
		return nil, err
	}

	var events []models.PaymentOperationEvent
	if stream.For(prev.PaymentAccountID, prev.OperationDay) != stream.For(next.PaymentAccountID, next.OperationDay) {
		removed := models.NewPaymentOperationEvent(models.EventTypeRemoved, prev, correlationID)
		removed.Previous = &prev
		added := models.NewPaymentOperationEvent(models.EventTypeAdded, next, correlationID)
		events = append(events, removed, added)
	} else {
		updated := models.NewPaymentOperationEvent(models.EventTypeUpdated, next, correlationID)
		updated.Previous = &prev
		events = append(events, updated)
	}

	if err := s.stage(ctx, events...); err != nil {
		return nil, err
	}
	return events, nil
}

// RemovePayment deletes tx
func (s *PaymentService) RemovePayment(ctx context.Context, tx models.FinancialTransaction, correlationID string) (models.PaymentOperationEvent, error) {
	if err := validateOperation("remove payment", tx); err != nil {
		return models.PaymentOperationEvent{}, err
	}

	event := models.NewPaymentOperationEvent(models.EventTypeRemoved, tx, correlationID)
	event.Previous = &tx
	if err := s.stage(ctx, event); err != nil {
		return models.PaymentOperationEvent{}, err
	}
	return event, nil
}

// Transfer builds both legs and stages them in one transaction.
// The correlation id defaults to the transfer key.
func (s *PaymentService) Transfer(
	ctx context.Context,
	sender models.FinancialTransaction,
	recipient models.FinancialTransaction,
	transferID string,
	correlationID string,
) (models.CrossAccountsTransferOperation, error) {
	if sender.PaymentAccountID != "" && sender.PaymentAccountID == recipient.PaymentAccountID {
		return models.CrossAccountsTransferOperation{}, &domain.ValidationError{
			Operation: "transfer",
			Problems:  []string{"sender and recipient must be different accounts"},
		}
	}

	op, err := transfer.NewBuilder(s.accounts).
		WithSender(sender).
		WithRecipient(recipient).
		WithTransferID(transferID).
		Build(ctx)
	if err != nil {
		return models.CrossAccountsTransferOperation{}, err
	}

	if correlationID == "" {
		correlationID = op.Key
	}

	events := make([]models.PaymentOperationEvent, 0, len(op.PaymentOperations))
	for _, leg := range op.PaymentOperations {
		if err := validateOperation("transfer", leg); err != nil {
			return models.CrossAccountsTransferOperation{}, err
		}
		events = append(events, models.NewPaymentOperationEvent(models.EventTypeAdded, leg, correlationID))
	}

	if err := s.stage(ctx, events...); err != nil {
		return models.CrossAccountsTransferOperation{}, err
	}

	log.Printf("Transfer staged: transferId=%s, sender=%s, recipient=%s, amount=%s",
		op.Key, op.Sender().PaymentAccountID, op.Recipient().PaymentAccountID, op.Sender().Amount)
	return op, nil
}

// stage writes events to the outbox inside a single database transaction
func (s *PaymentService) stage(ctx context.Context, events ...models.PaymentOperationEvent) error {
	entities := make([]models.OutboxAccountPaymentsEntity, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}
		entities = append(entities, models.OutboxAccountPaymentsEntity{
			ID:           uuid.New(),
			AggregateID:  event.Payload.Key,
			EventType:    event.EventType,
			Payload:      payload,
			PartitionKey: event.Payload.PaymentAccountID,
			Status:       models.OutboxStatusPending,
		})
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.outbox.Insert(txCtx, entities)
	})
	if err != nil {
		return fmt.Errorf("failed to stage events: %w", err)
	}

	for _, event := range events {
		log.Printf("Event staged: eventId=%s, type=%s, operationKey=%s, accountId=%s",
			event.ID, event.EventType, event.Payload.Key, event.Payload.PaymentAccountID)
	}
	return nil
}

func validateOperation(operation string, tx models.FinancialTransaction) error {
	var problems []string
	if tx.Key == "" {
		problems = append(problems, "operation key is required")
	}
	if tx.PaymentAccountID == "" {
		problems = append(problems, "payment account id is required")
	}
	if tx.CategoryID == "" {
		problems = append(problems, "category id is required")
	}
	if tx.OperationDay.IsZero() {
		problems = append(problems, "operation day is required")
	}
	if len(problems) > 0 {
		return &domain.ValidationError{Operation: operation, Problems: problems}
	}
	return nil
}
