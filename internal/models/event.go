package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType is the kind of mutation a PaymentOperationEvent carries.
type EventType string

const (
	EventTypeAdded   EventType = "Added"
	EventTypeUpdated EventType = "Updated"
	EventTypeRemoved EventType = "Removed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeAdded, EventTypeUpdated, EventTypeRemoved:
		return true
	}
	return false
}

// TransactionType distinguishes plain payments from transfer legs.
type TransactionType string

const (
	TransactionTypePayment  TransactionType = "Payment"
	TransactionTypeTransfer TransactionType = "Transfer"
)

// Metadata keys carried by every event.
const (
	MetadataVersion       = "Version"
	MetadataCorrelationID = "CorrelationId"

	// EventSchemaVersion is the current version of the event payload layout.
	EventSchemaVersion = "1"
)

// FinancialTransaction is a single categorized operation on a payment account.
// It is immutable once appended to a stream; an update is a new event with the same Key.
type FinancialTransaction struct {
	Key              string          `json:"key"`
	PaymentAccountID string          `json:"paymentAccountId"`
	CategoryID       string          `json:"categoryId"`
	ContractorID     string          `json:"contractorId"`
	Amount           decimal.Decimal `json:"amount"`
	Comment          string          `json:"comment,omitempty"`
	OperationDay     Date            `json:"operationDay"`
	TransactionType  TransactionType `json:"transactionType"`
}

// PaymentOperationEvent wraps a FinancialTransaction with the mutation that produced it.
type PaymentOperationEvent struct {
	ID                string                `json:"id"`
	EventType         EventType             `json:"eventType"`
	Payload           FinancialTransaction  `json:"payload"`
	Previous          *FinancialTransaction `json:"previous,omitempty"` // version replaced by Updated/Removed
	OperationUnixTime int64                 `json:"operationUnixTime"`
	Metadata          map[string]string     `json:"metadata"`
}

// NewPaymentOperationEvent stamps a new event with an id, the producer clock and metadata.
func NewPaymentOperationEvent(eventType EventType, payload FinancialTransaction, correlationID string) PaymentOperationEvent {
	metadata := map[string]string{
		MetadataVersion: EventSchemaVersion,
	}
	if correlationID != "" {
		metadata[MetadataCorrelationID] = correlationID
	}

	return PaymentOperationEvent{
		ID:                uuid.NewString(),
		EventType:         eventType,
		Payload:           payload,
		OperationUnixTime: time.Now().UnixMilli(),
		Metadata:          metadata,
	}
}

// TypeTitle is the "{EventType}_{Key}" tag used as append type metadata.
func (e PaymentOperationEvent) TypeTitle() string {
	return fmt.Sprintf("%s_%s", e.EventType, e.Payload.Key)
}

// CorrelationID returns the correlation id from metadata, if any.
func (e PaymentOperationEvent) CorrelationID() string {
	return e.Metadata[MetadataCorrelationID]
}

// Validate checks the fields the pipeline routes and replays on.
func (e PaymentOperationEvent) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.Payload.Key == "" {
		return fmt.Errorf("operation key is required")
	}
	if e.Payload.PaymentAccountID == "" {
		return fmt.Errorf("payment account id is required")
	}
	if e.Payload.OperationDay.IsZero() {
		return fmt.Errorf("operation day is required")
	}
	return nil
}
