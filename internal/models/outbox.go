package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// OutboxAccountPaymentsEntity is a staged event waiting to be published to the bus.
// Rows are never deleted; they form the audit trail of emitted events.
type OutboxAccountPaymentsEntity struct {
	ID           uuid.UUID
	AggregateID  string // operation key
	EventType    EventType
	Payload      []byte // JSON PaymentOperationEvent
	PartitionKey string // payment account id
	Status       OutboxStatus
	RetryCount   int
	CreatedAt    time.Time
	SentAt       *time.Time
}
