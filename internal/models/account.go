package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAccount is a handbook account. Balance is owned by the account balance
// handler and the history replay; InitialBalance never changes after creation.
type PaymentAccount struct {
	Key            string          `json:"key"`
	Agent          string          `json:"agent"`
	Description    string          `json:"description"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Currency       string          `json:"currency"`
	Type           string          `json:"type"`
}

// Info projects the fields used for transfer comment synthesis.
func (a PaymentAccount) Info() AccountInfo {
	return AccountInfo{
		Agent:       a.Agent,
		Description: a.Description,
		Currency:    a.Currency,
	}
}

// AccountInfo is what the account lookup returns.
type AccountInfo struct {
	Agent       string `json:"agent"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
}

// Category is a handbook category; income categories raise the balance.
type Category struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	IsIncome bool   `json:"isIncome"`
}

// HistoryRecord is one replayed operation with the running balance after it.
type HistoryRecord struct {
	AccountID    string
	Sequence     uint64
	StreamID     string
	EventID      string
	OperationKey string
	EventType    EventType
	CategoryID   string
	ContractorID string
	Amount       decimal.Decimal
	Delta        decimal.Decimal
	Balance      decimal.Decimal
	OperationDay Date
	Comment      string
}

// WriteResult is returned by an append to the event store.
type WriteResult struct {
	NextExpectedVersion int64
	LogPosition         int64
}

// DeadLetter is an event the pipeline gave up on.
type DeadLetter struct {
	Event    PaymentOperationEvent `json:"event"`
	StreamID string                `json:"streamId,omitempty"`
	Error    string                `json:"error"`
	FailedAt time.Time             `json:"failedAt"`
}
