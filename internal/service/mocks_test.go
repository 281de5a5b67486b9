package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// MockEventReader serves streams from memory
type MockEventReader struct {
	streams map[string][]models.PaymentOperationEvent
	err     error
}

func (m *MockEventReader) ReadAll(ctx context.Context, streamID string) ([]models.PaymentOperationEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.streams[streamID], nil
}

// Streams returns the account's stream ids in lexical order
func (m *MockEventReader) Streams(ctx context.Context, accountID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id := range m.streams {
		if strings.HasPrefix(id, accountID+"-") {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MockCategoryLookup resolves categories from a map
type MockCategoryLookup struct {
	income map[string]bool
	calls  int
	err    error
}

func (m *MockCategoryLookup) IsIncomeCategory(ctx context.Context, categoryID string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	income, ok := m.income[categoryID]
	if !ok {
		return false, domain.ErrCategoryNotFound
	}
	return income, nil
}

// MockHistoryStore keeps the last replaced history per account
type MockHistoryStore struct {
	records  map[string][]models.HistoryRecord
	replaces int
	err      error
}

func (m *MockHistoryStore) ReplaceAll(ctx context.Context, accountID string, records []models.HistoryRecord) error {
	if m.err != nil {
		return m.err
	}
	if m.records == nil {
		m.records = make(map[string][]models.HistoryRecord)
	}
	m.records[accountID] = records
	m.replaces++
	return nil
}

// MockAccountStore keeps balances in memory
type MockAccountStore struct {
	initial  map[string]decimal.Decimal
	balances map[string]decimal.Decimal
	adjusts  int
}

func newMockAccountStore() *MockAccountStore {
	return &MockAccountStore{
		initial:  make(map[string]decimal.Decimal),
		balances: make(map[string]decimal.Decimal),
	}
}

func (m *MockAccountStore) InitialBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	initial, ok := m.initial[accountID]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return initial, nil
}

func (m *MockAccountStore) SetBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	m.balances[accountID] = balance
	return nil
}

func (m *MockAccountStore) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	m.adjusts++
	m.balances[accountID] = m.balances[accountID].Add(delta)
	return nil
}

// MockProcessedMarker remembers processed ids in memory
type MockProcessedMarker struct {
	seen map[string]bool
}

func (m *MockProcessedMarker) IsProcessed(ctx context.Context, eventID string) bool {
	return m.seen[eventID]
}

func (m *MockProcessedMarker) MarkProcessed(ctx context.Context, eventID string) {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	m.seen[eventID] = true
}

// MockOutboxWriter records inserted rows
type MockOutboxWriter struct {
	rows []models.OutboxAccountPaymentsEntity
	err  error
}

func (m *MockOutboxWriter) Insert(ctx context.Context, entities []models.OutboxAccountPaymentsEntity) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, entities...)
	return nil
}

// MockTransactionManager runs fn directly and counts transactions
type MockTransactionManager struct {
	transactions int
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.transactions++
	return fn(ctx)
}

// MockAccountLookup serves account infos from a map
type MockAccountLookup struct {
	accounts map[string]models.AccountInfo
}

func (m *MockAccountLookup) GetByID(ctx context.Context, accountID string) (models.AccountInfo, error) {
	info, ok := m.accounts[accountID]
	if !ok {
		return models.AccountInfo{}, domain.ErrAccountNotFound
	}
	return info, nil
}
