package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

func TestAccountHandler_AppliesDeltas(t *testing.T) {
	accounts := newMockAccountStore()
	handler := NewAccountHandler(categories(), accounts, &MockProcessedMarker{})

	added := operation("op-1", "food", 50, march)
	updated := operation("op-1", "food", 80, march)
	salary := operation("op-2", "salary", 500, march)

	handler.Handle(context.Background(), []models.PaymentOperationEvent{
		event(models.EventTypeAdded, added, nil),
		event(models.EventTypeAdded, salary, nil),
		event(models.EventTypeUpdated, updated, &added),
		event(models.EventTypeRemoved, updated, &updated),
	})

	if !accounts.balances["acc-1"].Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected balance 500, got %s", accounts.balances["acc-1"])
	}
	if accounts.adjusts != 4 {
		t.Errorf("expected 4 adjustments, got %d", accounts.adjusts)
	}
}

func TestAccountHandler_SkipsProcessedEvents(t *testing.T) {
	accounts := newMockAccountStore()
	marker := &MockProcessedMarker{}
	handler := NewAccountHandler(categories(), accounts, marker)

	e := event(models.EventTypeAdded, operation("op-1", "salary", 100, march), nil)

	handler.Handle(context.Background(), []models.PaymentOperationEvent{e, e})
	handler.Handle(context.Background(), []models.PaymentOperationEvent{e})

	if !accounts.balances["acc-1"].Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected balance 100, got %s", accounts.balances["acc-1"])
	}
	if !marker.seen[e.ID] {
		t.Error("expected event marked processed")
	}
}

func TestAccountHandler_UnresolvableEventsNotMarked(t *testing.T) {
	accounts := newMockAccountStore()
	marker := &MockProcessedMarker{}
	handler := NewAccountHandler(categories(), accounts, marker)

	unknown := event(models.EventTypeAdded, operation("op-1", "mystery", 10, march), nil)
	noPrevious := event(models.EventTypeUpdated, operation("op-2", "food", 10, march), nil)

	handler.Handle(context.Background(), []models.PaymentOperationEvent{unknown, noPrevious})

	if accounts.adjusts != 0 {
		t.Errorf("expected no adjustments, got %d", accounts.adjusts)
	}
	if marker.seen[unknown.ID] || marker.seen[noPrevious.ID] {
		t.Error("expected failed events to stay unmarked")
	}
}
