package service

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// AccountHandler keeps handbook balances current from the accounts queue.
// Each event is applied at most once per marker retention window.
type AccountHandler struct {
	categories domain.CategoryLookup
	accounts   domain.AccountStore
	marker     domain.ProcessedMarker
}

// NewAccountHandler creates a new account balance handler
func NewAccountHandler(categories domain.CategoryLookup, accounts domain.AccountStore, marker domain.ProcessedMarker) *AccountHandler {
	return &AccountHandler{
		categories: categories,
		accounts:   accounts,
		marker:     marker,
	}
}

// Handle applies a drained batch in order. Failures are logged per event.
func (h *AccountHandler) Handle(ctx context.Context, batch []models.PaymentOperationEvent) {
	for _, event := range batch {
		if err := h.HandleEvent(ctx, event); err != nil {
			log.Printf("Failed to apply event to balance: eventId=%s, accountId=%s, error=%v",
				event.ID, event.Payload.PaymentAccountID, err)
		}
	}
}

// HandleEvent adjusts the account balance by the event's delta and marks it processed
func (h *AccountHandler) HandleEvent(ctx context.Context, event models.PaymentOperationEvent) error {
	if h.marker.IsProcessed(ctx, event.ID) {
		log.Printf("Event already processed, skipping: eventId=%s", event.ID)
		return nil
	}

	delta, err := h.delta(ctx, event)
	if err != nil {
		return err
	}

	if !delta.IsZero() {
		if err := h.accounts.AdjustBalance(ctx, event.Payload.PaymentAccountID, delta); err != nil {
			return fmt.Errorf("failed to adjust balance: %w", err)
		}
	}

	h.marker.MarkProcessed(ctx, event.ID)

	log.Printf("Balance adjusted: eventId=%s, accountId=%s, type=%s, delta=%s",
		event.ID, event.Payload.PaymentAccountID, event.EventType, delta)
	return nil
}

func (h *AccountHandler) delta(ctx context.Context, event models.PaymentOperationEvent) (decimal.Decimal, error) {
	switch event.EventType {
	case models.EventTypeAdded:
		return domain.Effect(ctx, h.categories, event.Payload)

	case models.EventTypeUpdated:
		if event.Previous == nil {
			return decimal.Zero, fmt.Errorf("update of %s carries no previous version", event.Payload.Key)
		}
		next, err := domain.Effect(ctx, h.categories, event.Payload)
		if err != nil {
			return decimal.Zero, err
		}
		prev, err := domain.Effect(ctx, h.categories, *event.Previous)
		if err != nil {
			return decimal.Zero, err
		}
		return next.Sub(prev), nil

	case models.EventTypeRemoved:
		removed := event.Payload
		if event.Previous != nil {
			removed = *event.Previous
		}
		effect, err := domain.Effect(ctx, h.categories, removed)
		if err != nil {
			return decimal.Zero, err
		}
		return effect.Neg(), nil
	}

	return decimal.Zero, fmt.Errorf("unknown event type %q", event.EventType)
}
