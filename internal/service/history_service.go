package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/metrics"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// HistoryService rebuilds account history and balance from the event store
type HistoryService struct {
	reader     domain.EventReader
	categories domain.CategoryLookup
	history    domain.HistoryStore
	accounts   domain.AccountStore
}

// NewHistoryService creates a new history service.
// accounts may be nil; replay then starts from zero and no balance is written back.
func NewHistoryService(
	reader domain.EventReader,
	categories domain.CategoryLookup,
	history domain.HistoryStore,
	accounts domain.AccountStore,
) *HistoryService {
	return &HistoryService{
		reader:     reader,
		categories: categories,
		history:    history,
		accounts:   accounts,
	}
}

// SyncResult summarizes one replay
type SyncResult struct {
	AccountID string
	Streams   int
	Records   int
	Balance   decimal.Decimal
}

// SyncHistory replays every stream of accountID, oldest month first, replaces
// the stored history with the result and writes the final balance back.
// Running it twice over the same events gives the same history and balance.
func (s *HistoryService) SyncHistory(ctx context.Context, accountID string) (SyncResult, error) {
	start := time.Now()
	defer func() {
		metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	}()

	if accountID == "" {
		return SyncResult{}, &domain.ValidationError{Operation: "sync history", Problems: []string{"account id is required"}}
	}

	initial, err := s.initialBalance(ctx, accountID)
	if err != nil {
		return SyncResult{}, err
	}

	streams, err := s.reader.Streams(ctx, accountID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to list streams of account %s: %w", accountID, err)
	}

	r := newReplay(accountID, initial, newCategoryCache(s.categories))
	for _, streamID := range streams {
		events, err := s.reader.ReadAll(ctx, streamID)
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to read stream %s: %w", streamID, err)
		}
		for _, event := range events {
			if err := r.apply(ctx, streamID, event); err != nil {
				return SyncResult{}, fmt.Errorf("failed to replay stream %s: %w", streamID, err)
			}
		}
	}

	if err := s.history.ReplaceAll(ctx, accountID, r.records); err != nil {
		return SyncResult{}, fmt.Errorf("failed to store history of account %s: %w", accountID, err)
	}

	if s.accounts != nil {
		if err := s.accounts.SetBalance(ctx, accountID, r.balance); err != nil {
			return SyncResult{}, fmt.Errorf("failed to store balance of account %s: %w", accountID, err)
		}
	}

	log.Printf("History synced: accountId=%s, streams=%d, records=%d, balance=%s",
		accountID, len(streams), len(r.records), r.balance)

	return SyncResult{
		AccountID: accountID,
		Streams:   len(streams),
		Records:   len(r.records),
		Balance:   r.balance,
	}, nil
}

func (s *HistoryService) initialBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if s.accounts == nil {
		return decimal.Zero, nil
	}
	initial, err := s.accounts.InitialBalance(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		log.Printf("Account not in handbook, replaying from zero: accountId=%s", accountID)
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get initial balance of account %s: %w", accountID, err)
	}
	return initial, nil
}

// replay folds events into running balance records. Effects are tracked per
// stream and operation key, so a repeated Added replaces instead of doubling.
// An event id seen before is a redelivery and is skipped.
type replay struct {
	accountID  string
	balance    decimal.Decimal
	categories domain.CategoryLookup
	live       map[string]decimal.Decimal
	seen       map[string]bool
	records    []models.HistoryRecord
}

func newReplay(accountID string, initial decimal.Decimal, categories domain.CategoryLookup) *replay {
	return &replay{
		accountID:  accountID,
		balance:    initial,
		categories: categories,
		live:       make(map[string]decimal.Decimal),
		seen:       make(map[string]bool),
	}
}

func (r *replay) apply(ctx context.Context, streamID string, event models.PaymentOperationEvent) error {
	if event.ID != "" {
		if r.seen[event.ID] {
			log.Printf("Skipping redelivered event during replay: stream=%s, eventId=%s, type=%s",
				streamID, event.ID, event.EventType)
			return nil
		}
		r.seen[event.ID] = true
	}

	liveKey := streamID + "/" + event.Payload.Key

	var delta decimal.Decimal
	switch event.EventType {
	case models.EventTypeAdded:
		effect, err := r.effect(ctx, event.Payload)
		if err != nil {
			return err
		}
		delta = effect.Sub(r.live[liveKey])
		r.live[liveKey] = effect

	case models.EventTypeUpdated:
		effect, err := r.effect(ctx, event.Payload)
		if err != nil {
			return err
		}
		recorded, ok := r.live[liveKey]
		if !ok && event.Previous != nil {
			if recorded, err = r.effect(ctx, *event.Previous); err != nil {
				return err
			}
		}
		delta = effect.Sub(recorded)
		r.live[liveKey] = effect

	case models.EventTypeRemoved:
		recorded, ok := r.live[liveKey]
		if !ok {
			removed := event.Payload
			if event.Previous != nil {
				removed = *event.Previous
			}
			var err error
			if recorded, err = r.effect(ctx, removed); err != nil {
				return err
			}
		}
		delta = recorded.Neg()
		delete(r.live, liveKey)

	default:
		log.Printf("Skipping event of unknown type during replay: stream=%s, eventId=%s, type=%s",
			streamID, event.ID, event.EventType)
		return nil
	}

	r.balance = r.balance.Add(delta)
	r.records = append(r.records, models.HistoryRecord{
		AccountID:    r.accountID,
		Sequence:     uint64(len(r.records) + 1),
		StreamID:     streamID,
		EventID:      event.ID,
		OperationKey: event.Payload.Key,
		EventType:    event.EventType,
		CategoryID:   event.Payload.CategoryID,
		ContractorID: event.Payload.ContractorID,
		Amount:       event.Payload.Amount,
		Delta:        delta,
		Balance:      r.balance,
		OperationDay: event.Payload.OperationDay,
		Comment:      event.Payload.Comment,
	})
	return nil
}

// effect resolves the signed effect of tx. A category that does not exist
// counts as zero; any other lookup failure aborts the replay.
func (r *replay) effect(ctx context.Context, tx models.FinancialTransaction) (decimal.Decimal, error) {
	effect, err := domain.Effect(ctx, r.categories, tx)
	if errors.Is(err, domain.ErrCategoryNotFound) {
		log.Printf("Operation skipped in balance: accountId=%s, operationKey=%s, error=%v", r.accountID, tx.Key, err)
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return effect, nil
}

// categoryCache memoizes category directions for the duration of one replay.
type categoryCache struct {
	lookup domain.CategoryLookup
	known  map[string]bool
}

func newCategoryCache(lookup domain.CategoryLookup) *categoryCache {
	return &categoryCache{lookup: lookup, known: make(map[string]bool)}
}

func (c *categoryCache) IsIncomeCategory(ctx context.Context, categoryID string) (bool, error) {
	if income, ok := c.known[categoryID]; ok {
		return income, nil
	}
	income, err := c.lookup.IsIncomeCategory(ctx, categoryID)
	if err != nil {
		return false, err
	}
	c.known[categoryID] = income
	return income, nil
}
